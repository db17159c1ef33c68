package handler

import (
	"bytes"
	"context"
	"device-loan-api/internal/model"
	"encoding/json"
	"net/http"
)

// Mock implementations for testing

type MockLedgerService struct {
	ListAvailableFunc func(ctx context.Context, category string) ([]model.Device, error)
	SubmitLoanFunc    func(ctx context.Context, req model.LoanRequest) (*model.LoanResult, error)
	ListOpenLoansFunc func(ctx context.Context, category string) ([]model.LoanView, error)
	SubmitReturnFunc  func(ctx context.Context, req model.ReturnRequest) (*model.ReturnResult, error)
	BorrowerLoansFunc func(ctx context.Context, email string) ([]model.LoanView, error)
}

func (m *MockLedgerService) ListAvailable(ctx context.Context, category string) ([]model.Device, error) {
	if m.ListAvailableFunc != nil {
		return m.ListAvailableFunc(ctx, category)
	}
	return []model.Device{}, nil
}

func (m *MockLedgerService) SubmitLoan(ctx context.Context, req model.LoanRequest) (*model.LoanResult, error) {
	if m.SubmitLoanFunc != nil {
		return m.SubmitLoanFunc(ctx, req)
	}
	return &model.LoanResult{}, nil
}

func (m *MockLedgerService) ListOpenLoans(ctx context.Context, category string) ([]model.LoanView, error) {
	if m.ListOpenLoansFunc != nil {
		return m.ListOpenLoansFunc(ctx, category)
	}
	return []model.LoanView{}, nil
}

func (m *MockLedgerService) SubmitReturn(ctx context.Context, req model.ReturnRequest) (*model.ReturnResult, error) {
	if m.SubmitReturnFunc != nil {
		return m.SubmitReturnFunc(ctx, req)
	}
	return &model.ReturnResult{}, nil
}

func (m *MockLedgerService) BorrowerLoans(ctx context.Context, email string) ([]model.LoanView, error) {
	if m.BorrowerLoansFunc != nil {
		return m.BorrowerLoansFunc(ctx, email)
	}
	return []model.LoanView{}, nil
}

type MockRegistryService struct {
	AddDeviceFunc    func(ctx context.Context, input model.NewDevice) (*model.Device, error)
	DeleteDeviceFunc func(ctx context.Context, id int64) error
	ListDevicesFunc  func(ctx context.Context) ([]model.Device, error)
}

func (m *MockRegistryService) AddDevice(ctx context.Context, input model.NewDevice) (*model.Device, error) {
	if m.AddDeviceFunc != nil {
		return m.AddDeviceFunc(ctx, input)
	}
	return &model.Device{}, nil
}

func (m *MockRegistryService) DeleteDevice(ctx context.Context, id int64) error {
	if m.DeleteDeviceFunc != nil {
		return m.DeleteDeviceFunc(ctx, id)
	}
	return nil
}

func (m *MockRegistryService) ListDevices(ctx context.Context) ([]model.Device, error) {
	if m.ListDevicesFunc != nil {
		return m.ListDevicesFunc(ctx)
	}
	return []model.Device{}, nil
}

func (m *MockRegistryService) Categories() []model.Category {
	return append([]model.Category(nil), model.DefaultCategories...)
}

type MockReportService struct {
	ExportFunc  func(ctx context.Context) (*model.Snapshot, error)
	HistoryFunc func(ctx context.Context) ([]model.HistoryRow, error)
}

func (m *MockReportService) Export(ctx context.Context) (*model.Snapshot, error) {
	if m.ExportFunc != nil {
		return m.ExportFunc(ctx)
	}
	return &model.Snapshot{}, nil
}

func (m *MockReportService) History(ctx context.Context) ([]model.HistoryRow, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx)
	}
	return []model.HistoryRow{}, nil
}

type MockImportService struct {
	ImportFunc func(ctx context.Context, snap model.Snapshot) (*model.ImportSummary, error)
}

func (m *MockImportService) Import(ctx context.Context, snap model.Snapshot) (*model.ImportSummary, error) {
	if m.ImportFunc != nil {
		return m.ImportFunc(ctx, snap)
	}
	return &model.ImportSummary{}, nil
}

type MockAuthService struct {
	LoginFunc        func(ctx context.Context, req model.LoginRequest, remoteAddr string) (*model.LoginResult, error)
	RecentLoginsFunc func(ctx context.Context, limit int) ([]model.AdminLogin, error)
}

func (m *MockAuthService) Login(ctx context.Context, req model.LoginRequest, remoteAddr string) (*model.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req, remoteAddr)
	}
	return &model.LoginResult{}, nil
}

func (m *MockAuthService) RecentLogins(ctx context.Context, limit int) ([]model.AdminLogin, error) {
	if m.RecentLoginsFunc != nil {
		return m.RecentLoginsFunc(ctx, limit)
	}
	return []model.AdminLogin{}, nil
}

type MockReminderService struct {
	OverdueFunc       func(ctx context.Context) ([]model.OverdueLoan, error)
	NotifyOverdueFunc func(ctx context.Context) (*model.ReminderResult, error)
}

func (m *MockReminderService) Overdue(ctx context.Context) ([]model.OverdueLoan, error) {
	if m.OverdueFunc != nil {
		return m.OverdueFunc(ctx)
	}
	return []model.OverdueLoan{}, nil
}

func (m *MockReminderService) NotifyOverdue(ctx context.Context) (*model.ReminderResult, error) {
	if m.NotifyOverdueFunc != nil {
		return m.NotifyOverdueFunc(ctx)
	}
	return &model.ReminderResult{}, nil
}

type MockPinger struct {
	PingFunc func(ctx context.Context) error
}

func (m *MockPinger) PingContext(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

type MockNotifier struct {
	IsHealthyFunc func(ctx context.Context) bool
}

func (m *MockNotifier) IsHealthy(ctx context.Context) bool {
	if m.IsHealthyFunc != nil {
		return m.IsHealthyFunc(ctx)
	}
	return true
}

// Helper functions for tests

func createJSONRequest(method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func int64Ptr(v int64) *int64 { return &v }
