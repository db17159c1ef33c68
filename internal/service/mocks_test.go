package service

import (
	"context"
	"device-loan-api/internal/model"
	"time"
)

type mockDeviceRepo struct {
	createFunc        func(ctx context.Context, d model.NewDevice) (*model.Device, error)
	getFunc           func(ctx context.Context, id int64) (*model.Device, error)
	listFunc          func(ctx context.Context) ([]model.Device, error)
	listAvailableFunc func(ctx context.Context, category string) ([]model.Device, error)
	deleteFunc        func(ctx context.Context, id int64) error
}

func (m *mockDeviceRepo) CreateDevice(ctx context.Context, d model.NewDevice) (*model.Device, error) {
	return m.createFunc(ctx, d)
}

func (m *mockDeviceRepo) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	return m.getFunc(ctx, id)
}

func (m *mockDeviceRepo) ListDevices(ctx context.Context) ([]model.Device, error) {
	return m.listFunc(ctx)
}

func (m *mockDeviceRepo) ListAvailableDevices(ctx context.Context, category string) ([]model.Device, error) {
	return m.listAvailableFunc(ctx, category)
}

func (m *mockDeviceRepo) DeleteDevice(ctx context.Context, id int64) error {
	return m.deleteFunc(ctx, id)
}

type mockLedgerRepo struct {
	checkoutFunc     func(ctx context.Context, b model.Borrower, ids []int64, at time.Time) (*model.LoanResult, error)
	returnByIDFunc   func(ctx context.Context, loanID int64, at time.Time) (*model.Loan, error)
	returnByPairFunc func(ctx context.Context, email string, deviceIDs []int64, at time.Time) (*model.ReturnResult, error)
	readStateFunc    func(ctx context.Context) (*model.LedgerState, error)
	listOpenFunc     func(ctx context.Context, category string) ([]model.LoanView, error)
	listBorrowerFunc func(ctx context.Context, email string) ([]model.LoanView, error)
	listHistoryFunc  func(ctx context.Context) ([]model.LoanView, error)
	listOverdueFunc  func(ctx context.Context, before time.Time) ([]model.LoanView, error)
}

func (m *mockLedgerRepo) Checkout(ctx context.Context, b model.Borrower, ids []int64, at time.Time) (*model.LoanResult, error) {
	return m.checkoutFunc(ctx, b, ids, at)
}

func (m *mockLedgerRepo) ReturnByLoanID(ctx context.Context, loanID int64, at time.Time) (*model.Loan, error) {
	return m.returnByIDFunc(ctx, loanID, at)
}

func (m *mockLedgerRepo) ReturnByBorrowerDevices(ctx context.Context, email string, deviceIDs []int64, at time.Time) (*model.ReturnResult, error) {
	return m.returnByPairFunc(ctx, email, deviceIDs, at)
}

func (m *mockLedgerRepo) ListOpenLoans(ctx context.Context, category string) ([]model.LoanView, error) {
	return m.listOpenFunc(ctx, category)
}

func (m *mockLedgerRepo) ListBorrowerOpenLoans(ctx context.Context, email string) ([]model.LoanView, error) {
	return m.listBorrowerFunc(ctx, email)
}

func (m *mockLedgerRepo) ListHistory(ctx context.Context) ([]model.LoanView, error) {
	return m.listHistoryFunc(ctx)
}

func (m *mockLedgerRepo) ListOverdue(ctx context.Context, before time.Time) ([]model.LoanView, error) {
	return m.listOverdueFunc(ctx, before)
}

func (m *mockLedgerRepo) ReadState(ctx context.Context) (*model.LedgerState, error) {
	return m.readStateFunc(ctx)
}

type mockRestoreRepo struct {
	restoreFunc func(ctx context.Context, plan model.RestorePlan) error
}

func (m *mockRestoreRepo) Restore(ctx context.Context, plan model.RestorePlan) error {
	return m.restoreFunc(ctx, plan)
}

type mockAdminRepo struct {
	recordFunc func(ctx context.Context, login model.AdminLogin) error
	listFunc   func(ctx context.Context, limit int) ([]model.AdminLogin, error)
}

func (m *mockAdminRepo) RecordLogin(ctx context.Context, login model.AdminLogin) error {
	return m.recordFunc(ctx, login)
}

func (m *mockAdminRepo) ListLogins(ctx context.Context, limit int) ([]model.AdminLogin, error) {
	return m.listFunc(ctx, limit)
}

type mockNotifier struct {
	sendFunc func(ctx context.Context, r OverdueReminder) error
}

func (m *mockNotifier) SendOverdueReminder(ctx context.Context, r OverdueReminder) error {
	return m.sendFunc(ctx, r)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func int64Ptr(v int64) *int64 { return &v }
