package handler

import (
	"context"
	"device-loan-api/internal/model"
	"net/http"
)

// LedgerService is the borrowing surface used by LedgerHandler
type LedgerService interface {
	ListAvailable(ctx context.Context, category string) ([]model.Device, error)
	SubmitLoan(ctx context.Context, req model.LoanRequest) (*model.LoanResult, error)
	ListOpenLoans(ctx context.Context, category string) ([]model.LoanView, error)
	SubmitReturn(ctx context.Context, req model.ReturnRequest) (*model.ReturnResult, error)
	BorrowerLoans(ctx context.Context, email string) ([]model.LoanView, error)
}

// RegistryService maintains the device inventory
type RegistryService interface {
	AddDevice(ctx context.Context, input model.NewDevice) (*model.Device, error)
	DeleteDevice(ctx context.Context, id int64) error
	ListDevices(ctx context.Context) ([]model.Device, error)
	Categories() []model.Category
}

// ReportService renders the ledger as a snapshot document
type ReportService interface {
	Export(ctx context.Context) (*model.Snapshot, error)
	History(ctx context.Context) ([]model.HistoryRow, error)
}

// ImportService replaces the ledger with the contents of a snapshot
type ImportService interface {
	Import(ctx context.Context, snap model.Snapshot) (*model.ImportSummary, error)
}

// AuthService checks admin credentials and exposes the login audit trail
type AuthService interface {
	Login(ctx context.Context, req model.LoginRequest, remoteAddr string) (*model.LoginResult, error)
	RecentLogins(ctx context.Context, limit int) ([]model.AdminLogin, error)
}

// ReminderService lists overdue loans and sends their reminders
type ReminderService interface {
	Overdue(ctx context.Context) ([]model.OverdueLoan, error)
	NotifyOverdue(ctx context.Context) (*model.ReminderResult, error)
}

// Pinger reports database reachability for the health endpoint
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthChecker reports whether an optional downstream service answers
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// LedgerHandlerInterface defines the public borrowing endpoints
type LedgerHandlerInterface interface {
	ListAvailableDevicesHandler(w http.ResponseWriter, r *http.Request)
	SubmitLoanHandler(w http.ResponseWriter, r *http.Request)
	ListOpenLoansHandler(w http.ResponseWriter, r *http.Request)
	SubmitReturnHandler(w http.ResponseWriter, r *http.Request)
	BorrowerLoansHandler(w http.ResponseWriter, r *http.Request)
	CategoriesHandler(w http.ResponseWriter, r *http.Request)

	// Health and monitoring
	HealthHandler(w http.ResponseWriter, r *http.Request)
}

// AdminHandlerInterface defines the admin endpoints. Everything except
// LoginHandler is mounted behind the admin token middleware.
type AdminHandlerInterface interface {
	LoginHandler(w http.ResponseWriter, r *http.Request)
	LoginsHandler(w http.ResponseWriter, r *http.Request)

	// Device registry
	ListDevicesHandler(w http.ResponseWriter, r *http.Request)
	AddDeviceHandler(w http.ResponseWriter, r *http.Request)
	DeleteDeviceHandler(w http.ResponseWriter, r *http.Request)

	// Reporting and snapshots
	ExportHandler(w http.ResponseWriter, r *http.Request)
	ImportHandler(w http.ResponseWriter, r *http.Request)
	HistoryHandler(w http.ResponseWriter, r *http.Request)

	// Overdue reminders
	OverdueHandler(w http.ResponseWriter, r *http.Request)
	NotifyOverdueHandler(w http.ResponseWriter, r *http.Request)
}

// Ensure the handlers implement their interfaces at compile time
var (
	_ LedgerHandlerInterface = (*LedgerHandler)(nil)
	_ AdminHandlerInterface  = (*AdminHandler)(nil)
)
