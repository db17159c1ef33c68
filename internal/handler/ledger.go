package handler

import (
	"device-loan-api/internal/model"
	"device-loan-api/pkg/logger"
	"device-loan-api/pkg/validation"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// Constants for timeouts
const (
	DefaultTimeout     = 10 * time.Second
	LongRunningTimeout = 30 * time.Second
	HealthTimeout      = 2 * time.Second
)

// LedgerHandler handles the public borrowing endpoints.
type LedgerHandler struct {
	Ledger   LedgerService
	Registry RegistryService
	DB       Pinger
	// Notifier is checked by the health endpoint when reminders are configured
	Notifier HealthChecker
	Logger   *logger.Logger

	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper
}

// NewLedgerHandler creates a LedgerHandler. db may be nil, in which case the
// health endpoint does not probe the database.
func NewLedgerHandler(ledger LedgerService, registry RegistryService, db Pinger, maxBodyBytes int64, log *logger.Logger) *LedgerHandler {
	if log == nil {
		log = logger.Nop()
	}

	return &LedgerHandler{
		Ledger:         ledger,
		Registry:       registry,
		DB:             db,
		Logger:         log,
		ErrorHandler:   NewErrorHandler(log),
		ResponseHelper: NewResponseHelper(maxBodyBytes),
	}
}

// ListAvailableDevicesHandler lists devices that can be borrowed.
func (h *LedgerHandler) ListAvailableDevicesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	category := strings.TrimSpace(r.URL.Query().Get("category"))
	devices, err := h.Ledger.ListAvailable(ctx, category)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "list available devices")
		return
	}

	extra := map[string]interface{}{}
	if category != "" {
		extra["category"] = category
	}
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("devices", devices, len(devices), extra))
}

// SubmitLoanHandler checks out one or more devices for a borrower. A fully
// successful checkout answers 201; a checkout where some devices could not be
// loaned answers 200 with partial set and the per-device outcomes.
func (h *LedgerHandler) SubmitLoanHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	h.ResponseHelper.LimitBody(w, r)
	var req model.LoanRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.ErrorHandler.HandleError(w, r, err, "submit loan")
		return
	}

	result, err := h.Ledger.SubmitLoan(ctx, req)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "submit loan")
		return
	}

	if result.Partial {
		h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Some devices could not be loaned", result)
		return
	}
	h.ErrorHandler.SendSuccessResponse(w, http.StatusCreated, "Loan recorded successfully", result)
}

// ListOpenLoansHandler lists loans that have not been returned.
func (h *LedgerHandler) ListOpenLoansHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	category := strings.TrimSpace(r.URL.Query().Get("category"))
	loans, err := h.Ledger.ListOpenLoans(ctx, category)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "list open loans")
		return
	}

	extra := map[string]interface{}{}
	if category != "" {
		extra["category"] = category
	}
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("loans", loans, len(loans), extra))
}

// SubmitReturnHandler closes a loan by loan id or by borrower email and device id.
func (h *LedgerHandler) SubmitReturnHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	h.ResponseHelper.LimitBody(w, r)
	var req model.ReturnRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.ErrorHandler.HandleError(w, r, err, "submit return")
		return
	}

	result, err := h.Ledger.SubmitReturn(ctx, req)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "submit return")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Return recorded successfully", result)
}

// BorrowerLoansHandler lists the open loans of one borrower.
func (h *LedgerHandler) BorrowerLoansHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	email := mux.Vars(r)["email"]
	loans, err := h.Ledger.BorrowerLoans(ctx, email)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "list borrower loans")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("loans", loans, len(loans), map[string]interface{}{
		"email": validation.NormalizeEmail(email),
	}))
}

// CategoriesHandler lists the known device categories and their rubric prefixes.
func (h *LedgerHandler) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories := h.Registry.Categories()
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("categories", categories, len(categories), nil))
}

// HealthHandler provides a health check endpoint
func (h *LedgerHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	dbHealthy := true
	if h.DB != nil {
		ctx, cancel := h.ResponseHelper.CreateRequestContext(r, HealthTimeout)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			h.Logger.Error(r.Context(), "health.database_unreachable", err)
			dbHealthy = false
		}
	}

	var notifierHealthy *bool
	if h.Notifier != nil {
		ctx, cancel := h.ResponseHelper.CreateRequestContext(r, HealthTimeout)
		defer cancel()
		healthy := h.Notifier.IsHealthy(ctx)
		if !healthy {
			h.Logger.Warn(r.Context(), "health.notifier_unreachable")
		}
		notifierHealthy = &healthy
	}

	healthData := h.ResponseHelper.CreateHealthCheckData(dbHealthy, notifierHealthy)
	if !dbHealthy {
		h.ErrorHandler.SendSuccessResponse(w, http.StatusServiceUnavailable, "Service is degraded", healthData)
		return
	}
	if healthData["status"] != "healthy" {
		h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Service is degraded", healthData)
		return
	}
	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Service is healthy", healthData)
}
