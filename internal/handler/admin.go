package handler

import (
	"device-loan-api/internal/middleware"
	"device-loan-api/internal/model"
	"device-loan-api/pkg/logger"
	"device-loan-api/pkg/validation"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// ImportTimeout bounds a snapshot import, which rewrites the whole ledger
const ImportTimeout = 60 * time.Second

// AdminHandler handles the administrator endpoints.
type AdminHandler struct {
	Auth     AuthService
	Registry RegistryService
	Reports  ReportService
	Importer ImportService
	Reminder ReminderService
	Logger   *logger.Logger

	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper
}

// AdminServices groups the services behind the admin endpoints
type AdminServices struct {
	Auth     AuthService
	Registry RegistryService
	Reports  ReportService
	Importer ImportService
	Reminder ReminderService
}

// NewAdminHandler creates an AdminHandler with dependencies and helpers
func NewAdminHandler(svc AdminServices, maxBodyBytes int64, log *logger.Logger) *AdminHandler {
	if log == nil {
		log = logger.Nop()
	}

	return &AdminHandler{
		Auth:           svc.Auth,
		Registry:       svc.Registry,
		Reports:        svc.Reports,
		Importer:       svc.Importer,
		Reminder:       svc.Reminder,
		Logger:         log,
		ErrorHandler:   NewErrorHandler(log),
		ResponseHelper: NewResponseHelper(maxBodyBytes),
	}
}

// LoginHandler exchanges admin credentials for a bearer token.
func (h *AdminHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	h.ResponseHelper.LimitBody(w, r)
	var req model.LoginRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.ErrorHandler.HandleError(w, r, err, "log in")
		return
	}

	result, err := h.Auth.Login(ctx, req, remoteAddr(r))
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "log in")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Login successful", result)
}

// LoginsHandler lists recent admin login attempts, newest first.
func (h *AdminHandler) LoginsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	logins, err := h.Auth.RecentLogins(ctx, h.ResponseHelper.ParseLimit(r))
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "list admin logins")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("logins", logins, len(logins), nil))
}

// ListDevicesHandler lists the full inventory with each device's status.
func (h *AdminHandler) ListDevicesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	devices, err := h.Registry.ListDevices(ctx)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "list devices")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("devices", devices, len(devices), nil))
}

// AddDeviceHandler registers a new device.
func (h *AdminHandler) AddDeviceHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	h.ResponseHelper.LimitBody(w, r)
	var input model.NewDevice
	if err := validation.DecodeJSONBody(r, &input); err != nil {
		h.ErrorHandler.HandleError(w, r, err, "add device")
		return
	}

	device, err := h.Registry.AddDevice(ctx, input)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "add device")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusCreated, "Device added successfully", device)
}

// DeleteDeviceHandler removes a device that is not on loan.
func (h *AdminHandler) DeleteDeviceHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	id, valid := h.ErrorHandler.ParseAndValidateID(w, mux.Vars(r)["id"], "device id")
	if !valid {
		return
	}

	if err := h.Registry.DeleteDevice(ctx, id); err != nil {
		h.ErrorHandler.HandleError(w, r, err, "delete device")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Device deleted successfully", map[string]interface{}{"id": id})
}

// ExportHandler returns the snapshot document of the registry and the ledger.
func (h *AdminHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	snap, err := h.Reports.Export(ctx)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "export snapshot")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="device-loans-`+snap.ExportedAt.Format("20060102-150405")+`.json"`)
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, snap)
}

// ImportHandler replaces the registry and the ledger with a snapshot document.
func (h *AdminHandler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, ImportTimeout)
	defer cancel()

	h.ResponseHelper.LimitBody(w, r)
	var snap model.Snapshot
	if err := validation.DecodeJSONBody(r, &snap); err != nil {
		h.ErrorHandler.HandleError(w, r, err, "import snapshot")
		return
	}

	summary, err := h.Importer.Import(ctx, snap)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "import snapshot")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Snapshot imported successfully", summary)
}

// HistoryHandler returns every loan, open and returned, formatted for display.
func (h *AdminHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	rows, err := h.Reports.History(ctx)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "retrieve loan history")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("history", rows, len(rows), nil))
}

// OverdueHandler lists open loans older than the loan period.
func (h *AdminHandler) OverdueHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	overdue, err := h.Reminder.Overdue(ctx)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "list overdue loans")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("loans", overdue, len(overdue), nil))
}

// NotifyOverdueHandler sends one reminder per overdue loan.
func (h *AdminHandler) NotifyOverdueHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	result, err := h.Reminder.NotifyOverdue(ctx)
	if err != nil {
		h.ErrorHandler.HandleError(w, r, err, "send overdue reminders")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Overdue reminders processed", result)
}

// remoteAddr prefers the client IP resolved by the proxy middleware
func remoteAddr(r *http.Request) string {
	if ip := middleware.ClientIP(r.Context()); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
