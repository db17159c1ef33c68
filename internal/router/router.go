package router

import (
	"device-loan-api/internal/config"
	"device-loan-api/internal/handler"
	"device-loan-api/internal/middleware"
	"device-loan-api/pkg/logger"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Ledger   handler.LedgerHandlerInterface
	Admin    handler.AdminHandlerInterface
	Verifier middleware.TokenVerifier
}

// NewRouter creates a new router and sets up the routes with security middleware.
func NewRouter(h Handlers, cfg *config.Config, log *logger.Logger) *mux.Router {
	r := mux.NewRouter()

	securityMW := middleware.NewSecurityMiddleware(&cfg.Security)

	// Apply global middleware in order
	r.Use(middleware.Recoverer(log))
	r.Use(middleware.RequestID(log))
	r.Use(securityMW.TrustedProxy)
	r.Use(middleware.Logging(log))
	r.Use(securityMW.SecurityHeaders)
	r.Use(securityMW.CORS)
	r.Use(securityMW.RateLimit)
	r.Use(securityMW.RequestTimeout)

	api := r.PathPrefix("/api/v1").Subrouter()
	errs := handler.NewErrorHandler(log)

	// Borrowing
	mount(api, errs, "/devices/available", methods{http.MethodGet: h.Ledger.ListAvailableDevicesHandler})
	mount(api, errs, "/categories", methods{http.MethodGet: h.Ledger.CategoriesHandler})
	mount(api, errs, "/loans", methods{http.MethodPost: h.Ledger.SubmitLoanHandler})
	mount(api, errs, "/loans/open", methods{http.MethodGet: h.Ledger.ListOpenLoansHandler})
	mount(api, errs, "/returns", methods{http.MethodPost: h.Ledger.SubmitReturnHandler})
	mount(api, errs, "/borrowers/{email}/loans", methods{http.MethodGet: h.Ledger.BorrowerLoansHandler})

	// Health check
	mount(api, errs, "/health", methods{http.MethodGet: h.Ledger.HealthHandler})

	// Admin login is the only unauthenticated admin route
	mount(api, errs, "/admin/login", methods{http.MethodPost: h.Admin.LoginHandler})

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminAuth(h.Verifier, log))

	mount(admin, errs, "/logins", methods{http.MethodGet: h.Admin.LoginsHandler})
	mount(admin, errs, "/devices", methods{
		http.MethodGet:  h.Admin.ListDevicesHandler,
		http.MethodPost: h.Admin.AddDeviceHandler,
	})
	mount(admin, errs, "/devices/{id:[0-9]+}", methods{http.MethodDelete: h.Admin.DeleteDeviceHandler})
	mount(admin, errs, "/export", methods{http.MethodGet: h.Admin.ExportHandler})
	mount(admin, errs, "/import", methods{http.MethodPost: h.Admin.ImportHandler})
	mount(admin, errs, "/loans/history", methods{http.MethodGet: h.Admin.HistoryHandler})
	mount(admin, errs, "/loans/overdue", methods{http.MethodGet: h.Admin.OverdueHandler})
	mount(admin, errs, "/loans/overdue/notify", methods{http.MethodPost: h.Admin.NotifyOverdueHandler})

	return r
}

// methods maps each method a path serves to its handler
type methods map[string]http.HandlerFunc

// mount registers one route per method, then a catch-all for the same path.
// The catch-all answers OPTIONS with 204 and any other method with 405, so
// the global middleware (CORS included) still runs for both.
func mount(r *mux.Router, errs *handler.ErrorHandler, path string, m methods) {
	allowed := make([]string, 0, len(m)+1)
	for method, h := range m {
		r.HandleFunc(path, h).Methods(method)
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	allow := strings.Join(append(allowed, http.MethodOptions), ", ")

	r.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Allow", allow)
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		errs.MethodNotAllowed(w, req)
	})
}
