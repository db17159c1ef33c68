package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ResponseHelper provides common response utilities and context management
type ResponseHelper struct {
	// MaxBodyBytes caps request bodies read by handlers; zero means no cap.
	MaxBodyBytes int64
}

// NewResponseHelper creates a new ResponseHelper instance
func NewResponseHelper(maxBodyBytes int64) *ResponseHelper {
	return &ResponseHelper{MaxBodyBytes: maxBodyBytes}
}

// Default and maximum row counts for audit listings
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ParseLimit reads the limit query parameter, falling back to DefaultListLimit
// when it is missing or malformed and clamping it to MaxListLimit.
func (rh *ResponseHelper) ParseLimit(r *http.Request) int {
	limit := DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit
}

// CreateRequestContext derives a context with timeout from the request. The
// request context already carries the request-scoped logger fields.
func (rh *ResponseHelper) CreateRequestContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}

// LimitBody caps the request body at MaxBodyBytes
func (rh *ResponseHelper) LimitBody(w http.ResponseWriter, r *http.Request) {
	if rh.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rh.MaxBodyBytes)
	}
}

// CreateListResponseData creates response data for list operations with metadata
func (rh *ResponseHelper) CreateListResponseData(key string, items interface{}, count int, additionalData map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		key:     items,
		"count": count,
	}

	for k, v := range additionalData {
		data[k] = v
	}

	return data
}

// CreateHealthCheckData creates health check response data. notifierHealthy
// is nil when no notification service is configured.
func (rh *ResponseHelper) CreateHealthCheckData(dbHealthy bool, notifierHealthy *bool) map[string]interface{} {
	status := "healthy"
	if !dbHealthy || (notifierHealthy != nil && !*notifierHealthy) {
		status = "degraded"
	}
	data := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"service":   "device-loan-api",
		"status":    status,
		"database":  dbHealthy,
	}
	if notifierHealthy != nil {
		data["notifier"] = *notifierHealthy
	}
	return data
}
