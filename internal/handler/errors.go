package handler

import (
	"context"
	apperrors "device-loan-api/pkg/errors"
	"device-loan-api/pkg/logger"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps a message and an optional payload
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorHandler provides centralized error handling functionality for handlers
type ErrorHandler struct {
	Logger *logger.Logger
}

// NewErrorHandler creates a new ErrorHandler instance
func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ErrorHandler{Logger: log}
}

// SendErrorResponse sends a structured error response
func (e *ErrorHandler) SendErrorResponse(w http.ResponseWriter, statusCode int, message, code string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		e.Logger.Error(context.Background(), "handler.encode_error_response", err)
	}
}

// SendSuccessResponse sends a structured success response
func (e *ErrorHandler) SendSuccessResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := SuccessResponse{
		Message: message,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		e.Logger.Error(context.Background(), "handler.encode_success_response", err)
	}
}

// SendJSONResponse sends a generic JSON response
func (e *ErrorHandler) SendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		e.Logger.Error(context.Background(), "handler.encode_json_response", err)
		e.SendErrorResponse(w, http.StatusInternalServerError, "Failed to encode response", "ENCODING_ERROR", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// HandleError renders err as an ErrorResponse. AppErrors keep their code and
// status; storage and internal messages are replaced with a generic one.
// An expired deadline anywhere in the chain is a timeout, even when a
// service wrapped it as a storage error.
func (e *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	ctx := e.Logger.WithField(r.Context(), "operation", operation)

	appErr := apperrors.WrapError(err, "unexpected error")
	if errors.Is(err, context.DeadlineExceeded) && !appErr.Public() {
		appErr = apperrors.TimeoutError(operation)
	}

	status := appErr.GetHTTPStatus()
	if status >= http.StatusInternalServerError {
		e.Logger.Error(ctx, "handler.request_failed", err)
	} else {
		e.Logger.Debug(e.Logger.WithField(ctx, "error", err.Error()), "handler.request_rejected")
	}

	message := appErr.Message
	details := appErr.Details
	if !appErr.Public() {
		message = "Failed to " + operation
		details = nil
	}
	e.SendErrorResponse(w, status, message, string(appErr.Code), details)
}

// MethodNotAllowed answers a request whose path exists but whose method does not
func (e *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	e.SendErrorResponse(w, http.StatusMethodNotAllowed, "method "+r.Method+" is not allowed", string(apperrors.ErrorCodeMethodNotAllowed), nil)
}

// ParseAndValidateID parses a positive integer path parameter
func (e *ErrorHandler) ParseAndValidateID(w http.ResponseWriter, idStr, name string) (int64, bool) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		e.SendErrorResponse(w, http.StatusBadRequest, name+" is required", string(apperrors.ErrorCodeInvalidParameter), nil)
		return 0, false
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		e.SendErrorResponse(w, http.StatusBadRequest, "invalid "+name, string(apperrors.ErrorCodeInvalidParameter), nil)
		return 0, false
	}

	return id, true
}
