package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"livereload/internal/reloader"
	"livereload/internal/runner"
	"livereload/pkg/types"
)

// Reload outcomes, used as the metric label and derived from the same
// classification as the response status.
const (
	outcomeOK          = "ok"
	outcomeBusy        = "busy"
	outcomeNotRunning  = "not_running"
	outcomeClosed      = "closed"
	outcomeUnavailable = "unavailable"
	outcomeTimeout     = "timeout"
	outcomeCanceled    = "canceled"
	outcomeIO          = "io"
	outcomeOpen        = "open"
	outcomeSymbol      = "symbol"
	outcomeABI         = "abi"
	outcomeHost        = "host_mismatch"
	outcomeError       = "error"
)

// classify maps a reload error to its HTTP status and outcome label.
func classify(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, outcomeOK
	case reloader.IsBusy(err):
		return http.StatusConflict, outcomeBusy
	case errors.Is(err, runner.ErrNotRunning):
		return http.StatusServiceUnavailable, outcomeNotRunning
	case errors.Is(err, reloader.ErrClosed):
		return http.StatusServiceUnavailable, outcomeClosed
	case reloader.IsUnavailable(err):
		return http.StatusServiceUnavailable, outcomeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, outcomeTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, outcomeCanceled
	case reloader.IsIO(err):
		return http.StatusNotFound, outcomeIO
	case reloader.IsIncompatibleABI(err):
		return http.StatusUnprocessableEntity, outcomeABI
	case reloader.IsMismatchedHost(err):
		return http.StatusUnprocessableEntity, outcomeHost
	case reloader.IsSymbol(err):
		return http.StatusInternalServerError, outcomeSymbol
	case reloader.IsOpen(err):
		return http.StatusInternalServerError, outcomeOpen
	default:
		return http.StatusInternalServerError, outcomeError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
