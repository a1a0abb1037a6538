package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/extract"
	"fintrack/internal/ingest"
	"fintrack/internal/log"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/session"
	"fintrack/internal/storage"
)

type errorBody struct {
	Error     string            `json:"error"`
	Problems  map[string]string `json:"problems,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", log.FieldComponent, log.ComponentHTTP, log.FieldError, err)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *ingest.ValidationError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrInvalidAccountType),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrZeroDate),
		errors.Is(err, core.ErrTooLong),
		errors.Is(err, services.ErrEmptyCapture):
		return http.StatusUnprocessableEntity
	case errors.As(err, &maxBytes), errors.Is(err, extract.ErrAudioTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), errors.Is(err, storage.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrWalletMismatch):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrCaptureDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, extract.ErrUpstream), errors.Is(err, extract.ErrEmptyResult):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the mapped status. Server-side failures are logged
// and their details kept out of the response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), RequestID: trace.RequestID(r.Context())}

	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		body.Error = "validation failed"
		body.Problems = verr.Problems
	}

	switch {
	case status >= 500 && status != http.StatusBadGateway && status != http.StatusServiceUnavailable:
		body.Error = http.StatusText(status)
		fields := log.NewFields().WithRequestID(body.RequestID)
		fields[log.FieldMethod] = r.Method
		fields[log.FieldPath] = r.URL.Path
		fields[log.FieldStatusCode] = status
		if sess, ok := session.FromContext(r.Context()); ok {
			fields.WithScope(sess.UserID, string(sess.AccountType), "")
		}
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, r.Method+" "+r.Pattern, fields)
	case status == http.StatusBadGateway:
		body.Error = "extraction service failed"
		slog.WarnContext(r.Context(), "Upstream extraction failed",
			append(trace.LogAttrs(r.Context()),
				log.FieldComponent, log.ComponentHTTP,
				log.FieldPath, r.URL.Path,
				log.FieldError, err)...)
	}
	writeJSON(w, status, body)
}
