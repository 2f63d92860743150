// Package http serves the ledger as a JSON API.
//
// This file holds the builder used by every handler to write the
// {"success": ...} envelope and to map ledger error kinds to status codes.

package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"famledger/internal/auth"
	"famledger/internal/core"
	"famledger/internal/log"
	"famledger/internal/middleware/trace"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	fields     map[string]any
	headers    map[string]string
}

// NewResponse creates a successful response with status 200.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		fields:     map[string]any{"success": true},
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// With adds a top-level field to the envelope.
func (b *ResponseBuilder) With(key string, value any) *ResponseBuilder {
	b.fields[key] = value
	return b
}

// Message sets the human-readable message field.
func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	return b.With("message", msg)
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	body, err := json.Marshal(b.fields)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		body = []byte(`{"success":false,"error":"internal server error","kind":"internal_error"}`)
		b.statusCode = http.StatusInternalServerError
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
}

// statusFor maps a ledger error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrConsistency):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse builds the error envelope for err. Messages of unclassified
// errors are not exposed.
func ErrorResponse(err error) *ResponseBuilder {
	status := statusFor(err)
	kind := core.Kind(err)
	msg := err.Error()
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		kind = "unauthorized"
	case kind == "internal_error":
		msg = "internal server error"
	}
	b := NewResponse().Status(status).With("success", false).With("error", msg).With("kind", kind)
	return b
}

// writeError logs err at a level matching its status and writes the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	b := ErrorResponse(err)
	fields := log.NewFields().
		WithOperation(op).
		WithError(err).
		WithRequestID(trace.GetRequestID(r.Context()))
	if caller, cerr := auth.CallerFrom(r.Context()); cerr == nil {
		fields = fields.WithCaller(caller)
	}

	logger := log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
	if b.statusCode >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	b.Write(w)
}
