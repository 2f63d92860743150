package log

import (
	"context"
	"log/slog"
	"net/http"
)

type ctxKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request-scoped logger, or a logger over the slog
// default when none was stored.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// Middleware makes logger available to handlers through FromContext.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}

// RequestSummary describes one finished API request.
type RequestSummary struct {
	RequestID  string
	ClientIP   string
	Status     int
	DurationMs int64
}

// Level picks the record level: server faults are errors, client faults warnings.
func (s RequestSummary) Level() slog.Level {
	switch {
	case s.Status >= http.StatusInternalServerError:
		return slog.LevelError
	case s.Status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RequestLogger writes the access log of the ledger API.
type RequestLogger struct {
	logger *Logger
}

func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger.WithComponent(ComponentHTTP)}
}

func (rl *RequestLogger) Started(ctx context.Context, r *http.Request, requestID, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()).
		WithRequestID(requestID).
		WithClientIP(clientIP)
	rl.logger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

func (rl *RequestLogger) Completed(ctx context.Context, r *http.Request, s RequestSummary) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(s.Status, s.DurationMs, s.Status < http.StatusBadRequest).
		WithRequestID(s.RequestID).
		WithClientIP(s.ClientIP)
	rl.logger.Log(ctx, s.Level(), "HTTP request completed", fields.ToSlice()...)
}
