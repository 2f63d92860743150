package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().
		With("status", "ok").
		With("timestamp", time.Now().UTC().Format(time.RFC3339)).
		With("uptime", time.Since(s.started).Round(time.Second).String()).
		Write(w)
}

// handleReady checks the store and, when configured, the outbox backlog.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready := true
	checks := make(map[string]any)

	if err := s.ledger.Ping(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		ready = false
	} else {
		checks["store"] = "ok"
	}

	if s.outbox != nil {
		stats, err := s.outbox.OutboxStats(ctx)
		if err != nil {
			checks["outbox"] = fmt.Sprintf("failed: %v", err)
			ready = false
		} else {
			checks["outbox"] = stats
		}
	}

	checks["category_cache"] = s.ledger.CacheStats()
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	NewResponse().
		Status(code).
		With("success", ready).
		With("status", status).
		With("timestamp", time.Now().UTC().Format(time.RFC3339)).
		With("checks", checks).
		Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	cacheStats := s.ledger.CacheStats()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("category_cache_hits_total", "counter", "Category cache hits", cacheStats.Hits)
	metric("category_cache_misses_total", "counter", "Category cache misses", cacheStats.Misses)
	metric("category_cache_entries", "gauge", "Category cache entries", cacheStats.Size)

	if s.outbox != nil {
		if stats, err := s.outbox.OutboxStats(r.Context()); err == nil {
			fmt.Fprintf(w, "# HELP outbox_events Outbox events by status\n# TYPE outbox_events gauge\n")
			fmt.Fprintf(w, "outbox_events{status=\"pending\"} %d\n", stats.Pending)
			fmt.Fprintf(w, "outbox_events{status=\"processing\"} %d\n", stats.Processing)
			fmt.Fprintf(w, "outbox_events{status=\"published\"} %d\n", stats.Published)
			fmt.Fprintf(w, "outbox_events{status=\"failed\"} %d\n\n", stats.Failed)
		}
	}

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}
