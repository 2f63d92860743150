package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"famledger/internal/auth"
	"famledger/internal/ledger"
	"famledger/internal/log"
	"famledger/internal/middleware/ratelimit"
	"famledger/internal/middleware/security"
	"famledger/internal/middleware/trace"
	"famledger/internal/services"
)

// Options configures the API server. Outbox is optional and only feeds
// readiness and metrics.
type Options struct {
	Addr      string
	Ledger    *services.LedgerService
	Tokens    *auth.Tokens
	Outbox    ledger.Outbox
	Logger    *log.Logger
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server
	ledger *services.LedgerService
	tokens *auth.Tokens
	outbox ledger.Outbox
	logger *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		ledger:           opts.Ledger,
		tokens:           opts.Tokens,
		outbox:           opts.Outbox,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		started:          time.Now(),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/transactions", s.handleListTransactions)
	api.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	api.HandleFunc("POST /api/transactions/transfer", s.handleTransfer)
	api.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	api.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	api.HandleFunc("GET /api/debts", s.handleListDebts)
	api.HandleFunc("POST /api/debts", s.handleCreateDebt)
	api.HandleFunc("GET /api/debts/{id}", s.handleGetDebt)
	api.HandleFunc("PUT /api/debts/{id}", s.handleUpdateDebt)
	api.HandleFunc("DELETE /api/debts/{id}", s.handleDeleteDebt)
	api.HandleFunc("POST /api/debts/{id}/payments", s.handleAddPayment)

	api.HandleFunc("GET /api/accounts", s.handleListAccounts)
	api.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	api.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	api.HandleFunc("GET /api/accounts/{id}/balance", s.handleAccountBalance)
	api.HandleFunc("DELETE /api/accounts/{id}", s.handleDeactivateAccount)

	api.HandleFunc("GET /api/categories", s.handleListCategories)
	api.HandleFunc("POST /api/categories", s.handleCreateCategory)

	api.HandleFunc("GET /api/ledger/reconcile", s.handleReconcile)

	api.HandleFunc("/api/", s.handleNotFound)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)
	root.HandleFunc("GET /metrics", s.handleMetrics)
	root.Handle("/api/", s.tokens.Middleware(api))
	root.HandleFunc("/", s.handleNotFound)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.chain(root),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// chain wraps h with the middleware stack, outermost first: logger,
// security headers, probe detection, tracing, then rate limiting of writes.
func (s *Server) chain(h http.Handler) http.Handler {
	h = s.limitWrites(h)
	h = s.traceMiddleware.Middleware(h)
	h = s.securityDetector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.Middleware(s.logger)(h)
	return h
}

// limitWrites applies the rate limiter to mutating requests only.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.writeRateLimited)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	NewResponse().
		Status(http.StatusTooManyRequests).
		With("success", false).
		With("error", "rate limit exceeded, please try again later").
		With("kind", "rate_limited").
		Write(w)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	NewResponse().
		Status(http.StatusNotFound).
		With("success", false).
		With("error", "route not found").
		With("kind", "not_found").
		Write(w)
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
