// Package ratelimit throttles ledger writes per client with one-minute
// fixed windows.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	windowLength = time.Minute
	staleAfter   = 10 * time.Minute
)

// window counts requests of one client since start.
type window struct {
	start    time.Time
	lastSeen time.Time
	count    int
}

// take records a request at now and reports whether it fits in limit.
func (w *window) take(now time.Time, limit int) bool {
	w.lastSeen = now
	if now.Sub(w.start) >= windowLength {
		w.start = now
		w.count = 0
	}
	w.count++
	return w.count <= limit
}

// resetIn is the number of whole seconds until the window rolls over.
func (w *window) resetIn(now time.Time) int {
	left := windowLength - now.Sub(w.start)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 60, CleanupInterval: 5 * time.Minute}
}

// Limiter keeps a window per client key. Idle clients are forgotten by a
// background sweep until Stop is called.
type Limiter struct {
	limit int
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	rejected atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	rl := &Limiter{
		limit:   cfg.RequestsPerMinute,
		now:     time.Now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	go rl.sweep(cfg.CleanupInterval)
	return rl
}

// Allow records one request for key and reports whether it is within limit.
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	w, ok := rl.windows[key]
	if !ok {
		w = &window{start: now}
		rl.windows[key] = w
	}
	allowed := w.take(now, rl.limit)
	rl.mu.Unlock()

	if !allowed {
		rl.rejected.Add(1)
	}
	return allowed
}

// RetryAfter returns the seconds until key may write again; 0 for unknown keys.
func (rl *Limiter) RetryAfter(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if w, ok := rl.windows[key]; ok {
		return w.resetIn(rl.now())
	}
	return 0
}

func (rl *Limiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanupStaleEntries()
		}
	}
}

func (rl *Limiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-staleAfter)
	n := 0
	for key, w := range rl.windows {
		if w.lastSeen.Before(cutoff) {
			delete(rl.windows, key)
			n++
		}
	}
	return n
}

func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

type Metrics struct {
	TotalHits   int64 `json:"totalHits"`
	ClientCount int64 `json:"clientCount"`
}

func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{TotalHits: rl.rejected.Load(), ClientCount: int64(rl.ActiveClients())}
}

// Middleware rejects requests over the limit with a Retry-After header.
// onLimit writes the rejection body; nil sends a plain 429.
func (rl *Limiter) Middleware(keyOf func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyOf(r)
			if rl.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(rl.RetryAfter(key), 1)))
			if onLimit == nil {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			onLimit(w, r)
		})
	}
}
