// Package ratelimit implements a fixed-window per-client request limiter.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"expensehub/internal/metrics"
)

const window = time.Minute

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	// StaleAfter is how long an idle client is remembered.
	StaleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
		StaleAfter:        10 * time.Minute,
	}
}

type bucket struct {
	opened time.Time
	count  int
}

// Limiter counts requests per client in one-minute windows.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter fills zero Config fields from DefaultConfig. Idle clients are
// only forgotten while Cleanup runs.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	return &Limiter{cfg: config, now: time.Now, buckets: make(map[string]*bucket)}
}

// Allow reports whether a request from client fits in its current window.
func (rl *Limiter) Allow(client string) bool {
	ok, _ := rl.take(client)
	return ok
}

// take counts one request and returns, when it is refused, how long until
// the client's window reopens.
func (rl *Limiter) take(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b := rl.buckets[client]
	if b == nil || now.Sub(b.opened) >= window {
		rl.buckets[client] = &bucket{opened: now, count: 1}
		return true, 0
	}
	b.count++
	if b.count <= rl.cfg.RequestsPerMinute {
		return true, 0
	}
	return false, window - now.Sub(b.opened)
}

// Cleanup forgets idle clients every CleanupInterval until ctx is done.
func (rl *Limiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanupStaleEntries()
		}
	}
}

func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.cfg.StaleAfter)
	for client, b := range rl.buckets {
		if b.opened.Before(cutoff) {
			delete(rl.buckets, client)
		}
	}
}

// ActiveClients is the number of clients currently tracked.
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Middleware limits form posts and mobile uploads. GET and HEAD are never
// counted. Refused requests get 429 with Retry-After in whole seconds.
func (rl *Limiter) Middleware(clientOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := rl.take(clientOf(r))
			if !ok {
				metrics.ObserveRateLimited()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				http.Error(w, "Too many requests, retry later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
