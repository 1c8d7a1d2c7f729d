// Package ratelimit applies a fixed-window request cap per client key.
// The moderation engine already rate-senses message behavior per user; this
// layer protects the HTTP surface itself from a single hot client.
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// Config defines the request cap. Zero values disable limiting.
type Config struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// Enabled reports whether the config describes an active limit.
func (c Config) Enabled() bool { return c.MaxRequests > 0 && c.Window > 0 }

// CheckResult is the outcome of one rate limit check.
type CheckResult struct {
	Exceeded bool
	Current  int
	Limit    int
	Reason   string
}

type window struct {
	start time.Time
	count int
}

// Limiter tracks request counts per key over fixed windows. A key's counter
// resets when its window expires; stale keys are dropped opportunistically.
type Limiter struct {
	mu        sync.Mutex
	cfg       Config
	windows   map[string]*window
	lastPrune time.Time
	now       func() time.Time
}

// New creates a limiter. A disabled config yields a limiter that always
// admits.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// SetClock overrides the limiter's clock. Test hook.
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// Allow checks and counts one request for the key.
func (l *Limiter) Allow(key string) CheckResult {
	if !l.cfg.Enabled() {
		return CheckResult{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.cfg.Window {
		w = &window{start: now}
		l.windows[key] = w
	}

	if w.count >= l.cfg.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Current:  w.count,
			Limit:    l.cfg.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				w.count, l.cfg.MaxRequests, l.cfg.Window),
		}
	}

	w.count++
	return CheckResult{Current: w.count, Limit: l.cfg.MaxRequests}
}

// pruneLocked drops expired windows at most once per window length.
func (l *Limiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.cfg.Window {
		return
	}
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.cfg.Window {
			delete(l.windows, key)
		}
	}
	l.lastPrune = now
}

// Middleware rejects over-limit requests with 429. The client key is the
// remote IP; behind a proxy, mount chi's RealIP middleware first.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				key = r.RemoteAddr
			}
			if res := l.Allow(key); res.Exceeded {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(l.cfg.Window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":%q}`+"\n", res.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
