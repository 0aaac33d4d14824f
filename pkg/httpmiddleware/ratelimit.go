package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per Window. Zero or less
	// disables limiting.
	Max    int
	Window time.Duration
	// Key extracts the limited identity from a request. Nil means ClientIP.
	Key func(*http.Request) string
}

// window holds the request counts of the current and previous fixed
// windows of one key.
type window struct {
	start time.Time
	curr  int
	prev  int
}

// Limiter approximates a sliding window by weighting the previous fixed
// window by its overlap with the sliding one.
type Limiter struct {
	max    int
	period time.Duration
	key    func(*http.Request) string

	mu   sync.Mutex
	keys map[string]*window
}

// NewLimiter returns a Limiter for cfg.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	key := cfg.Key
	if key == nil {
		key = ClientIP
	}
	return &Limiter{
		max:    cfg.Max,
		period: cfg.Window,
		key:    key,
		keys:   make(map[string]*window),
	}
}

// Allow records a request by key at now. It reports whether the request is
// within the limit, how many requests remain and when the current window
// ends.
func (l *Limiter) Allow(key string, now time.Time) (ok bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.period)
	w, found := l.keys[key]
	switch {
	case !found:
		w = &window{start: start}
		l.keys[key] = w
	case start.Sub(w.start) >= 2*l.period:
		*w = window{start: start}
	case start.After(w.start):
		*w = window{start: start, prev: w.curr}
	}

	reset = start.Add(l.period)
	weight := 1 - float64(now.Sub(start))/float64(l.period)
	used := int(math.Floor(float64(w.prev)*weight)) + w.curr
	if used >= l.max {
		return false, 0, reset
	}
	w.curr++
	return true, l.max - used - 1, reset
}

// Sweep drops keys that have been idle for two windows.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, w := range l.keys {
		if now.Sub(w.start) >= 2*l.period {
			delete(l.keys, k)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// Middleware enforces the limit. Limited requests get 429 with Retry-After;
// every response carries the X-RateLimit-* headers.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if l.max <= 0 || l.period <= 0 {
			return next
		}
		limit := strconv.Itoa(l.max)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ok, remaining, reset := l.Allow(l.key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				retry := int(math.Ceil(reset.Sub(now).Seconds()))
				h.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit limits requests per key without evicting idle keys.
func RateLimit(cfg RateLimitConfig) Middleware {
	return NewLimiter(cfg).Middleware()
}

// RateLimitWithCleanup is RateLimit plus a goroutine that sweeps idle keys
// every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg)
	if cfg.Window > 0 {
		go func() {
			t := time.NewTicker(2 * cfg.Window)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-t.C:
					l.Sweep(now)
				}
			}
		}()
	}
	return l.Middleware()
}

// KeyByHeader limits by the value of header, falling back to ClientIP when
// the header is absent. Used to limit per API key.
func KeyByHeader(header string) func(*http.Request) string {
	return func(r *http.Request) string {
		if v := r.Header.Get(header); v != "" {
			return header + ":" + v
		}
		return ClientIP(r)
	}
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
