package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, prepare func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/sales", nil)
	if prepare != nil {
		prepare(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func fromAddr(addr string) func(*http.Request) {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for i := range 2 {
		w := serve(h, fromAddr("10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve(h, fromAddr("10.0.0.1:1111"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, "rate limit exceeded", body.Message)

	assert.Equal(t, http.StatusOK, serve(h, fromAddr("10.0.0.2:1234")).Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(okHandler())
	for range 10 {
		w := serve(h, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_KeyByHeader(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		Key:    KeyByHeader("api_key"),
	})(okHandler())
	withKey := func(k string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("api_key", k) }
	}

	assert.Equal(t, http.StatusOK, serve(h, withKey("key-a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, withKey("key-a")).Code)
	assert.Equal(t, http.StatusOK, serve(h, withKey("key-b")).Code)
	// No header: limited by address.
	assert.Equal(t, http.StatusOK, serve(h, fromAddr("10.1.1.1:80")).Code)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := NewLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	for i := range 4 {
		ok, remaining, reset := l.Allow("k", start.Add(time.Duration(i)*time.Second))
		require.True(t, ok)
		assert.Equal(t, 3-i, remaining)
		assert.Equal(t, start.Add(time.Minute), reset)
	}
	ok, _, _ := l.Allow("k", start.Add(59*time.Second))
	assert.False(t, ok)

	// A quarter into the next window, 3 of the previous 4 still count.
	ok, remaining, _ := l.Allow("k", start.Add(75*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)
	ok, _, _ = l.Allow("k", start.Add(75*time.Second))
	assert.False(t, ok)

	// Two idle windows reset the key.
	ok, remaining, _ = l.Allow("k", start.Add(4*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	l.Allow("a", now)
	l.Allow("b", now.Add(2*time.Minute))
	require.Equal(t, 2, l.Len())

	l.Sweep(now.Add(2 * time.Minute))
	assert.Equal(t, 1, l.Len())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded list", headers: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, remote: "192.168.1.1:4444", want: "203.0.113.50"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "192.168.1.1:4444", want: "198.51.100.7"},
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "remote without port", remote: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}
