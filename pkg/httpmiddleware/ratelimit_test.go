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

func limited(t *testing.T, max int, opts ...func(*RateLimitConfig)) http.Handler {
	t.Helper()
	cfg := RateLimitConfig{Max: max, Window: time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	return RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(handler http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	handler := limited(t, 5)

	for i := range 5 {
		w := hit(handler, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	handler := limited(t, 2)

	for range 2 {
		w := hit(handler, "10.0.0.1:9999", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := hit(handler, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_PerKeyIsolation(t *testing.T) {
	handler := limited(t, 1)

	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.2:1234", nil).Code)
	// Same IP, different port: still the same bucket.
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "10.0.0.1:5678", nil).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	handler := limited(t, 1, func(cfg *RateLimitConfig) {
		cfg.KeyFunc = func(r *http.Request) string { return r.Header.Get("X-Terminal-ID") }
	})

	assert.Equal(t, http.StatusOK, hit(handler, "", map[string]string{"X-Terminal-ID": "pos-01"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "", map[string]string{"X-Terminal-ID": "pos-01"}).Code)
	assert.Equal(t, http.StatusOK, hit(handler, "", map[string]string{"X-Terminal-ID": "pos-02"}).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	handler := limited(t, 1)
	xff := map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}

	assert.Equal(t, http.StatusOK, hit(handler, "192.168.1.1:4444", xff).Code)
	// Different RemoteAddr, same first forwarded hop: same bucket.
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "192.168.1.2:5555", xff).Code)
}

func TestRateLimit_WindowRotation(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	_, _, ok := rl.allow("k", start)
	require.True(t, ok)
	_, _, ok = rl.allow("k", start)
	require.True(t, ok)
	_, _, ok = rl.allow("k", start)
	require.False(t, ok)

	// Right at rotation the previous window still weighs in at full weight.
	_, _, ok = rl.allow("k", start.Add(time.Minute))
	assert.False(t, ok)

	// Two full windows later everything has aged out.
	_, _, ok = rl.allow("k", start.Add(3*time.Minute))
	assert.True(t, ok)
}

func TestRateLimit_Prune(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Now()

	rl.allow("old", now.Add(-5*time.Minute))
	rl.allow("fresh", now)
	rl.prune(now)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "old")
	assert.Contains(t, rl.visitors, "fresh")
}
