package httpmiddleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, body []byte) (code, message string) {
	t.Helper()
	require.NoError(t, jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Str()
		case "message":
			message, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}))
	return code, message
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(h, requestFrom("192.168.1.1:12345"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(h, requestFrom("10.0.0.1:9999")).Code)
	}
	w := serve(h, requestFrom("10.0.0.1:9999"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	code, msg := decodeError(t, w.Body.Bytes())
	assert.Equal(t, "rate_limited", code)
	assert.Equal(t, "rate limit exceeded", msg)
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, requestFrom("10.0.0.1:1234")).Code)
	assert.Equal(t, http.StatusOK, serve(h, requestFrom("10.0.0.2:1234")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, requestFrom("10.0.0.1:5678")).Code)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	l := NewLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	l.now = func() time.Time { return now }

	for i := range 4 {
		remaining, _, ok := l.Allow("k")
		require.True(t, ok)
		assert.Equal(t, 3-i, remaining)
	}
	_, _, ok := l.Allow("k")
	require.False(t, ok)

	// Half way into the next window half of the previous count still applies.
	now = start.Add(90 * time.Second)
	for range 2 {
		_, _, ok = l.Allow("k")
		require.True(t, ok)
	}
	_, _, ok = l.Allow("k")
	assert.False(t, ok)

	// Two windows later everything is forgotten.
	now = start.Add(5 * time.Minute)
	remaining, _, ok := l.Allow("k")
	require.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestLimiter_Evict(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(time.Minute)
	l.Allow("b")
	now = now.Add(time.Minute)
	l.evict()

	assert.NotContains(t, l.keys, "a")
	assert.Contains(t, l.keys, "b")
}

func TestRateLimit_KeyedByClientIP(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	withKey := func(addr, key string) *http.Request {
		req := requestFrom(addr)
		req.Header.Set("X-API-Key", key)
		return req
	}

	// Rotating credentials does not buy a fresh bucket.
	assert.Equal(t, http.StatusOK, serve(h, withKey("10.0.0.1:1", "key-a")).Code)
	assert.Equal(t, http.StatusOK, serve(h, withKey("10.0.0.1:2", "key-b")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, withKey("10.0.0.1:3", "key-c")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, requestFrom("10.0.0.1:4")).Code)

	assert.Equal(t, http.StatusOK, serve(h, withKey("10.0.0.2:1", "key-a")).Code)
}

func TestLimiter_RandomKeysShareOneEntry(t *testing.T) {
	l := NewLimiter(RateLimitConfig{Max: 1000, Window: time.Minute})
	h := l.Middleware()(okHandler())

	for i := range 50 {
		req := requestFrom("10.0.0.9:1")
		req.Header.Set("X-API-Key", fmt.Sprintf("random-%d", i))
		serve(h, req)
	}
	assert.Len(t, l.keys, 1)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{name: "RemoteAddr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "NoPort", remote: "192.168.1.1", want: "192.168.1.1"},
		{
			name:    "ForwardedFor",
			remote:  "192.168.1.1:4444",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"},
			want:    "203.0.113.50",
		},
		{
			name:    "RealIP",
			remote:  "192.168.1.1:4444",
			headers: map[string]string{"X-Real-IP": "198.51.100.7"},
			want:    "198.51.100.7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestFrom(tt.remote)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
