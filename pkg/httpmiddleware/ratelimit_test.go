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

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func send(h http.Handler, remoteAddr string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	clock := &fakeClock{now: t0}
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute, Now: clock.Now})(okHandler())

	w := send(h, "10.0.0.1:1000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	w = send(h, "10.0.0.1:1001")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = send(h, "10.0.0.1:1002")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])

	// Halfway into the next window the previous count weighs 50%.
	clock.Advance(90 * time.Second)
	w = send(h, "10.0.0.1:1003")
	require.Equal(t, http.StatusOK, w.Code)
	w = send(h, "10.0.0.1:1004")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	clock.Advance(5 * time.Minute)
	w = send(h, "10.0.0.1:1005")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name    string
		keyFunc func(*http.Request) string
		first   []string
		second  []string
		limited bool
	}{
		{
			name:    "different peers",
			first:   []string{"10.0.0.1:1"},
			second:  []string{"10.0.0.2:1"},
			limited: false,
		},
		{
			name:    "same peer different port",
			first:   []string{"10.0.0.1:1"},
			second:  []string{"10.0.0.1:2"},
			limited: true,
		},
		{
			name:    "forwarded for first hop",
			first:   []string{"192.168.1.1:1", "X-Forwarded-For", "203.0.113.50, 70.41.3.18"},
			second:  []string{"192.168.1.2:1", "X-Forwarded-For", "203.0.113.50"},
			limited: true,
		},
		{
			name:    "real ip header",
			first:   []string{"192.168.1.1:1", "X-Real-IP", "198.51.100.7"},
			second:  []string{"192.168.1.2:1", "X-Real-IP", "198.51.100.8"},
			limited: false,
		},
		{
			name:    "api keys share an address",
			keyFunc: HeaderOrIP("X-API-Key"),
			first:   []string{"10.0.0.1:1", "X-API-Key", "key-a"},
			second:  []string{"10.0.0.1:1", "X-API-Key", "key-b"},
			limited: false,
		},
		{
			name:    "same api key from two addresses",
			keyFunc: HeaderOrIP("X-API-Key"),
			first:   []string{"10.0.0.1:1", "X-API-Key", "key-a"},
			second:  []string{"10.0.0.2:1", "X-API-Key", "key-a"},
			limited: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: t0}
			h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: tt.keyFunc, Now: clock.Now})(okHandler())

			require.Equal(t, http.StatusOK, send(h, tt.first[0], tt.first[1:]...).Code)
			w := send(h, tt.second[0], tt.second[1:]...)
			if tt.limited {
				assert.Equal(t, http.StatusTooManyRequests, w.Code)
			} else {
				assert.Equal(t, http.StatusOK, w.Code)
			}
		})
	}
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	_, _, ok := l.take("a", t0)
	require.True(t, ok)
	_, _, ok = l.take("b", t0.Add(90*time.Second))
	require.True(t, ok)

	l.evict(t0.Add(2 * time.Minute))
	assert.Equal(t, 1, l.size(), "only the idle client is evicted")
}
