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

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(cfg LimiterConfig) (*Limiter, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = c.now
	return l, c
}

func hit(h http.Handler, configure func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if configure != nil {
		configure(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLimiter_Budget(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{Max: 3, Window: time.Minute})
	h := l.Middleware()(okHandler())

	for i, want := range []string{"2", "1", "0"} {
		w := hit(h, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, w.Header().Get("X-RateLimit-Remaining"))
	}

	w := hit(h, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l, c := newTestLimiter(LimiterConfig{Max: 4, Window: time.Minute})
	h := l.Middleware()(okHandler())

	for range 4 {
		require.Equal(t, http.StatusOK, hit(h, nil).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, hit(h, nil).Code)

	// Halfway into the next window half of the previous budget still counts.
	c.t = c.t.Add(90 * time.Second)
	for range 2 {
		require.Equal(t, http.StatusOK, hit(h, nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(h, nil).Code)

	// Two idle windows reset the client entirely.
	c.t = c.t.Add(3 * time.Minute)
	w := hit(h, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Remaining"))
}

func TestLimiter_SessionOrIP(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{
		Max:    1,
		Window: time.Minute,
		Key:    SessionOrIP("storefront_session"),
	})
	h := l.Middleware()(okHandler())
	withCookie := func(v string) func(*http.Request) {
		return func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "storefront_session", Value: v})
		}
	}

	// Two shoppers behind one address have separate budgets.
	assert.Equal(t, http.StatusOK, hit(h, withCookie("alice")).Code)
	assert.Equal(t, http.StatusOK, hit(h, withCookie("bob")).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, withCookie("alice")).Code)

	// Cookieless requests share the address budget.
	assert.Equal(t, http.StatusOK, hit(h, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, nil).Code)
	assert.Equal(t, 3, l.Len())
}

func TestLimiter_Skip(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{
		Max:    1,
		Window: time.Minute,
		Skip:   SkipPaths("/livez", "/readyz"),
	})
	h := l.Middleware()(okHandler())

	for range 3 {
		w := hit(h, func(r *http.Request) { r.URL.Path = "/readyz" })
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_Evict(t *testing.T) {
	l, c := newTestLimiter(LimiterConfig{Max: 5, Window: time.Minute})
	h := l.Middleware()(okHandler())

	hit(h, nil)
	hit(h, func(r *http.Request) { r.RemoteAddr = "10.0.0.2:1" })
	require.Equal(t, 2, l.Len())

	l.evict(c.t.Add(time.Minute))
	assert.Equal(t, 2, l.Len())
	l.evict(c.t.Add(2 * time.Minute))
	assert.Equal(t, 0, l.Len())
}

func TestClientIP(t *testing.T) {
	for _, tt := range []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "RemoteAddr", remote: "192.0.2.7:4000", want: "192.0.2.7"},
		{name: "BareRemoteAddr", remote: "192.0.2.7", want: "192.0.2.7"},
		{name: "ForwardedFirstHop", header: map[string]string{"X-Forwarded-For": " 203.0.113.9 , 10.0.0.1"}, remote: "10.0.0.1:1", want: "203.0.113.9"},
		{name: "RealIP", header: map[string]string{"X-Real-IP": "198.51.100.4"}, remote: "10.0.0.1:1", want: "198.51.100.4"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
