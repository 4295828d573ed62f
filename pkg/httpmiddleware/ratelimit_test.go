package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/quote", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := hit(h, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:9999", nil).Code)
	}

	w := hit(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var (
		code int
		msg  string
	)
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Int()
		case "message":
			msg, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}))
	assert.Equal(t, 429, code)
	assert.Equal(t, "rate limit exceeded", msg)
}

func TestRateLimit_KeyedPerClient(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:5678", nil).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-Session") },
	})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "", map[string]string{"X-Session": "a"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "", map[string]string{"X-Session": "a"}).Code)
	assert.Equal(t, http.StatusOK, hit(h, "", map[string]string{"X-Session": "b"}).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
	xff := map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}

	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:4444", xff).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.2:5555", xff).Code)
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, time.Time) (Decision, error) {
	return Decision{}, errors.New("redis: connection refused")
}

func TestRateLimit_StoreFailureFailsOpen(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, Store: failingStore{}})(okHandler())

	for range 3 {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
	}
}

func TestMemoryStore_Sliding(t *testing.T) {
	s := NewMemoryStore(4, time.Minute)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 4 {
		d, err := s.Allow(ctx, "k", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, d.Allowed)
		assert.Equal(t, 3-i, d.Remaining)
	}
	d, err := s.Allow(ctx, "k", base.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, base.Add(time.Minute), d.ResetAt)

	// Halfway through the next window, half of the previous count remains.
	d, err = s.Allow(ctx, "k", base.Add(90*time.Second))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	// Two idle windows later the key starts fresh.
	d, err = s.Allow(ctx, "k", base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, d.Remaining)
}

func TestMemoryStore_Sweep(t *testing.T) {
	s := NewMemoryStore(1, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Allow(context.Background(), "k", now)
	require.NoError(t, err)
	s.Sweep(now.Add(time.Minute))
	assert.Len(t, s.windows, 1)
	s.Sweep(now.Add(2 * time.Minute))
	assert.Empty(t, s.windows)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "printshop:rl:", 2, time.Minute)
	ctx := context.Background()
	now := time.Now()

	for i := range 2 {
		d, err := s.Allow(ctx, "10.0.0.1", now.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
	}
	d, err := s.Allow(ctx, "10.0.0.1", now.Add(2*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, mr.Exists("printshop:rl:10.0.0.1"))

	// Entries older than the window are trimmed.
	d, err = s.Allow(ctx, "10.0.0.1", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Behind the middleware, another replica sharing the store sees the same count.
	h1 := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, Store: NewRedisStore(client, "shared:", 1, time.Minute)})(okHandler())
	h2 := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, Store: NewRedisStore(client, "shared:", 1, time.Minute)})(okHandler())
	assert.Equal(t, http.StatusOK, hit(h1, "10.9.9.9:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h2, "10.9.9.9:2", nil).Code)
}
