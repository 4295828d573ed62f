package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store counts requests per key over a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// RateLimitConfig configures the rate limit middleware.
type RateLimitConfig struct {
	// Max requests per Window.
	Max    int
	Window time.Duration
	// KeyFunc extracts the client key; the client IP by default.
	KeyFunc func(*http.Request) string
	// Store defaults to a process-local MemoryStore.
	Store Store
}

// RateLimit enforces cfg. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset; rejected requests get 429 with
// Retry-After. When the store fails the request is let through and the
// failure logged.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(cfg.Max, cfg.Window)
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d, err := cfg.Store.Allow(r.Context(), cfg.KeyFunc(r), now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limit store failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := max(d.ResetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by the first X-Forwarded-For hop, then X-Real-IP,
// then the connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
