package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/ideahub/internal/api/response"
	"github.com/kiranshivaraju/ideahub/internal/ratelimit"
)

// RateLimit enforces each key's hourly request budget for one endpoint.
type RateLimit struct {
	limiter  *ratelimit.Limiter
	endpoint string
}

// NewRateLimit creates a new RateLimit middleware counting under endpoint.
func NewRateLimit(l *ratelimit.Limiter, endpoint string) *RateLimit {
	return &RateLimit{limiter: l, endpoint: endpoint}
}

// Limit consumes one unit for the key set by Authenticate.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, ok := GetKeyRecord(r)
		if !ok {
			// Authenticate did not run; nothing to count against.
			next.ServeHTTP(w, r)
			return
		}

		d, err := rl.limiter.Consume(r.Context(), rec.KeyID, rl.endpoint, rec.RateLimitPerHour)
		if err != nil {
			// Fail open when the counter backend is unavailable.
			slog.Warn("rate limit check failed", "key_id", rec.KeyID, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

		if !d.Allowed {
			rateLimited.Inc()
			retry := int(d.RetryAfter(rl.limiter.Now()).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			response.Error(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ThrottleIP rejects clients that exceed t's per-address rate. A nil t
// disables throttling.
func ThrottleIP(t *ratelimit.IPThrottle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if t == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				response.Error(w, http.StatusTooManyRequests, "Too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
