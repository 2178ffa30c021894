package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// KeyFunc derives the rate-limit identifier from a request.
type KeyFunc func(r *http.Request) string

// MiddlewareOptions configures the HTTP middleware.
type MiddlewareOptions struct {
	// Category is the traffic category this route group belongs to.
	Category string

	// KeyFn overrides identifier derivation. Default: Identify.
	KeyFn KeyFunc
}

// Middleware rejects over-limit requests with 429 and attaches the standard
// rate-limit headers to every response.
func Middleware(l *Limiter, opts MiddlewareOptions) func(next http.Handler) http.Handler {
	if opts.Category == "" {
		opts.Category = CategoryPublic
	}
	if opts.KeyFn == nil {
		opts.KeyFn = Identify
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.CheckLimit(r.Context(), opts.KeyFn(r), opts.Category)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(res.ResetAfter))

			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter().Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":       "rate limit exceeded",
					"window":      string(res.Window),
					"retry_after": res.ResetAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
