package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per minute per merchant, or per client IP for
// requests that carry no merchant.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(keyByMerchantOrIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limit")
		}),
	)
}

func keyByMerchantOrIP(r *http.Request) (string, error) {
	if merchantID, ok := GetMerchantID(r.Context()); ok && merchantID != "" {
		return "merchant:" + merchantID, nil
	}
	return httprate.KeyByIP(r)
}
