package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/forgestack/mindvault/internal/api/response"
	"github.com/forgestack/mindvault/internal/store"
)

const defaultRequestsPerMinute = 60

// RateLimit provides per-user sliding-window rate limiting backed by the
// job store's counter primitive.
type RateLimit struct {
	store          store.Store
	requestsPerMin int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(st store.Store, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{store: st, requestsPerMin: requestsPerMin}
}

// Limit applies rate limiting keyed by the user ID set by auth middleware.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r)
		if !ok {
			// No user means auth middleware didn't run; pass through.
			next.ServeHTTP(w, r)
			return
		}

		key := store.RateLimitKey(userID)
		count, err := rl.store.IncrWithExpiry(r.Context(), key, 60*time.Second)
		if err != nil {
			// On store error, allow the request (fail open).
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(60 * time.Second).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
