package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/columbushq/columbus/internal/api/response"
	"github.com/columbushq/columbus/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	throttleWindow           = time.Minute
)

// RateLimit throttles dashboard API calls per key. This is separate from
// the assistant budget limiter: exceeding it rejects the HTTP request, it
// never blocks.
type RateLimit struct {
	cache cache.Cache
	limit int
}

func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, limit: requestsPerMin}
}

// Limit counts requests per key prefix in fixed one-minute windows.
// Requests without a key prefix pass through untouched, as do requests
// when Redis is unreachable.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(prefix), throttleWindow)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		rl.setHeaders(w, count)
		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(throttleWindow.Seconds())))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) setHeaders(w http.ResponseWriter, count int64) {
	remaining := rl.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(throttleWindow).Unix(), 10))
}
