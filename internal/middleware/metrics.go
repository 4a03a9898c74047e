package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/voicedrop/backend/internal/metrics"
)

// Metrics records request counts and durations labelled by route pattern.
// Register it directly around the mux: the pattern is only populated on the
// request value the mux serves, and outer middlewares clone the request.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w}

			next.ServeHTTP(wrapped, r)

			pattern := r.Pattern
			if pattern == "" {
				pattern = "unmatched"
			}
			status := strconv.Itoa(wrapped.Status())
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		})
	}
}
