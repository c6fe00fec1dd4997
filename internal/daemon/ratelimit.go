package daemon

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/fracquest/internal/progress"
)

// newWriteLimiter allows perMinute progress writes per key, with the
// full minute available as a burst.
func newWriteLimiter(perMinute int) ratelimit.RateLimiter {
	return ratelimit.New(&ratelimit.Config{
		Rate:     perMinute,
		Burst:    perMinute,
		Interval: time.Minute,
	})
}

// limitWrites wraps a progress-writing handler. Requests are keyed by
// student, falling back to the client address for anonymous play.
func (s *Server) limitWrites(next http.HandlerFunc) http.HandlerFunc {
	if s.writes == nil {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		key := writerKey(r)
		if !s.writes.Allow(r.Context(), key) {
			slog.Warn("write rate limit exceeded",
				"key", key,
				"path", r.URL.Path,
				"correlation_id", GetCorrelationID(r.Context()),
			)
			w.Header().Set("Retry-After", "60")
			s.jsonError(w, http.StatusTooManyRequests, "too many progress writes, slow down", nil)
			return
		}
		next(w, r)
	}
}

func writerKey(r *http.Request) string {
	if id, ok := progress.UserIDFromContext(r.Context()); ok {
		return "user:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
