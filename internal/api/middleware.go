package api

import (
	"net/http"

	"go.uber.org/zap"
)

// recoverPanics turns a handler panic into a 500 so one bad request cannot
// take the process down.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			s.logger.Error("panic recovered in HTTP handler",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			if s.metrics != nil {
				s.metrics.RecordPanicRecovered("http")
			}
			writeResult(w, internal())
		}()

		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects requests with 429 once the shared token bucket is empty.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("client", r.RemoteAddr))
			if s.metrics != nil {
				s.metrics.RecordRateLimitHit("http")
			}
			writeResult(w, rateLimited())
			return
		}
		next.ServeHTTP(w, r)
	})
}
