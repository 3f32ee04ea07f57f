package api

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id. A client supplied value is kept,
// otherwise one is generated.
const RequestIDHeader = "X-Request-Id"

// observe records Prometheus metrics and a log line for every request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)

		if s.metrics != nil {
			s.metrics.HTTPRequestInFlight.Inc()
			defer s.metrics.HTTPRequestInFlight.Dec()
		}

		m := httpsnoop.CaptureMetrics(next, w, r)

		route := s.routeLabel(r.URL.Path)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(route, strconv.Itoa(m.Code), m.Duration)
		}

		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Int64("bytes", m.Written),
			zap.Duration("duration", m.Duration),
			zap.String("remote", r.RemoteAddr),
		}
		if s.slowThreshold > 0 && m.Duration > s.slowThreshold {
			s.logger.Warn("slow request detected", fields...)
			return
		}
		s.logger.Debug("request served", fields...)
	})
}

// routeLabel bounds metric label cardinality to the known routes.
func (s *Server) routeLabel(path string) string {
	if _, ok := s.routes[path]; ok {
		return path
	}
	return "unmatched"
}
