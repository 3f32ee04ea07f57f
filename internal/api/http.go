package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/heysubinoy/pyazkv/pkg/kv"
	"github.com/heysubinoy/pyazkv/pkg/metrics"
)

// Route paths served by Server.
const (
	PathSet    = "/set"
	PathGet    = "/get"
	PathDelete = "/delete"
)

// Server wraps a kv.Store and exposes HTTP endpoints for KV operations.
type Server struct {
	Store kv.Store

	logger        *zap.Logger
	metrics       *metrics.Metrics
	limiter       *rate.Limiter
	maxValueBytes int64
	slowThreshold time.Duration

	routes map[string]route
}

// ServerOption configures a Server.
type ServerOption func(s *Server)

// WithLogger sets the logger used for request and error logs.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request metrics on m.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithRateLimiter rejects requests with 429 when limiter has no tokens.
func WithRateLimiter(limiter *rate.Limiter) ServerOption {
	return func(s *Server) { s.limiter = limiter }
}

// WithMaxValueBytes bounds the size of a set request body. Zero means unbounded.
func WithMaxValueBytes(n int64) ServerOption {
	return func(s *Server) { s.maxValueBytes = n }
}

// WithSlowRequestThreshold logs requests slower than d at warn level.
func WithSlowRequestThreshold(d time.Duration) ServerOption {
	return func(s *Server) { s.slowThreshold = d }
}

// NewServer creates a new HTTP server with the given store.
func NewServer(store kv.Store, opts ...ServerOption) *Server {
	s := &Server{
		Store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes = map[string]route{
		PathSet:    {methods: []string{http.MethodPost, http.MethodPut}, handle: s.handleSet},
		PathGet:    {methods: []string{http.MethodGet}, handle: s.handleGet},
		PathDelete: {methods: []string{http.MethodDelete, http.MethodPost}, handle: s.handleDelete},
	}
	return s
}

// RegisterRoutes registers all KV handlers on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	for path, rt := range s.routes {
		mux.Handle(path, s.dispatch(rt))
	}
}

// Handler returns the full HTTP handler: the KV routes wrapped in request
// observation, panic recovery and rate limiting.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = s.recoverPanics(h)
	h = s.observe(h)
	return h
}

// route is one entry of the routing table. Every route takes a required
// ?key parameter which is validated before the method is checked.
type route struct {
	methods []string
	handle  func(r *http.Request, key string) result
}

func (rt route) allows(method string) bool {
	for _, m := range rt.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (s *Server) dispatch(rt route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, res, ok := requireKey(r)
		if !ok {
			writeResult(w, res)
			return
		}

		if !rt.allows(r.Method) {
			for _, m := range rt.methods {
				w.Header().Add("Allow", m)
			}
			writeResult(w, methodNotAllowed())
			return
		}

		if s.maxValueBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxValueBytes)
		}
		writeResult(w, rt.handle(r, key))
	})
}

// requireKey extracts the ?key parameter, which must be present and non-empty.
func requireKey(r *http.Request) (string, result, bool) {
	values, present := r.URL.Query()["key"]
	if !present {
		return "", invalid("missing ?key"), false
	}
	if values[0] == "" {
		return "", invalid("?key must not be empty"), false
	}
	return values[0], result{}, true
}

// handleSet handles POST /set?key=foo[&expire=unixms] with the raw value as body.
func (s *Server) handleSet(r *http.Request, key string) result {
	expireAt, err := parseExpire(r.URL.Query().Get("expire"))
	if err != nil {
		return invalid("?expire must be an integer")
	}

	value, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return result{
				outcome: outcomeTooLarge,
				body:    fmt.Sprintf("value exceeds %s", humanize.IBytes(uint64(tooLarge.Limit))),
			}
		}
		s.logger.Error("couldn't read value", zap.String("key", key), zap.Error(err))
		return internal()
	}

	if expireAt.IsZero() {
		err = s.Store.Set(key, string(value))
	} else {
		err = s.Store.SetWithExpiry(key, string(value), expireAt)
	}
	if err != nil {
		s.logger.Error("couldn't set key", zap.String("key", key), zap.Error(err))
		return internal()
	}
	return success("")
}

// handleGet handles GET /get?key=foo.
// Returns the value as plain text or 404 when the key is absent.
func (s *Server) handleGet(r *http.Request, key string) result {
	value, found := s.Store.Get(key)
	if !found {
		return result{outcome: outcomeNotFound, body: "key not found"}
	}
	return success(value)
}

// handleDelete handles DELETE /delete?key=foo. Deleting an absent key succeeds.
func (s *Server) handleDelete(r *http.Request, key string) result {
	if err := s.Store.Delete(key); err != nil {
		s.logger.Error("couldn't delete key", zap.String("key", key), zap.Error(err))
		return internal()
	}
	return success("")
}

// parseExpire parses an absolute expiry in unix milliseconds.
// An empty string means no expiry and yields the zero time.
func parseExpire(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
