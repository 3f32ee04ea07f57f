// Package server assembles the store, the HTTP API, the gRPC facade and the
// metrics endpoint into one process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/heysubinoy/pyazkv/api/kvpb"
	"github.com/heysubinoy/pyazkv/internal/api"
	"github.com/heysubinoy/pyazkv/internal/store"
	"github.com/heysubinoy/pyazkv/pkg/config"
	"github.com/heysubinoy/pyazkv/pkg/kv"
	"github.com/heysubinoy/pyazkv/pkg/metrics"
)

// Server owns every listener of a single KV node.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	store   *store.MemStore
	janitor *store.Janitor
	metrics *metrics.Metrics

	httpServer    *http.Server
	grpcServer    *grpc.Server
	metricsServer *metrics.Server

	httpLis    net.Listener
	grpcLis    net.Listener
	metricsLis net.Listener

	stopJanitor context.CancelFunc
	wg          sync.WaitGroup
	errCh       chan error
	ready       chan struct{}
}

// New builds a server from cfg. Nothing listens until Start is called.
func New(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store.NewMemStore(store.WithShards(cfg.Store.Shards)),
		errCh:  make(chan error, 3),
		ready:  make(chan struct{}),
	}

	var kvStore kv.Store = s.store
	if !cfg.DisableMetrics {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.metrics = metrics.New(registry)
		metrics.RegisterKeyCount(registry, s.store.Len)
		s.metricsServer = metrics.NewServer(cfg.MetricsAddr, registry, logger.Named("metrics"))
		kvStore = store.NewInstrumentedStore(s.store, s.metrics)
	}

	if cfg.JanitorEnabled() {
		s.janitor = store.NewJanitor(s.store, cfg.Store.SweepInterval, s.metrics, logger.Named("janitor"))
	}

	// One token bucket is shared by both transports.
	var limiter *rate.Limiter
	if cfg.RateLimitEnabled() {
		limiter = rate.NewLimiter(rate.Limit(cfg.Limits.RateLimitQPS), cfg.Limits.RateLimitBurst)
	}

	httpAPI := api.NewServer(kvStore,
		api.WithLogger(logger.Named("http")),
		api.WithMetrics(s.metrics),
		api.WithRateLimiter(limiter),
		api.WithMaxValueBytes(cfg.Limits.MaxValueBytes),
		api.WithSlowRequestThreshold(cfg.Monitoring.SlowRequestThreshold),
	)
	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpAPI.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if !cfg.DisableGRPC {
		grpcLogger := logger.Named("grpc")
		s.grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(api.UnaryInterceptors(s.metrics, limiter, cfg.Monitoring.SlowRequestThreshold, grpcLogger)...),
		)
		kvpb.RegisterKVServer(s.grpcServer, api.NewGRPCServer(kvStore, grpcLogger))
	}

	return s
}

// Start binds every enabled listener and begins serving in the background.
// Serve errors are reported by Run.
func (s *Server) Start() error {
	var err error
	if s.httpLis, err = net.Listen("tcp", s.cfg.HTTPAddr); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddr, err)
	}
	if s.grpcServer != nil {
		if s.grpcLis, err = net.Listen("tcp", s.cfg.GRPCAddr); err != nil {
			s.httpLis.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCAddr, err)
		}
	}
	if s.metricsServer != nil {
		if s.metricsLis, err = net.Listen("tcp", s.cfg.MetricsAddr); err != nil {
			s.httpLis.Close()
			if s.grpcLis != nil {
				s.grpcLis.Close()
			}
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.MetricsAddr, err)
		}
	}

	s.serve("http", func() error {
		s.logger.Info("HTTP server listening",
			zap.String("addr", s.httpLis.Addr().String()),
			zap.String("max_value_size", humanize.IBytes(uint64(s.cfg.Limits.MaxValueBytes))))
		if err := s.httpServer.Serve(s.httpLis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if s.grpcServer != nil {
		s.serve("grpc", func() error {
			s.logger.Info("gRPC server listening", zap.String("addr", s.grpcLis.Addr().String()))
			return s.grpcServer.Serve(s.grpcLis)
		})
	}
	if s.metricsServer != nil {
		s.serve("metrics", func() error {
			return s.metricsServer.Serve(s.metricsLis)
		})
	}

	if s.janitor != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopJanitor = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.janitor.Run(ctx)
		}()
	}

	close(s.ready)
	return nil
}

// Ready is closed once Start has bound every listener.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) serve(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			s.errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
}

// Shutdown stops every listener. In-flight requests are drained until ctx
// expires, after which the gRPC server is stopped forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error

	if e := s.httpServer.Shutdown(ctx); e != nil {
		err = multierr.Append(err, fmt.Errorf("http shutdown: %w", e))
	}

	if s.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.logger.Warn("gRPC graceful stop timed out, forcing stop")
			s.grpcServer.Stop()
			<-stopped
		}
	}

	if s.metricsServer != nil {
		if e := s.metricsServer.Shutdown(ctx); e != nil {
			err = multierr.Append(err, fmt.Errorf("metrics shutdown: %w", e))
		}
	}

	if s.stopJanitor != nil {
		s.stopJanitor()
	}
	s.wg.Wait()

	s.logger.Info("server stopped", zap.Int("keys", s.store.Len()))
	return err
}

// Run starts the server and blocks until ctx is cancelled or a listener
// fails, then shuts down within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case runErr = <-s.errCh:
		s.logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Reliability.ShutdownTimeout)
	defer cancel()
	return multierr.Append(runErr, s.Shutdown(shutdownCtx))
}

// HTTPAddr returns the bound HTTP address. Valid after Start.
func (s *Server) HTTPAddr() string { return addrOf(s.httpLis) }

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (s *Server) GRPCAddr() string { return addrOf(s.grpcLis) }

// MetricsAddr returns the bound metrics address, or "" when metrics are disabled.
func (s *Server) MetricsAddr() string { return addrOf(s.metricsLis) }

func addrOf(lis net.Listener) string {
	if lis == nil {
		return ""
	}
	return lis.Addr().String()
}
