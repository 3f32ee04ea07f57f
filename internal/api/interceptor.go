package api

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/heysubinoy/pyazkv/pkg/metrics"
)

// UnaryInterceptors returns the interceptor chain for the gRPC facade, in order:
// metrics, panic recovery, slow request logging, rate limiting.
// m and limiter may be nil.
func UnaryInterceptors(m *metrics.Metrics, limiter *rate.Limiter, slowThreshold time.Duration, logger *zap.Logger) []grpc.UnaryServerInterceptor {
	var interceptors []grpc.UnaryServerInterceptor

	if m != nil {
		interceptors = append(interceptors, metricsUnaryInterceptor(m))
	}
	interceptors = append(interceptors, recoveryUnaryInterceptor(m, logger))
	if slowThreshold > 0 {
		interceptors = append(interceptors, slowRequestUnaryInterceptor(slowThreshold, logger))
	}
	if limiter != nil {
		interceptors = append(interceptors, rateLimitUnaryInterceptor(limiter, m, logger))
	}
	return interceptors
}

func metricsUnaryInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.RecordGrpcRequest(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

func recoveryUnaryInterceptor(m *metrics.Metrics, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in unary RPC",
					zap.String("method", info.FullMethod),
					zap.String("client", clientInfo(ctx)),
					zap.Any("panic", r),
					zap.Stack("stack"))
				if m != nil {
					m.RecordPanicRecovered("grpc")
				}
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

func slowRequestUnaryInterceptor(threshold time.Duration, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if d := time.Since(start); d > threshold {
			fields := []zap.Field{
				zap.String("method", info.FullMethod),
				zap.Duration("duration", d),
				zap.String("client", clientInfo(ctx)),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			logger.Warn("slow request detected", fields...)
		}
		return resp, err
	}
}

func rateLimitUnaryInterceptor(limiter *rate.Limiter, m *metrics.Metrics, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !limiter.Allow() {
			logger.Warn("rate limit exceeded",
				zap.String("method", info.FullMethod),
				zap.String("client", clientInfo(ctx)))
			if m != nil {
				m.RecordRateLimitHit("grpc")
			}
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded for method: %s", info.FullMethod)
		}
		return handler(ctx, req)
	}
}

// clientInfo identifies the caller for log lines.
func clientInfo(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ua := md.Get("user-agent"); len(ua) > 0 {
			return fmt.Sprintf("user-agent:%s", ua[0])
		}
	}
	return "unknown"
}
