package api

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/heysubinoy/pyazkv/api/kvpb"
	"github.com/heysubinoy/pyazkv/pkg/kv"
)

// GRPCServer implements the kvpb.KVServer interface.
// It wraps a kv.Store and exposes it over gRPC.
type GRPCServer struct {
	Store  kv.Store
	logger *zap.Logger
}

var _ kvpb.KVServer = (*GRPCServer)(nil)

// NewGRPCServer creates a new gRPC server with the given store.
func NewGRPCServer(store kv.Store, logger *zap.Logger) *GRPCServer {
	return &GRPCServer{
		Store:  store,
		logger: logger,
	}
}

// Get retrieves a value by key. An absent key is reported as codes.NotFound.
func (s *GRPCServer) Get(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	key := req.GetValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}

	value, found := s.Store.Get(key)
	if !found {
		return nil, status.Errorf(codes.NotFound, "key %q not found", key)
	}
	return wrapperspb.String(value), nil
}

// Set stores a key-value pair, with an optional expiry.
func (s *GRPCServer) Set(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	in, err := kvpb.ParseSetRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.Key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}

	if in.ExpireAt.IsZero() {
		err = s.Store.Set(in.Key, in.Value)
	} else {
		err = s.Store.SetWithExpiry(in.Key, in.Value, in.ExpireAt)
	}
	if err != nil {
		s.logger.Error("set failed", zap.String("key", in.Key), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to set key")
	}

	return &emptypb.Empty{}, nil
}

// Delete removes a key from the store. Deleting an absent key succeeds.
func (s *GRPCServer) Delete(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	key := req.GetValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}

	if err := s.Store.Delete(key); err != nil {
		s.logger.Error("delete failed", zap.String("key", key), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to delete key")
	}

	return &emptypb.Empty{}, nil
}
