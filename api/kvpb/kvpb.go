// Package kvpb describes the KV gRPC service. Messages are protobuf
// well-known types, so no generated code is needed:
//
//	Get(StringValue{key})                      -> StringValue{value}
//	Set(Struct{key, value, expire_at_ms?})     -> Empty
//	Delete(StringValue{key})                   -> Empty
package kvpb

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "pyazkv.v1.KV"

	GetMethod    = "/" + ServiceName + "/Get"
	SetMethod    = "/" + ServiceName + "/Set"
	DeleteMethod = "/" + ServiceName + "/Delete"
)

// Field names of a Set request.
const (
	FieldKey        = "key"
	FieldValue      = "value"
	FieldExpireAtMs = "expire_at_ms"
)

// KVServer is the server API for the KV service.
type KVServer interface {
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Set(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// RegisterKVServer registers srv on s.
func RegisterKVServer(s grpc.ServiceRegistrar, srv KVServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KVServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Set", Handler: setHandler},
		{MethodName: "Delete", Handler: deleteHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pyazkv/v1/kv",
}

func getHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KVServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(KVServer).Get(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func setHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KVServer).Set(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SetMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(KVServer).Set(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KVServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DeleteMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(KVServer).Delete(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// SetRequest is the decoded form of a Set message.
type SetRequest struct {
	Key   string
	Value string
	// ExpireAt is zero when the entry never expires.
	ExpireAt time.Time
}

// NewSetRequest encodes a Set message. A zero expireAt omits the expiry.
func NewSetRequest(key, value string, expireAt time.Time) *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldKey:   structpb.NewStringValue(key),
		FieldValue: structpb.NewStringValue(value),
	}
	if !expireAt.IsZero() {
		fields[FieldExpireAtMs] = structpb.NewNumberValue(float64(expireAt.UnixMilli()))
	}
	return &structpb.Struct{Fields: fields}
}

// ParseSetRequest decodes a Set message. Missing key or value fields decode
// as empty strings; fields of the wrong kind are an error.
func ParseSetRequest(s *structpb.Struct) (SetRequest, error) {
	var req SetRequest
	fields := s.GetFields()

	var err error
	if req.Key, err = stringField(fields, FieldKey); err != nil {
		return SetRequest{}, err
	}
	if req.Value, err = stringField(fields, FieldValue); err != nil {
		return SetRequest{}, err
	}

	if v, ok := fields[FieldExpireAtMs]; ok {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return SetRequest{}, fmt.Errorf("field %q must be a number", FieldExpireAtMs)
		}
		req.ExpireAt = time.UnixMilli(int64(n.NumberValue))
	}
	return req, nil
}

func stringField(fields map[string]*structpb.Value, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", name)
	}
	return s.StringValue, nil
}
