// Package client is a thin gRPC client for the KV service.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/heysubinoy/pyazkv/api/kvpb"
)

// Client talks to a KV server over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr. Extra dial options are appended after the default
// insecure transport credentials.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	// passthrough resolver for direct address connection
	conn, err := grpc.NewClient("passthrough:///"+addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Get returns the value stored at key. found is false when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (value string, found bool, err error) {
	out := new(wrapperspb.StringValue)
	err = c.conn.Invoke(ctx, kvpb.GetMethod, wrapperspb.String(key), out)
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out.GetValue(), true, nil
}

// Set stores value at key. A zero expireAt stores the entry without expiry.
func (c *Client) Set(ctx context.Context, key, value string, expireAt time.Time) error {
	return c.conn.Invoke(ctx, kvpb.SetMethod, kvpb.NewSetRequest(key, value, expireAt), new(emptypb.Empty))
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.conn.Invoke(ctx, kvpb.DeleteMethod, wrapperspb.String(key), new(emptypb.Empty))
}

func (c *Client) Close() error {
	return c.conn.Close()
}
