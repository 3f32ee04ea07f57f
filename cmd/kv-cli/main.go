package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/heysubinoy/pyazkv/internal/client"
)

// errNotFound makes the process exit non-zero without printing twice.
var errNotFound = errors.New("not found")

type options struct {
	addr    string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errNotFound) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "kv-cli",
		Short:         "Talk to a KV node over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", "localhost:9090", "gRPC address of the KV node")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "per-request timeout")

	root.AddCommand(newGetCmd(opts), newSetCmd(opts), newDeleteCmd(opts))
	return root
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored at key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(ctx context.Context, c *client.Client) error {
				value, found, err := c.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get failed: %w", err)
				}
				if !found {
					fmt.Fprintf(cmd.OutOrStdout(), "Key '%s' not found\n", args[0])
					return errNotFound
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
}

func newSetCmd(opts *options) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store value at key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			var expireAt time.Time
			if ttl > 0 {
				expireAt = time.Now().Add(ttl)
			}
			return withClient(cmd.Context(), opts, func(ctx context.Context, c *client.Client) error {
				if err := c.Set(ctx, key, value, expireAt); err != nil {
					return fmt.Errorf("set failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set '%s' = '%s'\n", key, value)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expire the key after this duration")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(ctx context.Context, c *client.Client) error {
				if err := c.Delete(ctx, args[0]); err != nil {
					return fmt.Errorf("delete failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted '%s'\n", args[0])
				return nil
			})
		},
	}
}

func withClient(ctx context.Context, opts *options, fn func(context.Context, *client.Client) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := client.Dial(opts.addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	return fn(ctx, c)
}
