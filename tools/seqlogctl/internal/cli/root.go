package cli

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/md-rashed-zaman/seqlog/libs/grpcx"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	GRPCAddr string
	Timeout  time.Duration
	Format   string // "json" | "text"

	dial func(addr string) (*grpc.ClientConn, error)
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for seqlogctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{dial: dialControl})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seqlogctl",
		Short: "Operate a running eventlog service",
		Long:  "Inspect and steer event subscriptions of an eventlog service and manage its database schema.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Timeout <= 0 {
				return fmt.Errorf("timeout must be positive (got %s)", opts.Timeout)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.GRPCAddr, "grpc-addr", getenv("SEQLOG_GRPC_ADDR", "localhost:9090"), "control service address")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "per-request timeout")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewPauseCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))
	cmd.AddCommand(NewPollCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func dialControl(addr string) (*grpc.ClientConn, error) {
	return grpcx.Dial(addr, grpcx.DialOptions{})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
