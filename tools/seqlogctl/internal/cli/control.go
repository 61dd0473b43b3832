package cli

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/seqlog/libs/controlrpc"
	"github.com/md-rashed-zaman/seqlog/libs/subscription"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/status"
)

func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return newControlCommand(opts, "status", subscription.CommandShowStatus, "Show the state of a subscription")
}

func NewPauseCommand(opts *RootOptions) *cobra.Command {
	return newControlCommand(opts, "pause", subscription.CommandPause, "Stop scheduled polls of a subscription")
}

func NewResumeCommand(opts *RootOptions) *cobra.Command {
	return newControlCommand(opts, "resume", subscription.CommandResume, "Resume a paused subscription")
}

// NewPollCommand asks the subscription to poll right away. The request is
// ignored while the subscription is paused or busy.
func NewPollCommand(opts *RootOptions) *cobra.Command {
	return newControlCommand(opts, "poll", subscription.CommandTryPerformNow, "Poll a subscription now")
}

func newControlCommand(opts *RootOptions, use string, command subscription.Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:           use + " NAME",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(cmd, opts, args[0], command)
		},
	}
}

func runControl(cmd *cobra.Command, opts *RootOptions, name string, command subscription.Command) error {
	conn, err := opts.dial(opts.GRPCAddr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.GRPCAddr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	st, err := controlrpc.NewClient(conn).Submit(ctx, name, command)
	if err != nil {
		if s, ok := status.FromError(err); ok {
			return fmt.Errorf("%s %s: %s (%s)", command, name, s.Message(), s.Code())
		}
		return fmt.Errorf("%s %s: %w", command, name, err)
	}
	return writeStatus(cmd.OutOrStdout(), opts.Format, st)
}
