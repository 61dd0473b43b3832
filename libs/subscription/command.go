package subscription

import (
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
)

type Command string

const (
	CommandTryPerformNow Command = "TRY_PERFORM_NOW"
	CommandPause         Command = "PAUSE"
	CommandResume        Command = "RESUME"
	CommandShowStatus    Command = "SHOW_STATUS"
)

// ParseCommand accepts the command names case-insensitively, with '-' or
// '_' as separator.
func ParseCommand(s string) Command {
	return Command(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
}

// Status is the reply to every command.
type Status struct {
	SubscriptionName string                    `json:"subscriptionName"`
	Paused           bool                      `json:"paused"`
	Busy             bool                      `json:"busy"`
	Greedy           bool                      `json:"greedy"`
	Failures         int                       `json:"failures"`
	BackOff          int                       `json:"backOff"`
	CurrentOffset    eventstore.SequenceNumber `json:"currentOffset"`
}

// CommandError is returned for a command the worker cannot handle. The
// subscription state is left unchanged.
type CommandError struct {
	Subscription string
	Command      Command
	Reason       string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("subscription %s: command %q: %s", e.Subscription, e.Command, e.Reason)
}

var (
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrStopped             = errors.New("subscription worker stopped")
	ErrNotStarted          = errors.New("subscription container not started")
)
