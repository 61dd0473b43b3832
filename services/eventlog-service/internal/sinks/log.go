package sinks

import (
	"context"
	"log/slog"

	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
)

// Log writes one info record per event.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) HandleEvent(ctx context.Context, e eventstore.PersistedEvent) error {
	l.logger.InfoContext(ctx, "event",
		"sequence_id", e.Sequence,
		"event_type", e.Type,
		"domain_ids", e.DomainIDs,
		"causation_id", e.CausationID,
		"correlation_id", e.CorrelationID,
		"payload", e.Payload,
	)
	return nil
}

// LogCallback summarises every productive poll.
func LogCallback(logger *slog.Logger) func(ctx context.Context, name string, events []eventstore.PersistedEvent) error {
	return func(ctx context.Context, name string, events []eventstore.PersistedEvent) error {
		if len(events) == 0 {
			return nil
		}
		logger.InfoContext(ctx, "subscription batch committed",
			"subscription", name,
			"count", len(events),
			"first_sequence", events[0].Sequence,
			"last_sequence", events[len(events)-1].Sequence,
		)
		return nil
	}
}
