package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
)

// A sink implements exactly one of the four interfaces below. Single sinks
// are called once per event in sequence order, batch sinks once per poll.
// The Tx variants run inside the poll transaction, so their writes commit or
// roll back together with the offset.

type SingleEventSink interface {
	HandleEvent(ctx context.Context, event eventstore.PersistedEvent) error
}

type BatchEventSink interface {
	HandleEvents(ctx context.Context, events []eventstore.PersistedEvent) error
}

type TxSingleEventSink interface {
	HandleEventTx(ctx context.Context, tx pgx.Tx, event eventstore.PersistedEvent) error
}

type TxBatchEventSink interface {
	HandleEventsTx(ctx context.Context, tx pgx.Tx, events []eventstore.PersistedEvent) error
}

type SingleEventSinkFunc func(ctx context.Context, event eventstore.PersistedEvent) error

func (f SingleEventSinkFunc) HandleEvent(ctx context.Context, event eventstore.PersistedEvent) error {
	return f(ctx, event)
}

type BatchEventSinkFunc func(ctx context.Context, events []eventstore.PersistedEvent) error

func (f BatchEventSinkFunc) HandleEvents(ctx context.Context, events []eventstore.PersistedEvent) error {
	return f(ctx, events)
}

type TxSingleEventSinkFunc func(ctx context.Context, tx pgx.Tx, event eventstore.PersistedEvent) error

func (f TxSingleEventSinkFunc) HandleEventTx(ctx context.Context, tx pgx.Tx, event eventstore.PersistedEvent) error {
	return f(ctx, tx, event)
}

type TxBatchEventSinkFunc func(ctx context.Context, tx pgx.Tx, events []eventstore.PersistedEvent) error

func (f TxBatchEventSinkFunc) HandleEventsTx(ctx context.Context, tx pgx.Tx, events []eventstore.PersistedEvent) error {
	return f(ctx, tx, events)
}

var ErrInvalidSink = errors.New("invalid sink")

// SinkKind names the variant a sink implements.
func SinkKind(sink any) (string, error) {
	var kinds []string
	if _, ok := sink.(SingleEventSink); ok {
		kinds = append(kinds, "single")
	}
	if _, ok := sink.(BatchEventSink); ok {
		kinds = append(kinds, "batch")
	}
	if _, ok := sink.(TxSingleEventSink); ok {
		kinds = append(kinds, "tx_single")
	}
	if _, ok := sink.(TxBatchEventSink); ok {
		kinds = append(kinds, "tx_batch")
	}
	switch len(kinds) {
	case 1:
		return kinds[0], nil
	case 0:
		return "", fmt.Errorf("%w: %T implements no sink interface", ErrInvalidSink, sink)
	default:
		return "", fmt.Errorf("%w: %T implements more than one sink interface %v", ErrInvalidSink, sink, kinds)
	}
}

func dispatch(ctx context.Context, tx pgx.Tx, sink any, events []eventstore.PersistedEvent) error {
	switch s := sink.(type) {
	case SingleEventSink:
		for _, e := range events {
			if err := s.HandleEvent(ctx, e); err != nil {
				return fmt.Errorf("event %d: %w", e.Sequence, err)
			}
		}
	case TxSingleEventSink:
		for _, e := range events {
			if err := s.HandleEventTx(ctx, tx, e); err != nil {
				return fmt.Errorf("event %d: %w", e.Sequence, err)
			}
		}
	case BatchEventSink:
		return s.HandleEvents(ctx, events)
	case TxBatchEventSink:
		return s.HandleEventsTx(ctx, tx, events)
	default:
		return fmt.Errorf("%w: %T", ErrInvalidSink, sink)
	}
	return nil
}
