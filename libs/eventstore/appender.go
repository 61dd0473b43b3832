package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/seqlog/libs/db"
	otelx "github.com/md-rashed-zaman/seqlog/libs/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Appender struct {
	db     db.Beginner
	logger *slog.Logger
	tracer trace.Tracer
}

func NewAppender(b db.Beginner, logger *slog.Logger) *Appender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Appender{db: b, logger: logger, tracer: otelx.Tracer("seqlog/eventstore")}
}

// AppendIf appends events atomically when the current sequence of
// cond.Context equals cond.ExpectedCurrentSequence, and returns the sequence
// of the last inserted event. On a mismatch it returns a
// *SequenceMismatchError and writes nothing.
func (a *Appender) AppendIf(ctx context.Context, events []Event, cond AppendCondition) (SequenceNumber, error) {
	if len(events) == 0 {
		return 0, ErrNoEvents
	}
	if err := cond.Context.Validate(); err != nil {
		return 0, err
	}
	payloads := make([][]byte, len(events))
	for i, e := range events {
		if e.Type == "" {
			return 0, fmt.Errorf("%w: event %d has no type", ErrInvalidEvent, i)
		}
		payload := e.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("%w: encode payload of event %d: %v", ErrInvalidEvent, i, err)
		}
		payloads[i] = raw
	}

	tokens := cond.Context.Tokens()
	types := cond.Context.TypeNames()
	key, err := LockKeyFor(cond.LockingPolicy, tokens)
	if err != nil {
		return 0, err
	}

	ctx, span := a.tracer.Start(ctx, "eventstore.append", trace.WithAttributes(
		attribute.StringSlice("seqlog.domain_ids", tokens),
		attribute.Int("seqlog.events", len(events)),
		attribute.Int64("seqlog.expected_sequence", int64(cond.ExpectedCurrentSequence)),
	))
	defer span.End()

	var last SequenceNumber
	err = db.WithTx(ctx, a.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := enterAppendBarrier(ctx, tx); err != nil {
			return fmt.Errorf("enter append barrier: %w", err)
		}
		if err := acquireLock(ctx, tx, key); err != nil {
			return fmt.Errorf("acquire append lock: %w", err)
		}
		actual, err := currentSequence(ctx, tx, tokens, types)
		if err != nil {
			return fmt.Errorf("read current sequence: %w", err)
		}
		if actual != cond.ExpectedCurrentSequence {
			return &SequenceMismatchError{Expected: cond.ExpectedCurrentSequence, Actual: actual}
		}
		seqs, err := reserveSequences(ctx, tx, len(events))
		if err != nil {
			return fmt.Errorf("reserve sequence numbers: %w", err)
		}
		if err := insertEvents(ctx, tx, tokens, events, payloads, seqs); err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
		last = seqs[len(seqs)-1]
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int64("seqlog.last_sequence", int64(last)))
	a.logger.Debug("events appended",
		"domain_ids", tokens,
		"count", len(events),
		"last_sequence", last,
		"policy", policyOrDefault(cond.LockingPolicy).String(),
	)
	return last, nil
}

func policyOrDefault(p LockingPolicy) LockingPolicy {
	if p == 0 {
		return DefaultLockingPolicy
	}
	return p
}

type causalLink struct {
	causation   SequenceNumber
	correlation SequenceNumber
}

// causalChain links each event to its predecessor in the batch and the whole
// batch to its first event.
func causalChain(seqs []SequenceNumber) []causalLink {
	links := make([]causalLink, len(seqs))
	for i, s := range seqs {
		if i == 0 {
			links[i] = causalLink{causation: s, correlation: s}
			continue
		}
		links[i] = causalLink{causation: seqs[i-1], correlation: seqs[0]}
	}
	return links
}
