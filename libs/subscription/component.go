package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/seqlog/libs/db"
	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
	otelx "github.com/md-rashed-zaman/seqlog/libs/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrSubscriptionLocked means another process is polling the subscription.
var ErrSubscriptionLocked = errors.New("subscription is locked by another poller")

type PollResult struct {
	Offset eventstore.SequenceNumber
	Count  int
}

// Poller runs one poll of a subscription.
type Poller interface {
	HandlePendingEvents(ctx context.Context, cfg Config) (PollResult, error)
}

// Component drains pending events of a subscription into its sink.
type Component struct {
	db     db.Beginner
	logger *slog.Logger
	tracer trace.Tracer
}

func NewComponent(b db.Beginner, logger *slog.Logger) *Component {
	if logger == nil {
		logger = slog.Default()
	}
	return &Component{db: b, logger: logger, tracer: otelx.Tracer("seqlog/subscription")}
}

// HandlePendingEvents delivers up to cfg.MaxRows events after the stored
// offset and advances the offset in the same transaction. It returns the new
// offset and the number of events delivered, or a zero PollResult when there
// was nothing to do. Events of appends still in flight are left for a later
// poll, together with everything after them.
func (c *Component) HandlePendingEvents(ctx context.Context, cfg Config) (PollResult, error) {
	cfg = cfg.withDefaults()
	ctx, span := c.tracer.Start(ctx, "subscription.poll", trace.WithAttributes(
		attribute.String("seqlog.subscription", cfg.Name),
	))
	defer span.End()

	events, err := c.deliver(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return PollResult{}, err
	}
	if len(events) == 0 {
		return PollResult{}, nil
	}

	res := PollResult{Offset: events[len(events)-1].Sequence, Count: len(events)}
	span.SetAttributes(attribute.Int("seqlog.events", res.Count), attribute.Int64("seqlog.offset", int64(res.Offset)))
	c.logger.Debug("subscription events delivered", "subscription", cfg.Name, "count", res.Count, "offset", res.Offset)
	c.runCallback(ctx, cfg, events)
	return res, nil
}

func (c *Component) deliver(ctx context.Context, cfg Config) ([]eventstore.PersistedEvent, error) {
	committed, err := eventstore.CommittedSequence(ctx, c.db)
	if err != nil {
		return nil, fmt.Errorf("committed sequence: %w", err)
	}

	var events []eventstore.PersistedEvent
	err = db.WithTx(ctx, c.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		locked, err := tryLock(ctx, tx, cfg.Name)
		if err != nil {
			return fmt.Errorf("lock subscription: %w", err)
		}
		if !locked {
			return ErrSubscriptionLocked
		}
		offset, found, err := readOffset(ctx, tx, cfg.Name)
		if err != nil {
			return fmt.Errorf("read offset: %w", err)
		}
		events, err = pendingEvents(ctx, tx, offset, committed, cfg.typeNames(), cfg.MaxRows)
		if err != nil {
			return fmt.Errorf("select events: %w", err)
		}
		if len(events) == 0 {
			if found {
				return nil
			}
			if err := saveOffset(ctx, tx, cfg.Name, 0); err != nil {
				return fmt.Errorf("create offset: %w", err)
			}
			return nil
		}
		if err := dispatch(ctx, tx, cfg.Sink, events); err != nil {
			return fmt.Errorf("sink: %w", err)
		}
		if err := saveOffset(ctx, tx, cfg.Name, events[len(events)-1].Sequence); err != nil {
			return fmt.Errorf("save offset: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Component) runCallback(ctx context.Context, cfg Config, events []eventstore.PersistedEvent) {
	if cfg.Callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("subscription callback panicked", "subscription", cfg.Name, "panic", r)
		}
	}()
	if err := cfg.Callback(ctx, cfg.Name, events); err != nil {
		c.logger.Warn("subscription callback failed", "subscription", cfg.Name, "err", err)
	}
}

func tryLock(ctx context.Context, tx pgx.Tx, name string) (bool, error) {
	var ok bool
	err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1::int, $2::int)`,
		eventstore.SubscriptionLockNamespace, eventstore.HashKey(name)).Scan(&ok)
	return ok, err
}

// readOffset returns 0 and false for a subscription that has no offset row.
func readOffset(ctx context.Context, tx pgx.Tx, name string) (eventstore.SequenceNumber, bool, error) {
	var seq int64
	err := tx.QueryRow(ctx, `SELECT sequence_id FROM subscriptions WHERE name = $1`, name).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	return eventstore.SequenceNumber(seq), err == nil, err
}

func pendingEvents(ctx context.Context, tx pgx.Tx, offset, committed eventstore.SequenceNumber, types []string, limit int) ([]eventstore.PersistedEvent, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+eventstore.EventColumns+`
		FROM events
		WHERE sequence_id > $1 AND sequence_id <= $2
		  AND (cardinality($3::text[]) = 0 OR event_type = ANY($3::text[]))
		ORDER BY sequence_id
		LIMIT $4
	`, int64(offset), int64(committed), types, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (eventstore.PersistedEvent, error) {
		return eventstore.ScanEvent(row)
	})
}

func saveOffset(ctx context.Context, tx pgx.Tx, name string, seq eventstore.SequenceNumber) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (name, sequence_id)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
		SET sequence_id = EXCLUDED.sequence_id, updated_at = now()
	`, name, int64(seq))
	return err
}

// Offset reads the stored offset of a subscription outside any poll.
func (c *Component) Offset(ctx context.Context, name string) (eventstore.SequenceNumber, error) {
	var seq eventstore.SequenceNumber
	err := db.WithTx(ctx, c.db, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		seq, _, err = readOffset(ctx, tx, name)
		return err
	})
	return seq, err
}
