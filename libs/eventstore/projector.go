package eventstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/seqlog/libs/db"
	otelx "github.com/md-rashed-zaman/seqlog/libs/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultPageSize = 1000

// Projector streams the events of a TransactionContext in sequence order.
type Projector struct {
	db       db.Beginner
	logger   *slog.Logger
	tracer   trace.Tracer
	pageSize int
}

// NewProjector returns a Projector fetching pageSize rows per round trip.
// A pageSize <= 0 selects DefaultPageSize.
func NewProjector(b db.Beginner, logger *slog.Logger, pageSize int) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Projector{db: b, logger: logger, tracer: otelx.Tracer("seqlog/eventstore"), pageSize: pageSize}
}

// PageSource yields consecutive pages of events. An empty page ends the
// stream.
type PageSource interface {
	NextPage(ctx context.Context) ([]PersistedEvent, error)
}

// Fold drains src through evolve. It returns the final state and the sequence
// of the last event seen, or initial() and 0 when the stream is empty.
func Fold[S any](ctx context.Context, src PageSource, initial func() S, evolve func(S, Event) S) (S, SequenceNumber, error) {
	state := initial()
	var last SequenceNumber
	for {
		page, err := src.NextPage(ctx)
		if err != nil {
			var zero S
			return zero, 0, err
		}
		if len(page) == 0 {
			return state, last, nil
		}
		for _, e := range page {
			state = evolve(state, e.Event)
			last = e.Sequence
		}
	}
}

// BuildFor rebuilds state from every event matching tc and returns it with
// the sequence it reflects, ready to be used as ExpectedCurrentSequence.
func BuildFor[S any](ctx context.Context, p *Projector, tc TransactionContext, initial func() S, evolve func(S, Event) S) (S, SequenceNumber, error) {
	var (
		state S
		last  SequenceNumber
	)
	err := p.stream(ctx, tc, func(src PageSource) error {
		var err error
		state, last, err = Fold(ctx, src, initial, evolve)
		return err
	})
	if err != nil {
		var zero S
		return zero, 0, err
	}
	return state, last, nil
}

// Events returns every event matching tc and the last sequence among them.
func (p *Projector) Events(ctx context.Context, tc TransactionContext) ([]PersistedEvent, SequenceNumber, error) {
	var (
		events []PersistedEvent
		last   SequenceNumber
	)
	err := p.stream(ctx, tc, func(src PageSource) error {
		for {
			page, err := src.NextPage(ctx)
			if err != nil {
				return err
			}
			if len(page) == 0 {
				return nil
			}
			events = append(events, page...)
			last = page[len(page)-1].Sequence
		}
	})
	if err != nil {
		return nil, 0, err
	}
	return events, last, nil
}

func (p *Projector) stream(ctx context.Context, tc TransactionContext, fn func(PageSource) error) error {
	tokens := tc.Tokens()
	ctx, span := p.tracer.Start(ctx, "eventstore.project", trace.WithAttributes(
		attribute.StringSlice("seqlog.domain_ids", tokens),
	))
	defer span.End()

	err := db.WithTx(ctx, p.db, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DECLARE projection_cursor NO SCROLL CURSOR FOR
			SELECT `+EventColumns+`
			FROM events
			WHERE `+contextFilter+`
			ORDER BY sequence_id
		`, tokens, tc.TypeNames()); err != nil {
			return fmt.Errorf("declare cursor: %w", err)
		}
		src := &cursorPages{tx: tx, size: p.pageSize}
		if err := fn(src); err != nil {
			return err
		}
		p.logger.Debug("projection read", "domain_ids", tokens, "events", src.read)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

type cursorPages struct {
	tx   pgx.Tx
	size int
	done bool
	read int
}

func (c *cursorPages) NextPage(ctx context.Context) ([]PersistedEvent, error) {
	if c.done {
		return nil, nil
	}
	rows, err := c.tx.Query(ctx, fmt.Sprintf("FETCH FORWARD %d FROM projection_cursor", c.size))
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	page, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PersistedEvent, error) {
		return ScanEvent(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	if len(page) < c.size {
		c.done = true
	}
	c.read += len(page)
	return page, nil
}
