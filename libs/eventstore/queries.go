package eventstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/seqlog/libs/otel"
)

// EventColumns is the column list ScanEvent expects, in order.
const EventColumns = "sequence_id, domain_ids, event_type, event_payload, causation_id, correlation_id, traceparent, tracestate, created_at"

// contextFilter matches rows whose domain_ids contain $1 and whose type is in
// $2. An empty $2 matches every type.
const contextFilter = `domain_ids @> $1::text[] AND (cardinality($2::text[]) = 0 OR event_type = ANY($2::text[]))`

func enterAppendBarrier(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock_shared($1::int, 0)`, AppendBarrierNamespace)
	return err
}

func acquireLock(ctx context.Context, tx pgx.Tx, key LockKey) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int, $2::int)`, key.Namespace, key.Key)
	return err
}

func currentSequence(ctx context.Context, tx pgx.Tx, tokens, types []string) (SequenceNumber, error) {
	var seq int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_id), 0)
		FROM events
		WHERE `+contextFilter, tokens, types).Scan(&seq)
	return SequenceNumber(seq), err
}

// reserveSequences draws n values from the events sequence, ascending.
func reserveSequences(ctx context.Context, tx pgx.Tx, n int) ([]SequenceNumber, error) {
	rows, err := tx.Query(ctx, `
		SELECT nextval(pg_get_serial_sequence('events', 'sequence_id')) AS s
		FROM generate_series(1, $1)
		ORDER BY s
	`, n)
	if err != nil {
		return nil, err
	}
	seqs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SequenceNumber, error) {
		var s int64
		err := row.Scan(&s)
		return SequenceNumber(s), err
	})
	if err != nil {
		return nil, err
	}
	if len(seqs) != n {
		return nil, fmt.Errorf("reserved %d sequence numbers, want %d", len(seqs), n)
	}
	return seqs, nil
}

// insertEvents stores the trace context of ctx on every row so sinks can
// link their spans to the append.
func insertEvents(ctx context.Context, tx pgx.Tx, tokens []string, events []Event, payloads [][]byte, seqs []SequenceNumber) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	links := causalChain(seqs)
	batch := &pgx.Batch{}
	for i, e := range events {
		batch.Queue(`
			INSERT INTO events (sequence_id, domain_ids, event_type, event_payload, causation_id, correlation_id, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, int64(seqs[i]), tokens, string(e.Type), payloads[i], int64(links[i].causation), int64(links[i].correlation), traceparent, tracestate)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// ScanEvent reads one row selected with EventColumns.
func ScanEvent(row pgx.Row) (PersistedEvent, error) {
	var (
		e                           PersistedEvent
		seq, causation, correlation int64
		typ                         string
		raw                         []byte
	)
	if err := row.Scan(&seq, &e.DomainIDs, &typ, &raw, &causation, &correlation, &e.TraceParent, &e.TraceState, &e.CreatedAt); err != nil {
		return PersistedEvent{}, err
	}
	e.Sequence = SequenceNumber(seq)
	e.CausationID = SequenceNumber(causation)
	e.CorrelationID = SequenceNumber(correlation)
	e.Type = EventName(typ)
	e.Payload = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Payload); err != nil {
			return PersistedEvent{}, fmt.Errorf("decode payload of event %d: %w", seq, err)
		}
	}
	return e, nil
}
