package eventstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/seqlog/libs/db"
)

// CommittedSequence returns a sequence number at or below which every append
// has either committed or rolled back. It waits for appends in flight.
//
// Appends under different lock keys may commit out of sequence order, so a
// reader that keeps an offset must not read past this value or it can step
// over an event that commits later. Assumes the events sequence has CACHE 1.
func CommittedSequence(ctx context.Context, b db.Beginner) (SequenceNumber, error) {
	var seq int64
	err := db.WithTx(ctx, b, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int, 0)`, AppendBarrierNamespace); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			SELECT COALESCE(pg_sequence_last_value(pg_get_serial_sequence('events', 'sequence_id')::regclass), 0)
		`).Scan(&seq)
	})
	return SequenceNumber(seq), err
}
