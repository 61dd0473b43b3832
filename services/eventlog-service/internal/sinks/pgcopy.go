package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
)

var journalColumns = []string{"subscription", "sequence_id", "domain_ids", "event_type", "event_payload"}

// Journal copies each poll into event_journal inside the poll transaction,
// so journal rows and the offset commit together.
type Journal struct {
	subscription string
}

func NewJournal(subscription string) *Journal {
	return &Journal{subscription: subscription}
}

func (j *Journal) HandleEventsTx(ctx context.Context, tx pgx.Tx, events []eventstore.PersistedEvent) error {
	rows, err := j.rows(events)
	if err != nil {
		return err
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"event_journal"}, journalColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into event_journal: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy into event_journal: copied %d of %d rows", n, len(rows))
	}
	return nil
}

func (j *Journal) rows(events []eventstore.PersistedEvent) ([][]any, error) {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode event %d: %w", e.Sequence, err)
		}
		rows = append(rows, []any{j.subscription, int64(e.Sequence), e.DomainIDs, string(e.Type), payload})
	}
	return rows, nil
}
