package eventstore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/seqlog/libs/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests run against a real Postgres when SEQLOG_TEST_DATABASE_URL
// is set. Account ids are random so runs do not interfere.

func testPool(t *testing.T) *db.Pool {
	t.Helper()
	url := os.Getenv("SEQLOG_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SEQLOG_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

type account struct {
	id      string
	opened  bool
	balance float64
}

func newAccount() account { return account{} }

func evolveAccount(id string) func(account, Event) account {
	return func(a account, e Event) account {
		switch e.Type {
		case "AccountOpened":
			a.id, a.opened = id, true
		case "AmountDeposited":
			a.balance += e.Payload["amount"].(float64)
		case "AmountTransferred":
			amount := e.Payload["amount"].(float64)
			if e.Payload["fromAcct"] == id {
				a.balance -= amount
			}
			if e.Payload["toAcct"] == id {
				a.balance += amount
			}
		}
		return a
	}
}

type fixture struct {
	appender  *Appender
	projector *Projector
}

func newFixture(t *testing.T, pageSize int) fixture {
	pool := testPool(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return fixture{
		appender:  NewAppender(pool, logger),
		projector: NewProjector(pool, logger, pageSize),
	}
}

func accountContext(ids ...string) TransactionContext {
	var dids []DomainIdentifier
	for _, id := range ids {
		dids = append(dids, ID("Account", StateID(id)))
	}
	return NewContext(dids)
}

func TestIntegrationOpenDepositAndRebuild(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := uuid.NewString()
	tc := accountContext(id)

	acct, seq, err := BuildFor(ctx, f.projector, tc, newAccount, evolveAccount(id))
	require.NoError(t, err)
	assert.False(t, acct.opened)
	assert.Equal(t, SequenceNumber(0), seq)

	opened, err := f.appender.AppendIf(ctx, []Event{NewEvent("AccountOpened", map[string]any{"id": id})}, AppendCondition{Context: tc})
	require.NoError(t, err)
	assert.Positive(t, int64(opened))

	_, seq, err = BuildFor(ctx, f.projector, tc, newAccount, evolveAccount(id))
	require.NoError(t, err)
	assert.Equal(t, opened, seq)

	deposit, err := f.appender.AppendIf(ctx, []Event{NewEvent("AmountDeposited", map[string]any{"amount": 10.0})},
		AppendCondition{Context: tc, ExpectedCurrentSequence: seq})
	require.NoError(t, err)
	assert.Greater(t, deposit, opened)

	acct, seq, err = BuildFor(ctx, f.projector, tc, newAccount, evolveAccount(id))
	require.NoError(t, err)
	assert.True(t, acct.opened)
	assert.Equal(t, 10.0, acct.balance)
	assert.Equal(t, deposit, seq)
}

func TestIntegrationStaleConditionWritesNothing(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := uuid.NewString()
	tc := accountContext(id)

	opened, err := f.appender.AppendIf(ctx, []Event{NewEvent("AccountOpened", map[string]any{"id": id})}, AppendCondition{Context: tc})
	require.NoError(t, err)

	_, err = f.appender.AppendIf(ctx, []Event{NewEvent("AmountDeposited", map[string]any{"amount": 5.0})},
		AppendCondition{Context: tc, ExpectedCurrentSequence: 0})
	var mismatch *SequenceMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, SequenceNumber(0), mismatch.Expected)
	assert.Equal(t, opened, mismatch.Actual)

	events, last, err := f.projector.Events(ctx, tc)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, opened, last)
}

func TestIntegrationRepeatedAppendIsRejected(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := uuid.NewString()
	cond := AppendCondition{Context: accountContext(id)}
	events := []Event{NewEvent("AccountOpened", map[string]any{"id": id})}

	_, err := f.appender.AppendIf(ctx, events, cond)
	require.NoError(t, err)
	_, err = f.appender.AppendIf(ctx, events, cond)
	assert.ErrorIs(t, err, ErrSequenceMismatch)
}

func TestIntegrationTransferTouchesBothAccounts(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	for _, id := range []string{a, b} {
		_, err := f.appender.AppendIf(ctx, []Event{
			NewEvent("AccountOpened", map[string]any{"id": id}),
			NewEvent("AmountDeposited", map[string]any{"amount": 100.0}),
		}, AppendCondition{Context: accountContext(id)})
		require.NoError(t, err)
	}

	both := accountContext(a, b)
	_, seq, err := f.projector.Events(ctx, both)
	require.NoError(t, err)
	assert.Equal(t, SequenceNumber(0), seq, "no event concerns both accounts yet")

	transfer, err := f.appender.AppendIf(ctx, []Event{NewEvent("AmountTransferred", map[string]any{
		"fromAcct": a, "toAcct": b, "amount": 30.0,
	})}, AppendCondition{Context: both, ExpectedCurrentSequence: seq})
	require.NoError(t, err)

	from, fromSeq, err := BuildFor(ctx, f.projector, accountContext(a), newAccount, evolveAccount(a))
	require.NoError(t, err)
	to, _, err := BuildFor(ctx, f.projector, accountContext(b), newAccount, evolveAccount(b))
	require.NoError(t, err)

	assert.Equal(t, 70.0, from.balance)
	assert.Equal(t, 130.0, to.balance)
	assert.Equal(t, transfer, fromSeq)
}

func TestIntegrationCausationAndCorrelation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := uuid.NewString()
	tc := accountContext(id)

	last, err := f.appender.AppendIf(ctx, []Event{
		NewEvent("AccountOpened", map[string]any{"id": id}),
		NewEvent("AmountDeposited", map[string]any{"amount": 1.0}),
		NewEvent("AmountDeposited", map[string]any{"amount": 2.0}),
	}, AppendCondition{Context: tc, LockingPolicy: LockCorrelationID})
	require.NoError(t, err)

	events, _, err := f.projector.Events(ctx, tc)
	require.NoError(t, err)
	require.Len(t, events, 3)

	first := events[0].Sequence
	assert.Equal(t, last, events[2].Sequence)
	for i, e := range events {
		assert.Equal(t, first, e.CorrelationID)
		assert.Equal(t, []string{id + "@Account"}, e.DomainIDs)
		if i == 0 {
			assert.Equal(t, first, e.CausationID)
		} else {
			assert.Equal(t, events[i-1].Sequence, e.CausationID)
			assert.Greater(t, e.Sequence, events[i-1].Sequence)
		}
	}

	// A second append starts a new correlation root.
	next, err := f.appender.AppendIf(ctx, []Event{NewEvent("AmountDeposited", map[string]any{"amount": 3.0})},
		AppendCondition{Context: tc, ExpectedCurrentSequence: last})
	require.NoError(t, err)
	events, _, err = f.projector.Events(ctx, tc)
	require.NoError(t, err)
	assert.Equal(t, next, events[3].CorrelationID)
	assert.Equal(t, next, events[3].CausationID)
}

func TestIntegrationEventTypeFilter(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := uuid.NewString()

	opened, err := f.appender.AppendIf(ctx, []Event{NewEvent("AccountOpened", map[string]any{"id": id})},
		AppendCondition{Context: accountContext(id)})
	require.NoError(t, err)

	deposits := NewContext([]DomainIdentifier{ID("Account", StateID(id))}, "AmountDeposited")
	_, seq, err := f.projector.Events(ctx, deposits)
	require.NoError(t, err)
	assert.Equal(t, SequenceNumber(0), seq)

	deposit, err := f.appender.AppendIf(ctx, []Event{NewEvent("AmountDeposited", map[string]any{"amount": 1.0})},
		AppendCondition{Context: deposits, ExpectedCurrentSequence: 0})
	require.NoError(t, err)
	assert.Greater(t, deposit, opened)
}

func TestIntegrationPagedProjection(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := uuid.NewString()
	tc := accountContext(id)

	var events []Event
	events = append(events, NewEvent("AccountOpened", map[string]any{"id": id}))
	for i := 0; i < 4; i++ {
		events = append(events, NewEvent("AmountDeposited", map[string]any{"amount": 1.5}))
	}
	last, err := f.appender.AppendIf(ctx, events, AppendCondition{Context: tc})
	require.NoError(t, err)

	acct, seq, err := BuildFor(ctx, f.projector, tc, newAccount, evolveAccount(id))
	require.NoError(t, err)
	assert.Equal(t, 6.0, acct.balance)
	assert.Equal(t, last, seq)
}

func TestIntegrationConcurrentWritersOneWins(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := uuid.NewString()
	tc := accountContext(id)

	opened, err := f.appender.AppendIf(ctx, []Event{NewEvent("AccountOpened", map[string]any{"id": id})}, AppendCondition{Context: tc})
	require.NoError(t, err)

	for _, policy := range []LockingPolicy{LockDomainIDsHash, LockLatestSequenceID} {
		_, expected, err := f.projector.Events(ctx, tc)
		require.NoError(t, err)
		require.GreaterOrEqual(t, expected, opened)

		const writers = 8
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			wins       int
			mismatches int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.appender.AppendIf(ctx, []Event{NewEvent("AmountDeposited", map[string]any{"amount": 1.0})},
					AppendCondition{Context: tc, ExpectedCurrentSequence: expected, LockingPolicy: policy})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrSequenceMismatch):
					mismatches++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins, policy.String())
		assert.Equal(t, writers-1, mismatches, policy.String())
	}
}
