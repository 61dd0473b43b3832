package eventstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refusingBeginner struct{ t *testing.T }

func (b refusingBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	b.t.Fatal("transaction opened for a request that should have been rejected")
	return nil, nil
}

type failingBeginner struct{ err error }

func (b failingBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, b.err
}

func TestCausalChain(t *testing.T) {
	links := causalChain([]SequenceNumber{10, 11, 12})
	assert.Equal(t, []causalLink{
		{causation: 10, correlation: 10},
		{causation: 10, correlation: 10},
		{causation: 11, correlation: 10},
	}, links)

	assert.Equal(t, []causalLink{{causation: 5, correlation: 5}}, causalChain([]SequenceNumber{5}))
	assert.Empty(t, causalChain(nil))
}

func TestAppendIfRejectsBeforeTouchingStore(t *testing.T) {
	a := NewAppender(refusingBeginner{t}, nil)
	cond := AppendCondition{Context: NewContext([]DomainIdentifier{ID("Account", "1")})}

	_, err := a.AppendIf(context.Background(), nil, cond)
	assert.ErrorIs(t, err, ErrNoEvents)

	_, err = a.AppendIf(context.Background(), []Event{NewEvent("", nil)}, cond)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = a.AppendIf(context.Background(), []Event{NewEvent("AccountOpened", map[string]any{"bad": make(chan int)})}, cond)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	ambiguous := AppendCondition{Context: NewContext([]DomainIdentifier{ID("example.com@User", "alice")})}
	_, err = a.AppendIf(context.Background(), []Event{NewEvent("UserRegistered", nil)}, ambiguous)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	cond.LockingPolicy = LockingPolicy(42)
	_, err = a.AppendIf(context.Background(), []Event{NewEvent("AccountOpened", nil)}, cond)
	assert.ErrorIs(t, err, ErrUnknownLockingPolicy)
}

func TestAppendIfSurfacesStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	a := NewAppender(failingBeginner{err: boom}, nil)

	_, err := a.AppendIf(context.Background(), []Event{NewEvent("AccountOpened", nil)}, AppendCondition{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrSequenceMismatch)
}

func TestSequenceMismatchError(t *testing.T) {
	var err error = &SequenceMismatchError{Expected: 1, Actual: 3}
	wrapped := fmt.Errorf("transfer: %w", err)

	assert.ErrorIs(t, wrapped, ErrSequenceMismatch)
	var mismatch *SequenceMismatchError
	require.ErrorAs(t, wrapped, &mismatch)
	assert.Equal(t, SequenceNumber(1), mismatch.Expected)
	assert.Equal(t, SequenceNumber(3), mismatch.Actual)
	assert.Equal(t, "sequence mismatch: current sequence is 3, expected 1", err.Error())
}
