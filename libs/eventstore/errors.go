package eventstore

import (
	"errors"
	"fmt"
)

var (
	// ErrSequenceMismatch matches every *SequenceMismatchError.
	ErrSequenceMismatch = errors.New("sequence mismatch")

	// ErrNoEvents indicates an attempt to append zero events.
	ErrNoEvents = errors.New("no events to append")

	// ErrInvalidEvent indicates an event without a type.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidIdentifier indicates a domain identifier that cannot be
	// stored unambiguously.
	ErrInvalidIdentifier = errors.New("invalid domain identifier")

	// ErrUnknownLockingPolicy indicates a LockingPolicy outside the closed set.
	ErrUnknownLockingPolicy = errors.New("unknown locking policy")
)

// SequenceMismatchError is returned when the current sequence of the context
// differs from the one the caller expected. Nothing was written.
type SequenceMismatchError struct {
	Expected SequenceNumber
	Actual   SequenceNumber
}

func (e *SequenceMismatchError) Error() string {
	return fmt.Sprintf("sequence mismatch: current sequence is %d, expected %d", e.Actual, e.Expected)
}

func (e *SequenceMismatchError) Is(target error) bool {
	return target == ErrSequenceMismatch
}
