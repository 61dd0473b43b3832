// Package eventstore is the write and read side of the event log.
//
// Events are appended with AppendIf under an AppendCondition: the caller
// states the last sequence it observed for a TransactionContext and the
// append is rejected with a SequenceMismatchError when somebody else wrote to
// that context in the meantime. The observed sequence comes from BuildFor,
// which folds the matching events into caller state:
//
//	state, seq, err := eventstore.BuildFor(ctx, projector, tc, newAccount, evolveAccount)
//	// decide ...
//	last, err := appender.AppendIf(ctx, events, eventstore.AppendCondition{
//	    Context:                 tc,
//	    ExpectedCurrentSequence: seq,
//	})
//
// Sequence numbers are global across the whole log. Within one append the
// first event is its own causation and correlation root; every following
// event is caused by its predecessor and correlated to the first one.
package eventstore
