package eventstore

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// StateName is the type part of a DomainIdentifier, e.g. "Account".
type StateName string

// StateID is the instance part of a DomainIdentifier, e.g. "42".
type StateID string

// EventName is an event type.
type EventName string

// SequenceNumber is the global position of an event. Zero means no events.
type SequenceNumber int64

const tokenSeparator = "@"

// DomainIdentifier names one entity a stream of events concerns.
type DomainIdentifier struct {
	Name StateName
	ID   StateID
}

// ID builds a DomainIdentifier.
func ID(name StateName, id StateID) DomainIdentifier {
	return DomainIdentifier{Name: name, ID: id}
}

// Token is the storage form: id@name. Both parts are NFC normalized so
// that visually equal identifiers share a stream, a lock and a hash.
func (d DomainIdentifier) Token() string {
	return norm.NFC.String(string(d.ID)) + tokenSeparator + norm.NFC.String(string(d.Name))
}

func (d DomainIdentifier) String() string {
	return string(d.Name) + ":" + string(d.ID)
}

// Validate rejects identifiers whose token would be ambiguous: both parts
// are required and the name may not contain the token separator.
func (d DomainIdentifier) Validate() error {
	switch {
	case d.Name == "" || d.ID == "":
		return fmt.Errorf("%w: %q needs name and id", ErrInvalidIdentifier, d.String())
	case strings.Contains(string(d.Name), tokenSeparator):
		return fmt.Errorf("%w: name %q contains %q", ErrInvalidIdentifier, d.Name, tokenSeparator)
	}
	return nil
}

// ParseToken is the inverse of Token. It splits on the last separator, so
// ids may contain '@'.
func ParseToken(token string) (DomainIdentifier, error) {
	i := strings.LastIndex(token, tokenSeparator)
	if i <= 0 || i == len(token)-len(tokenSeparator) {
		return DomainIdentifier{}, fmt.Errorf("malformed domain id token %q", token)
	}
	return DomainIdentifier{Name: StateName(token[i+len(tokenSeparator):]), ID: StateID(token[:i])}, nil
}

// ParseIdentifier parses the "Name:ID" form used by String.
func ParseIdentifier(s string) (DomainIdentifier, error) {
	name, id, ok := strings.Cut(s, ":")
	if !ok || name == "" || id == "" {
		return DomainIdentifier{}, fmt.Errorf("malformed domain identifier %q, want Name:ID", s)
	}
	return DomainIdentifier{Name: StateName(name), ID: StateID(id)}, nil
}

// TransactionContext selects the streams an append conditions on and a
// projection reads. An empty EventTypes list matches every event type.
type TransactionContext struct {
	Identifiers []DomainIdentifier
	EventTypes  []EventName
}

// Validate checks every identifier of the context.
func (tc TransactionContext) Validate() error {
	for _, id := range tc.Identifiers {
		if err := id.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewContext builds a TransactionContext.
func NewContext(ids []DomainIdentifier, types ...EventName) TransactionContext {
	return TransactionContext{Identifiers: ids, EventTypes: types}
}

// Tokens returns the sorted, de-duplicated storage tokens of the identifiers.
func (tc TransactionContext) Tokens() []string {
	tokens := make([]string, 0, len(tc.Identifiers))
	for _, id := range tc.Identifiers {
		tokens = append(tokens, id.Token())
	}
	slices.Sort(tokens)
	return slices.Compact(tokens)
}

// TypeNames returns the sorted, de-duplicated event type names.
func (tc TransactionContext) TypeNames() []string {
	names := make([]string, 0, len(tc.EventTypes))
	for _, t := range tc.EventTypes {
		names = append(names, string(t))
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Equal compares canonical forms, so ordering and duplicates do not matter.
func (tc TransactionContext) Equal(other TransactionContext) bool {
	return slices.Equal(tc.Tokens(), other.Tokens()) && slices.Equal(tc.TypeNames(), other.TypeNames())
}

// Event is an event type plus an untyped JSON document.
type Event struct {
	Type    EventName
	Payload map[string]any
}

// NewEvent builds an Event.
func NewEvent(typ EventName, payload map[string]any) Event {
	return Event{Type: typ, Payload: payload}
}

// PersistedEvent is an event as stored in the log.
type PersistedEvent struct {
	Event
	Sequence      SequenceNumber
	DomainIDs     []string
	CausationID   SequenceNumber
	CorrelationID SequenceNumber
	// W3C trace context of the append that stored the event, if any.
	TraceParent   string
	TraceState    string
	CreatedAt     time.Time
}

// AppendCondition is the optimistic concurrency precondition of an append.
type AppendCondition struct {
	Context                 TransactionContext
	ExpectedCurrentSequence SequenceNumber
	// LockingPolicy defaults to LockDomainIDsHash when zero.
	LockingPolicy LockingPolicy
}
