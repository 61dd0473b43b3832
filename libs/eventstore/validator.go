package eventstore

import (
	"fmt"
	"sort"
	"sync"
)

// Validator checks events before they are appended. The Appender does not
// call it; callers accepting events from outside do.
type Validator interface {
	Validate(events []Event) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(events []Event) error

func (f ValidatorFunc) Validate(events []Event) error { return f(events) }

// TypeRegistry accepts only registered event types, each with an optional set
// of payload fields that must be present.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[EventName][]string
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: map[EventName][]string{}}
}

// Register adds or replaces an event type.
func (r *TypeRegistry) Register(name EventName, requiredFields ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = append([]string(nil), requiredFields...)
}

// Types lists registered event types in name order.
func (r *TypeRegistry) Types() []EventName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventName, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *TypeRegistry) Validate(events []Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, e := range events {
		fields, ok := r.types[e.Type]
		if !ok {
			return fmt.Errorf("%w: event %d has unknown type %q", ErrInvalidEvent, i, e.Type)
		}
		for _, f := range fields {
			if _, ok := e.Payload[f]; !ok {
				return fmt.Errorf("%w: event %d (%s) is missing field %q", ErrInvalidEvent, i, e.Type, f)
			}
		}
	}
	return nil
}
