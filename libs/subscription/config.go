package subscription

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
)

const DefaultMaxRows = 250

// Callback runs after a productive poll committed. Its result never affects
// the offset.
type Callback func(ctx context.Context, name string, events []eventstore.PersistedEvent) error

type Config struct {
	Name string
	// EventTypes restricts delivery to these types. Empty delivers all.
	EventTypes []eventstore.EventName
	// MaxRows bounds a single poll. Zero selects DefaultMaxRows.
	MaxRows int
	// Sink must implement exactly one of the sink interfaces.
	Sink     any
	Callback Callback
}

func (c Config) withDefaults() Config {
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	return c
}

func (c Config) validate() error {
	if c.Name == "" {
		return errors.New("subscription name is required")
	}
	_, err := SinkKind(c.Sink)
	return err
}

func (c Config) typeNames() []string {
	names := make([]string, 0, len(c.EventTypes))
	for _, t := range c.EventTypes {
		names = append(names, string(t))
	}
	return names
}

// IntervalConfig drives rescheduling. Nil funcs and zero durations take the
// defaults of DefaultIntervalConfig.
type IntervalConfig struct {
	InitialDelay func() time.Duration
	Interval     time.Duration
	MaxInterval  time.Duration
	Jitter       func() time.Duration
	GreedyDelay  func() time.Duration
}

func DefaultIntervalConfig() IntervalConfig {
	return IntervalConfig{
		InitialDelay: randomDuration(time.Second, 10*time.Second, time.Second),
		Interval:     5 * time.Second,
		MaxInterval:  60 * time.Second,
		Jitter:       randomDuration(0, 10*time.Second, time.Second),
		GreedyDelay:  randomDuration(100*time.Millisecond, 700*time.Millisecond, time.Millisecond),
	}
}

func (c IntervalConfig) withDefaults() IntervalConfig {
	d := DefaultIntervalConfig()
	if c.InitialDelay == nil {
		c.InitialDelay = d.InitialDelay
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.MaxInterval < c.Interval {
		c.MaxInterval = c.Interval
	}
	if c.Jitter == nil {
		c.Jitter = d.Jitter
	}
	if c.GreedyDelay == nil {
		c.GreedyDelay = d.GreedyDelay
	}
	return c
}

// Fixed returns a func always yielding d.
func Fixed(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}

// randomDuration yields values in [lo, hi] in steps of unit.
func randomDuration(lo, hi, unit time.Duration) func() time.Duration {
	steps := int64((hi-lo)/unit) + 1
	return func() time.Duration {
		return lo + time.Duration(rand.Int64N(steps))*unit
	}
}
