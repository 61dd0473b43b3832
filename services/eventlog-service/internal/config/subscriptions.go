package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the YAML document named by SUBSCRIPTIONS_FILE.
//
//	eventTypes:
//	  - name: AccountOpened
//	    required: [id]
//	subscriptions:
//	  - name: accounts-to-kafka
//	    eventTypes: [AccountOpened, AmountDeposited]
//	    maxRows: 250
//	    sink: {kind: kafka, topic: account-events}
//	    interval: {interval: 5s, maxInterval: 60s}
type File struct {
	EventTypes    []EventTypeSpec    `yaml:"eventTypes"`
	Subscriptions []SubscriptionSpec `yaml:"subscriptions"`
}

type EventTypeSpec struct {
	Name     string   `yaml:"name"`
	Required []string `yaml:"required"`
}

type SubscriptionSpec struct {
	Name       string       `yaml:"name"`
	EventTypes []string     `yaml:"eventTypes"`
	MaxRows    int          `yaml:"maxRows"`
	Sink       SinkSpec     `yaml:"sink"`
	Interval   IntervalSpec `yaml:"interval"`
	// LogCallback logs a summary after every productive poll.
	LogCallback bool `yaml:"logCallback"`
}

type SinkSpec struct {
	Kind string `yaml:"kind"`
	// Topic is the Kafka topic for kind kafka.
	Topic string `yaml:"topic"`
	// Stream and MaxLen configure kind redis.
	Stream string `yaml:"stream"`
	MaxLen int64  `yaml:"maxLen"`
}

// IntervalSpec overrides scheduling defaults. Zero values keep the default.
type IntervalSpec struct {
	InitialDelay time.Duration `yaml:"initialDelay"`
	Interval     time.Duration `yaml:"interval"`
	MaxInterval  time.Duration `yaml:"maxInterval"`
	// MaxJitter draws jitter uniformly from [0, MaxJitter] in whole seconds.
	MaxJitter time.Duration `yaml:"maxJitter"`
}

const (
	SinkKafka  = "kafka"
	SinkRedis  = "redis"
	SinkPGCopy = "pgcopy"
	SinkLog    = "log"
)

// LoadFile reads and validates a subscriptions file. An empty path yields an
// empty File.
func LoadFile(path string) (File, error) {
	if path == "" {
		return File{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read subscriptions file: %w", err)
	}
	return ParseFile(raw)
}

func ParseFile(raw []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("parse subscriptions file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f File) Validate() error {
	seen := map[string]bool{}
	for i, s := range f.Subscriptions {
		if s.Name == "" {
			return fmt.Errorf("subscription %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("subscription %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if s.MaxRows < 0 {
			return fmt.Errorf("subscription %q: maxRows must not be negative", s.Name)
		}
		switch s.Sink.Kind {
		case SinkKafka:
			if s.Sink.Topic == "" {
				return fmt.Errorf("subscription %q: kafka sink needs a topic", s.Name)
			}
		case SinkRedis:
			if s.Sink.Stream == "" {
				return fmt.Errorf("subscription %q: redis sink needs a stream", s.Name)
			}
		case SinkPGCopy, SinkLog:
		default:
			return fmt.Errorf("subscription %q: unknown sink kind %q", s.Name, s.Sink.Kind)
		}
	}
	for i, t := range f.EventTypes {
		if t.Name == "" {
			return fmt.Errorf("event type %d: name is required", i)
		}
	}
	return nil
}

// NeedsKafka reports whether any subscription publishes to Kafka.
func (f File) NeedsKafka() bool { return f.uses(SinkKafka) }

// NeedsRedis reports whether any subscription writes to a Redis stream.
func (f File) NeedsRedis() bool { return f.uses(SinkRedis) }

func (f File) uses(kind string) bool {
	for _, s := range f.Subscriptions {
		if s.Sink.Kind == kind {
			return true
		}
	}
	return false
}
