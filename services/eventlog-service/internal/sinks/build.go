package sinks

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
	"github.com/md-rashed-zaman/seqlog/libs/subscription"
	"github.com/md-rashed-zaman/seqlog/services/eventlog-service/internal/config"
)

// Deps are the shared clients sinks write to. Kafka and Redis may be nil when
// no subscription uses them.
type Deps struct {
	Kafka  MessageWriter
	Redis  StreamAdder
	Logger *slog.Logger
}

// Build turns a subscription definition into engine configuration.
func Build(spec config.SubscriptionSpec, deps Deps) (subscription.Config, subscription.IntervalConfig, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sink any
	switch spec.Sink.Kind {
	case config.SinkKafka:
		if deps.Kafka == nil {
			return subscription.Config{}, subscription.IntervalConfig{}, fmt.Errorf("subscription %q: kafka sink without KAFKA_BROKERS", spec.Name)
		}
		sink = NewKafka(deps.Kafka, spec.Sink.Topic)
	case config.SinkRedis:
		if deps.Redis == nil {
			return subscription.Config{}, subscription.IntervalConfig{}, fmt.Errorf("subscription %q: redis sink without REDIS_ADDR", spec.Name)
		}
		sink = NewRedisStream(deps.Redis, spec.Sink.Stream, spec.Sink.MaxLen)
	case config.SinkPGCopy:
		sink = NewJournal(spec.Name)
	case config.SinkLog:
		sink = NewLog(logger.With("subscription", spec.Name))
	default:
		return subscription.Config{}, subscription.IntervalConfig{}, fmt.Errorf("subscription %q: unknown sink kind %q", spec.Name, spec.Sink.Kind)
	}

	cfg := subscription.Config{
		Name:    spec.Name,
		MaxRows: spec.MaxRows,
		Sink:    sink,
	}
	for _, t := range spec.EventTypes {
		cfg.EventTypes = append(cfg.EventTypes, eventstore.EventName(t))
	}
	if spec.LogCallback {
		cfg.Callback = LogCallback(logger)
	}
	return cfg, intervals(spec.Interval), nil
}

func intervals(spec config.IntervalSpec) subscription.IntervalConfig {
	iv := subscription.IntervalConfig{
		Interval:    spec.Interval,
		MaxInterval: spec.MaxInterval,
	}
	if spec.InitialDelay > 0 {
		iv.InitialDelay = subscription.Fixed(spec.InitialDelay)
	}
	if spec.MaxJitter > 0 {
		seconds := int64(spec.MaxJitter / time.Second)
		iv.Jitter = func() time.Duration {
			return time.Duration(rand.Int64N(seconds+1)) * time.Second
		}
	}
	return iv
}
