package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
	"github.com/md-rashed-zaman/seqlog/libs/kafkax"
	otelx "github.com/md-rashed-zaman/seqlog/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka publishes each poll as one batch of messages to a topic. The message
// key is the first domain id of the event so a stream keeps its order within
// a partition. Trace headers carry the context of the append that stored the
// event, falling back to the poll's own span.
type Kafka struct {
	writer MessageWriter
	topic  string
	tracer trace.Tracer
}

func NewKafka(writer MessageWriter, topic string) *Kafka {
	return &Kafka{writer: writer, topic: topic, tracer: otelx.Tracer("seqlog/sinks")}
}

func (k *Kafka) HandleEvents(ctx context.Context, events []eventstore.PersistedEvent) error {
	ctx, span := k.tracer.Start(ctx, "sink.kafka.publish", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", k.topic),
			attribute.Int("messaging.batch.message_count", len(events)),
		))
	defer span.End()

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msg, err := k.message(ctx, e)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), k.topic, err)
	}
	return nil
}

func (k *Kafka) message(ctx context.Context, e eventstore.PersistedEvent) (kafka.Message, error) {
	value, err := json.Marshal(e.Payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %d: %w", e.Sequence, err)
	}
	var key []byte
	if len(e.DomainIDs) > 0 {
		key = []byte(e.DomainIDs[0])
	}
	meta := kafkax.EventMeta{
		SequenceID:    int64(e.Sequence),
		EventType:     string(e.Type),
		CausationID:   int64(e.CausationID),
		CorrelationID: int64(e.CorrelationID),
	}
	return kafka.Message{
		Topic:   k.topic,
		Key:     key,
		Value:   value,
		Headers: kafkax.InjectTraceHeaders(otelx.ContextWithTraceContext(ctx, e.TraceParent, e.TraceState), meta.Headers()),
	}, nil
}

// NewKafkaWriter builds the shared writer used by every Kafka sink. Topics are
// set per message.
func NewKafkaWriter(brokers string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(kafkax.SplitBrokers(brokers)...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
