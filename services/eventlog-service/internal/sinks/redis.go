package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
	otelx "github.com/md-rashed-zaman/seqlog/libs/otel"
	"github.com/redis/go-redis/v9"
)

// StreamAdder is satisfied by *redis.Client.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream appends every event to a Redis stream, one entry per event.
type RedisStream struct {
	rdb    StreamAdder
	stream string
	maxLen int64
}

// NewRedisStream returns a sink writing to stream. A positive maxLen trims
// the stream approximately to that length.
func NewRedisStream(rdb StreamAdder, stream string, maxLen int64) *RedisStream {
	return &RedisStream{rdb: rdb, stream: stream, maxLen: maxLen}
}

// HandleEvent adds one entry per event. The entry carries the trace context
// of the append that stored the event as traceparent/tracestate fields.
func (r *RedisStream) HandleEvent(ctx context.Context, e eventstore.PersistedEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", e.Sequence, err)
	}
	values := map[string]any{
		"sequence_id":    strconv.FormatInt(int64(e.Sequence), 10),
		"event_type":     string(e.Type),
		"domain_ids":     joinIDs(e.DomainIDs),
		"causation_id":   strconv.FormatInt(int64(e.CausationID), 10),
		"correlation_id": strconv.FormatInt(int64(e.CorrelationID), 10),
		"payload":        string(payload),
	}
	for k, v := range otelx.TraceContextMap(otelx.ContextWithTraceContext(ctx, e.TraceParent, e.TraceState)) {
		values[k] = v
	}
	args := &redis.XAddArgs{Stream: r.stream, Values: values}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

func joinIDs(ids []string) string {
	out, _ := json.Marshal(ids)
	return string(out)
}
