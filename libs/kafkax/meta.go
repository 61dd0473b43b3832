package kafkax

import (
	"strconv"
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderSequenceID    = "sequence_id"
	HeaderEventType     = "event_type"
	HeaderCausationID   = "causation_id"
	HeaderCorrelationID = "correlation_id"
)

// EventMeta is the log metadata carried on Kafka messages published from the event log.
type EventMeta struct {
	SequenceID    int64
	EventType     string
	CausationID   int64
	CorrelationID int64
}

func (m EventMeta) Headers() []kafka.Header {
	return []kafka.Header{
		{Key: HeaderSequenceID, Value: []byte(strconv.FormatInt(m.SequenceID, 10))},
		{Key: HeaderEventType, Value: []byte(m.EventType)},
		{Key: HeaderCausationID, Value: []byte(strconv.FormatInt(m.CausationID, 10))},
		{Key: HeaderCorrelationID, Value: []byte(strconv.FormatInt(m.CorrelationID, 10))},
	}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
