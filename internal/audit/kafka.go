package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes committed audit events to a Kafka topic for downstream
// compliance and ops pipelines. Delivery is asynchronous and best-effort: a
// broker outage is logged, never surfaced to the causing operation. The
// durable trail lives in the store; this is fan-out only.
type KafkaSink struct {
	client *kgo.Client
	logger *slog.Logger
}

// kafkaEvent is the wire shape published to the topic.
type kafkaEvent struct {
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   string            `json:"target_id"`
	OwnerID    string            `json:"owner_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	CreatedAt  string            `json:"created_at"`
}

// NewKafkaSink connects a producer for the given brokers and topic.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{client: client, logger: logger}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) {
	payload := kafkaEvent{
		Actor:      event.Actor,
		Action:     string(event.Action),
		TargetType: event.TargetType,
		TargetID:   event.TargetID,
		Metadata:   event.Metadata,
		RequestID:  event.RequestID,
		CreatedAt:  event.CreatedAt.Format(time.RFC3339Nano),
	}
	if !event.OwnerID.IsNil() {
		payload.OwnerID = event.OwnerID.String()
	}

	value, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal audit event for kafka", "error", err)
		return
	}

	record := &kgo.Record{
		Key:   []byte(event.TargetType + ":" + event.TargetID),
		Value: value,
	}
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Error("publish audit event to kafka",
				"action", string(event.Action),
				"error", err,
			)
		}
	})
}

// Close flushes buffered records and shuts the producer down.
func (s *KafkaSink) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Flush(ctx)
	s.client.Close()
}
