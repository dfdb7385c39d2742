package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"givevault/events"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// messageWriter is the part of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventPublisher ships ledger records to a single Kafka topic keyed by vault
type KafkaEventPublisher struct {
	writer  messageWriter
	topic   string
	metrics SinkMetrics
	now     func() time.Time
}

// NewKafkaEventPublisher creates a publisher writing to topic on brokers.
// Records of one vault hash to one partition, so consumers see them in publish order.
func NewKafkaEventPublisher(brokers []string, topic string, metrics SinkMetrics) *KafkaEventPublisher {
	return newKafkaEventPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}, topic, metrics)
}

func newKafkaEventPublisher(writer messageWriter, topic string, metrics SinkMetrics) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		writer:  writer,
		topic:   topic,
		metrics: metrics,
		now:     time.Now,
	}
}

func (p *KafkaEventPublisher) Name() string {
	return "kafka"
}

// Publish writes one record
func (p *KafkaEventPublisher) Publish(ctx context.Context, event events.Event) error {
	envelope, err := NewEventEnvelope(event, p.now())
	if err != nil {
		return err
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(envelope.PartitionKey),
		Value: data,
		Time:  envelope.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(envelope.EventType)},
			{Key: "event_id", Value: []byte(envelope.EventID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s record to kafka topic %s: %w", event.Type(), p.topic, err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"topic":     p.topic,
	}).Debug("Successfully published event to Kafka")
	return nil
}

// Handle is the bus subscriber
func (p *KafkaEventPublisher) Handle(ctx context.Context, event events.Event) {
	err := p.Publish(ctx, event)
	if err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to ship record to Kafka")
	}
	if p.metrics != nil {
		p.metrics.RecordSinkPublish(ctx, p.Name(), event.Type(), err)
	}
}

// Close flushes buffered messages and closes the writer
func (p *KafkaEventPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
