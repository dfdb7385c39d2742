package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"givevault/events"

	log "github.com/sirupsen/logrus"
)

// NATSEventPublisher ships ledger records to JetStream subjects vault.<type>
type NATSEventPublisher struct {
	publisher     MessagePublisher
	subjectMapper *EventSubjectMapper
	metrics       SinkMetrics
	now           func() time.Time
}

// NewNATSEventPublisher creates a new NATS record sink
func NewNATSEventPublisher(publisher MessagePublisher, subjectMapper *EventSubjectMapper, metrics SinkMetrics) *NATSEventPublisher {
	return &NATSEventPublisher{
		publisher:     publisher,
		subjectMapper: subjectMapper,
		metrics:       metrics,
		now:           time.Now,
	}
}

func (p *NATSEventPublisher) Name() string {
	return "nats"
}

// Publish wraps the record in an envelope and publishes it to its subject
func (p *NATSEventPublisher) Publish(ctx context.Context, event events.Event) error {
	envelope, err := NewEventEnvelope(event, p.now())
	if err != nil {
		return err
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := p.subjectMapper.MapEventToSubject(event)
	if err := p.publisher.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")
	return nil
}

// Handle is the bus subscriber
func (p *NATSEventPublisher) Handle(ctx context.Context, event events.Event) {
	err := p.Publish(ctx, event)
	if err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to ship record to NATS")
	}
	if p.metrics != nil {
		p.metrics.RecordSinkPublish(ctx, p.Name(), event.Type(), err)
	}
}

// Close closes the underlying publisher when it holds a connection
func (p *NATSEventPublisher) Close() error {
	if closer, ok := p.publisher.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
