package infrastructure

import (
	"context"

	"givevault/events"
)

// MessagePublisher defines the interface for publishing messages to a message bus
type MessagePublisher interface {
	// Publish publishes a message to the specified subject
	Publish(ctx context.Context, subject string, data []byte) error
}

// SinkMetrics receives the outcome of every record shipped off-process. A nil SinkMetrics is valid.
type SinkMetrics interface {
	RecordSinkPublish(ctx context.Context, sink string, eventType events.EventType, err error)
}

// RecordSink ships ledger records to an external system. Handle never fails the caller:
// sink errors are logged and counted.
type RecordSink interface {
	Name() string
	Handle(ctx context.Context, event events.Event)
	Close() error
}

// AttachSink subscribes sink to every record type on bus
func AttachSink(bus *events.Bus, sink RecordSink) {
	bus.SubscribeAll(sink.Handle)
}
