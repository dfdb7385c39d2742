package infrastructure

import (
	"context"

	"givevault/events"

	log "github.com/sirupsen/logrus"
)

// LogEventSink writes every record to the structured log
type LogEventSink struct {
	logger *log.Logger
}

// NewLogEventSink creates a sink writing to logger, or to the standard logger when nil
func NewLogEventSink(logger *log.Logger) *LogEventSink {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogEventSink{logger: logger}
}

func (s *LogEventSink) Name() string {
	return "log"
}

func (s *LogEventSink) Handle(ctx context.Context, event events.Event) {
	s.logger.WithFields(log.Fields{
		"eventType": event.Type(),
		"key":       PartitionKey(event),
		"record":    event,
	}).Info("Ledger record")
}

func (s *LogEventSink) Close() error {
	return nil
}

// NoopEventSink drops every record
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-op sink
func NewNoopEventSink() *NoopEventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) Name() string {
	return "none"
}

func (n *NoopEventSink) Handle(ctx context.Context, event events.Event) {}

func (n *NoopEventSink) Close() error {
	return nil
}
