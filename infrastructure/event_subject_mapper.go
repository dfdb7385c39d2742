package infrastructure

import (
	"strings"

	"givevault/events"
)

const (
	// RecordStreamName is the JetStream stream holding every vault record
	RecordStreamName = "vault_records"

	subjectPrefix = "vault."
)

// EventSubjectMapper handles mapping between ledger records and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a record to its subject, e.g. vault.deposit
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	return subjectPrefix + string(event.Type())
}

// MapSubjectToEventType converts a subject back to a record type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	return events.EventType(strings.TrimPrefix(subject, subjectPrefix))
}

// GetAllSubjects returns every subject this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	subjects := make([]string, 0, len(events.AllEventTypes))
	for _, eventType := range events.AllEventTypes {
		subjects = append(subjects, subjectPrefix+string(eventType))
	}
	return subjects
}
