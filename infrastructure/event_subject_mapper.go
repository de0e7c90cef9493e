package infrastructure

import (
	"fmt"

	"fundledger/events"
)

// EventSubjectMapper maps domain events to NATS subjects under a common prefix
type EventSubjectMapper struct {
	prefix string
}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper(prefix string) *EventSubjectMapper {
	if prefix == "" {
		prefix = "fund"
	}
	return &EventSubjectMapper{prefix: prefix}
}

// MapEventToSubject converts a domain event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeRequestQueued:
		return m.prefix + ".requests.queued"
	case events.EventTypeDayClosed:
		return m.prefix + ".settlement.closed"
	case events.EventTypePlacementOpened:
		return m.prefix + ".placements.opened"
	case events.EventTypePlacementRetired:
		return m.prefix + ".placements.retired"
	default:
		return fmt.Sprintf("%s.unknown.%s", m.prefix, event.Type())
	}
}

// GetAllSubjects returns the subjects a stream must capture
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{m.prefix + ".>"}
}
