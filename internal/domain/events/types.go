// Package events defines the push events sent to connected clients.
package events

import (
	"encoding/json"
	"time"

	"github.com/brianly1003/notepadtt/internal/domain"
)

// EventType represents the type of event. The value doubles as the
// notification method name on the wire.
type EventType string

const (
	// EventTypeInfo carries a full tab snapshot.
	EventTypeInfo EventType = "info"

	// EventTypeTabContent carries the text body of one tab.
	EventTypeTabContent EventType = "tabContent"
)

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// GetPayload returns the event payload.
	GetPayload() interface{}

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType EventType   `json:"event"`
	EventTime time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// GetPayload returns the event payload.
func (e *BaseEvent) GetPayload() interface{} {
	return e.Payload
}

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent creates a new base event with the given type and payload.
func NewEvent(eventType EventType, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewInfoEvent creates an info event. The snapshot is copied so later
// mutations by the caller do not leak into queued sends.
func NewInfoEvent(info *domain.Info) *BaseEvent {
	return NewEvent(EventTypeInfo, info.Clone())
}

// NewTabContentEvent creates a tabContent event.
func NewTabContentEvent(content domain.TabContent) *BaseEvent {
	return NewEvent(EventTypeTabContent, content)
}
