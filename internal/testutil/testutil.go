// Package testutil provides shared fakes for hub and subscriber tests.
package testutil

import (
	"sync"

	"github.com/brianly1003/notepadtt/internal/domain/events"
	"github.com/brianly1003/notepadtt/internal/domain/ports"
)

// MockSubscriber implements ports.Subscriber for testing.
type MockSubscriber struct {
	id       string
	events   []events.Event
	mu       sync.Mutex
	closed   bool
	sendErr  error
	sendFunc func(events.Event) error
	done     chan struct{}
}

// NewMockSubscriber creates a new mock subscriber.
func NewMockSubscriber(id string) *MockSubscriber {
	return &MockSubscriber{
		id:     id,
		events: make([]events.Event, 0),
		done:   make(chan struct{}),
	}
}

// ID returns the subscriber ID.
func (m *MockSubscriber) ID() string {
	return m.id
}

// Send records the event and returns any configured error.
func (m *MockSubscriber) Send(e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendFunc != nil {
		return m.sendFunc(e)
	}

	if m.sendErr != nil {
		return m.sendErr
	}

	m.events = append(m.events, e)
	return nil
}

// Close marks the subscriber as closed.
func (m *MockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Done returns a channel that's closed when the subscriber is done.
func (m *MockSubscriber) Done() <-chan struct{} {
	return m.done
}

// Events returns all received events.
func (m *MockSubscriber) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

// EventCount returns the number of received events.
func (m *MockSubscriber) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// IsClosed returns whether the subscriber was closed.
func (m *MockSubscriber) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetSendError configures an error to return on Send.
func (m *MockSubscriber) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetSendFunc sets a custom function for Send behavior.
func (m *MockSubscriber) SetSendFunc(fn func(events.Event) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendFunc = fn
}

// ClearEvents removes all recorded events.
func (m *MockSubscriber) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = m.events[:0]
}

// Ensure MockSubscriber implements ports.Subscriber.
var _ ports.Subscriber = (*MockSubscriber)(nil)

// Published is one event recorded by MockEventHub. Targets is nil for
// events sent to everyone.
type Published struct {
	Event   events.Event
	Targets []string
	Except  string
}

// MockEventHub implements ports.EventHub and records what was published.
type MockEventHub struct {
	mu          sync.Mutex
	published   []Published
	subscribers []ports.Subscriber
	started     bool
	stopped     bool
}

// NewMockEventHub creates a new mock event hub.
func NewMockEventHub() *MockEventHub {
	return &MockEventHub{}
}

// Start marks the hub as started.
func (m *MockEventHub) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

// Stop marks the hub as stopped.
func (m *MockEventHub) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

// Publish records an event for everyone.
func (m *MockEventHub) Publish(e events.Event) {
	m.record(Published{Event: e})
}

// PublishTo records an event for the listed subscribers.
func (m *MockEventHub) PublishTo(ids []string, e events.Event) {
	targets := make([]string, len(ids))
	copy(targets, ids)
	m.record(Published{Event: e, Targets: targets})
}

// PublishExcept records an event for everyone but id.
func (m *MockEventHub) PublishExcept(id string, e events.Event) {
	m.record(Published{Event: e, Except: id})
}

func (m *MockEventHub) record(p Published) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, p)
}

// Subscribe records the subscriber.
func (m *MockEventHub) Subscribe(sub ports.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
}

// Unsubscribe removes a subscriber by ID.
func (m *MockEventHub) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub.ID() == id {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of subscribers.
func (m *MockEventHub) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

// IsRunning returns true if the hub was started and not stopped.
func (m *MockEventHub) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && !m.stopped
}

// PublishedEvents returns everything published so far.
func (m *MockEventHub) PublishedEvents() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Published, len(m.published))
	copy(result, m.published)
	return result
}

// PublishedOfType returns the recorded publications of one event type.
func (m *MockEventHub) PublishedOfType(t events.EventType) []Published {
	var result []Published
	for _, p := range m.PublishedEvents() {
		if p.Event.Type() == t {
			result = append(result, p)
		}
	}
	return result
}

// Reset forgets recorded publications.
func (m *MockEventHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

var _ ports.EventHub = (*MockEventHub)(nil)
