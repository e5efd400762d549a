package ports

import (
	"github.com/brianly1003/notepadtt/internal/domain/events"
)

// Subscriber represents one connected client able to receive push events.
type Subscriber interface {
	// ID returns a unique identifier for this subscriber (the connection id).
	ID() string

	// Send sends an event to this subscriber.
	// Returns error if the subscriber is closed or the send fails.
	Send(event events.Event) error

	// Close closes the subscriber.
	Close() error

	// Done returns a channel that's closed when the subscriber is done.
	Done() <-chan struct{}
}

// EventHub defines the contract for event distribution.
type EventHub interface {
	// Start begins the event hub.
	Start() error

	// Stop gracefully stops the hub.
	Stop() error

	// Publish sends an event to all subscribers.
	Publish(event events.Event)

	// PublishTo sends an event to the listed subscribers only.
	PublishTo(ids []string, event events.Event)

	// PublishExcept sends an event to every subscriber except id.
	PublishExcept(id string, event events.Event)

	// Subscribe adds a new subscriber.
	Subscribe(sub Subscriber)

	// Unsubscribe removes a subscriber by ID.
	Unsubscribe(id string)

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}
