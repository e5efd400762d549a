// Package hub fans push events out to connected clients.
package hub

import (
	"time"

	"github.com/brianly1003/notepadtt/internal/domain/events"
	"github.com/brianly1003/notepadtt/internal/domain/ports"
	"github.com/brianly1003/notepadtt/internal/sync"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultInfoWait is how long Publish waits for room in the queue before an
// info event is dropped. Other events are dropped at once when the queue is full.
const DefaultInfoWait = 2 * time.Second

// delivery is one event plus its audience. A nil targets list means everyone.
type delivery struct {
	event   events.Event
	targets []string
	except  string
}

// Hub is the central event dispatcher. Events are handled one at a time in
// publish order; each event is sent to its subscribers concurrently.
type Hub struct {
	// subscribers holds all active subscribers keyed by connection id
	subscribers map[string]ports.Subscriber

	// broadcast channel receives events to be delivered
	broadcast chan delivery
	infoWait  time.Duration

	register   chan ports.Subscriber
	unregister chan string

	// mu protects subscribers and running
	mu sync.RWMutex

	done    chan struct{}
	running bool
}

// New creates a new Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]ports.Subscriber),
		broadcast:   make(chan delivery, 256),
		infoWait:    DefaultInfoWait,
		register:    make(chan ports.Subscriber),
		unregister:  make(chan string),
		done:        make(chan struct{}),
	}
}

// Start begins the hub's main loop.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	log.Debug().Msg("event hub started")

	go h.run()
	return nil
}

// Stop closes every subscriber and ends the main loop.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	h.mu.Unlock()

	close(h.done)

	h.mu.Lock()
	for _, sub := range h.subscribers {
		_ = sub.Close()
	}
	h.subscribers = make(map[string]ports.Subscriber)
	h.mu.Unlock()

	log.Debug().Msg("event hub stopped")
	return nil
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub.ID()] = sub
			h.mu.Unlock()
			log.Debug().Str("client_id", sub.ID()).Msg("subscriber registered")

		case id := <-h.unregister:
			h.remove(id)

		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()

	if ok {
		_ = sub.Close()
		log.Debug().Str("client_id", id).Msg("subscriber unregistered")
	}
}

// deliver sends d to its audience concurrently and waits for every send to
// return. Failing subscribers are removed.
func (h *Hub) deliver(d delivery) {
	targets := h.audience(d)
	if len(targets) == 0 {
		return
	}

	var (
		g      errgroup.Group
		failMu sync.Mutex
		failed []string
	)
	for _, sub := range targets {
		g.Go(func() error {
			if err := sub.Send(d.event); err != nil {
				log.Warn().
					Str("client_id", sub.ID()).
					Str("event_type", string(d.event.Type())).
					Err(err).
					Msg("failed to send event to subscriber")
				failMu.Lock()
				failed = append(failed, sub.ID())
				failMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range failed {
		h.remove(id)
	}
}

func (h *Hub) audience(d delivery) []ports.Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var subs []ports.Subscriber
	if d.targets == nil {
		subs = make([]ports.Subscriber, 0, len(h.subscribers))
		for id, sub := range h.subscribers {
			if id != d.except {
				subs = append(subs, sub)
			}
		}
		return subs
	}

	for _, id := range d.targets {
		if sub, ok := h.subscribers[id]; ok && id != d.except {
			subs = append(subs, sub)
		}
	}
	return subs
}

// enqueue queues d. When the queue is full, info events wait up to infoWait
// for space and everything else is dropped.
func (h *Hub) enqueue(d delivery) {
	select {
	case h.broadcast <- d:
		log.Trace().
			Str("event_type", string(d.event.Type())).
			Int("targets", len(d.targets)).
			Msg("event published")
		return
	default:
	}

	if d.event.Type() != events.EventTypeInfo {
		log.Warn().
			Str("event_type", string(d.event.Type())).
			Msg("event dropped: broadcast channel full")
		return
	}

	timer := time.NewTimer(h.infoWait)
	defer timer.Stop()
	select {
	case h.broadcast <- d:
		log.Debug().Msg("info event published after waiting for queue space")
	case <-h.done:
	case <-timer.C:
		log.Error().
			Dur("waited", h.infoWait).
			Msg("info event dropped: broadcast channel full")
	}
}

// Publish sends an event to all subscribers.
func (h *Hub) Publish(event events.Event) {
	h.enqueue(delivery{event: event})
}

// PublishTo sends an event to the listed subscribers. Unknown ids are skipped.
func (h *Hub) PublishTo(ids []string, event events.Event) {
	if len(ids) == 0 {
		return
	}
	targets := make([]string, len(ids))
	copy(targets, ids)
	h.enqueue(delivery{event: event, targets: targets})
}

// PublishExcept sends an event to every subscriber but one.
func (h *Hub) PublishExcept(id string, event events.Event) {
	h.enqueue(delivery{event: event, except: id})
}

// Subscribe adds a new subscriber. Events published after Subscribe returns
// reach it.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	select {
	case h.register <- sub:
	case <-h.done:
	}
}

// Unsubscribe removes a subscriber by ID.
func (h *Hub) Unsubscribe(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// IsRunning returns true if the hub is running.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
