// Package rpc serves JSON-RPC 2.0 to tab clients and pushes hub events to them
// as notifications.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/domain/events"
	"github.com/brianly1003/notepadtt/internal/domain/ports"
	"github.com/brianly1003/notepadtt/internal/rpc/handler"
	"github.com/brianly1003/notepadtt/internal/rpc/message"
	"github.com/brianly1003/notepadtt/internal/rpc/transport"
	"github.com/brianly1003/notepadtt/internal/sync"
	"github.com/rs/zerolog/log"
)

// DefaultSendBuffer is the number of outgoing messages queued per client.
const DefaultSendBuffer = 256

// ConnectionHooks is told when a client connects and after it disconnects.
type ConnectionHooks interface {
	Connected(connID string)
	Disconnected(connID string)
}

// Server handles JSON-RPC communication over transports.
type Server struct {
	dispatcher *handler.Dispatcher
	hub        ports.EventHub
	hooks      ConnectionHooks

	// clients tracks active client connections
	clients   map[string]*Client
	clientsMu sync.RWMutex
}

// NewServer creates a new RPC server. hub and hooks may be nil.
func NewServer(dispatcher *handler.Dispatcher, hub ports.EventHub, hooks ConnectionHooks) *Server {
	return &Server{
		dispatcher: dispatcher,
		hub:        hub,
		hooks:      hooks,
		clients:    make(map[string]*Client),
	}
}

// ServeTransport handles a single transport connection.
// This method blocks until the transport is closed or ctx is cancelled.
func (s *Server) ServeTransport(ctx context.Context, t transport.Transport) error {
	client := NewClient(t, s.dispatcher)
	id := client.ID()

	s.clientsMu.Lock()
	s.clients[id] = client
	s.clientsMu.Unlock()

	if s.hub != nil {
		s.hub.Subscribe(client)
	}

	log.Debug().Str("client_id", id).Msg("RPC client connected")

	if s.hooks != nil {
		s.hooks.Connected(id)
	}

	err := client.Serve(ctx)

	s.clientsMu.Lock()
	delete(s.clients, id)
	s.clientsMu.Unlock()

	if s.hooks != nil {
		s.hooks.Disconnected(id)
	}
	if s.hub != nil {
		s.hub.Unsubscribe(id)
	}
	_ = client.Close()

	log.Debug().Str("client_id", id).Err(err).Msg("RPC client disconnected")
	return err
}

// Stop closes every client connection.
func (s *Server) Stop() error {
	s.clientsMu.Lock()
	clients := s.clients
	s.clients = make(map[string]*Client)
	s.clientsMu.Unlock()

	for _, client := range clients {
		_ = client.Close()
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Client is one connected RPC peer. It receives hub events as JSON-RPC
// notifications whose method is the event type.
type Client struct {
	transport  transport.Transport
	dispatcher *handler.Dispatcher

	// send is a buffered channel for outgoing messages
	send chan []byte

	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new RPC client.
func NewClient(t transport.Transport, dispatcher *handler.Dispatcher) *Client {
	return &Client{
		transport:  t,
		dispatcher: dispatcher,
		send:       make(chan []byte, DefaultSendBuffer),
		done:       make(chan struct{}),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.transport.ID()
}

// Serve runs the client until it disconnects. Requests are handled one at a
// time in arrival order.
func (c *Client) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)
	return c.readLoop(handler.WithClientID(ctx, c.ID()))
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-c.transport.Done():
			return nil
		default:
		}

		data, err := c.transport.Read(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrTransportClosed) {
				return nil
			}
			return err
		}
		c.handleRequest(ctx, data)
	}
}

func (c *Client) handleRequest(ctx context.Context, data []byte) {
	response, err := c.dispatcher.HandleMessage(ctx, data)
	if err != nil {
		log.Warn().Str("client_id", c.ID()).Err(err).Msg("failed to handle message")
		return
	}
	if len(response) == 0 {
		return
	}
	if err := c.enqueue(response); err != nil {
		log.Warn().Str("client_id", c.ID()).Err(err).Msg("failed to send response")
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.transport.Write(ctx, data); err != nil {
				log.Warn().Str("client_id", c.ID()).Err(err).Msg("write error")
				_ = c.Close()
				return
			}
		}
	}
}

// enqueue queues data without blocking.
func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSubscriberClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("client %s: send buffer full", c.ID())
	}
}

// SendNotification queues a JSON-RPC notification.
func (c *Client) SendNotification(method string, params interface{}) error {
	notification, err := message.NewNotification(method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// Send implements ports.Subscriber.
func (c *Client) Send(event events.Event) error {
	return c.SendNotification(string(event.Type()), event.GetPayload())
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.transport.Close()
}

// Done returns a channel that's closed when the client is done.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

var _ ports.Subscriber = (*Client)(nil)
