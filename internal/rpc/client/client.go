// Package client is a JSON-RPC 2.0 client for the tab synchronization server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brianly1003/notepadtt/internal/rpc/message"
	"github.com/brianly1003/notepadtt/internal/sync"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by Call once the connection is gone.
var ErrClosed = errors.New("connection closed")

// NotificationHandler receives server notifications such as info and
// tabContent. It runs on the read goroutine and must not call back into Call.
type NotificationHandler func(n *message.Notification)

// Client is a JSON-RPC 2.0 client for WebSocket communication.
type Client struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	nextID    int64
	pending   map[int64]chan *message.Response
	pendingMu sync.RWMutex
	onNotify  NotificationHandler
	closeCh   chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithNotificationHandler routes server notifications to h. Without it
// notifications are dropped.
func WithNotificationHandler(h NotificationHandler) Option {
	return func(c *Client) {
		c.onNotify = h
	}
}

// NewClient creates a new JSON-RPC client connected to the given WebSocket URL.
func NewClient(ctx context.Context, url string, opts ...Option) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		nextID:  1,
		pending: make(map[int64]chan *message.Response),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()

	return c, nil
}

// Call makes a JSON-RPC call and waits for the response.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*message.Response, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.mu.Unlock()

	req, err := message.NewRequest(message.NumberID(id), method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respCh := make(chan *message.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	c.mu.Lock()
	err = c.conn.WriteJSON(req)
	c.mu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, ErrClosed
	}
}

// Result makes a call and decodes a successful result into out. An error
// response is returned as a *message.Error.
func (c *Client) Result(ctx context.Context, method string, params, out interface{}) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}

func (c *Client) forget(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// readLoop routes responses to waiting callers and notifications to the handler.
func (c *Client) readLoop() {
	defer close(c.closeCh)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.pendingMu.Lock()
			for _, ch := range c.pending {
				close(ch)
			}
			c.pending = make(map[int64]chan *message.Response)
			c.pendingMu.Unlock()
			return
		}

		msg, err := message.ParseIncoming(data)
		if err != nil {
			log.Debug().Err(err).Msg("ignoring malformed message from server")
			continue
		}

		if msg.IsNotification() {
			if c.onNotify != nil {
				c.onNotify(&message.Notification{JSONRPC: msg.JSONRPC, Method: msg.Method, Params: msg.Params})
			}
			continue
		}

		id := idToInt64(msg.ID)
		if id < 0 {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.pendingMu.Unlock()
		if ok {
			ch <- msg.Response()
		}
	}
}

// idToInt64 extracts the int64 value from an ID.
// Returns -1 if the ID is not a number.
func idToInt64(id *message.ID) int64 {
	if id == nil || !id.IsNumber() {
		return -1
	}
	var n int64
	if _, err := fmt.Sscanf(id.String(), "%d", &n); err != nil {
		return -1
	}
	return n
}

// Done returns a channel that's closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closeCh
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
