package transport

import (
	"context"
	"io"
	"time"

	"github.com/brianly1003/notepadtt/internal/sync"
	"github.com/gorilla/websocket"
)

const (
	// Default timeouts for WebSocket operations.
	DefaultWriteTimeout = 15 * time.Second
	DefaultReadTimeout  = 90 * time.Second

	// DefaultMaxMessageSize leaves room for a full tab body plus JSON escaping.
	DefaultMaxMessageSize = 1024 * 1024

	// Ping interval for keepalive; a pong extends the read deadline by the read timeout.
	DefaultPingInterval = 30 * time.Second
)

// WebSocketTransport implements Transport over a WebSocket connection.
type WebSocketTransport struct {
	id   string
	conn *websocket.Conn

	writeTimeout   time.Duration
	readTimeout    time.Duration
	maxMessageSize int64

	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// WebSocketOption configures a WebSocketTransport.
type WebSocketOption func(*WebSocketTransport)

// WithWriteTimeout sets the write timeout for the WebSocket transport.
func WithWriteTimeout(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		if d > 0 {
			t.writeTimeout = d
		}
	}
}

// WithReadTimeout sets the read timeout for the WebSocket transport.
func WithReadTimeout(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		if d > 0 {
			t.readTimeout = d
		}
	}
}

// WithMaxMessageSize caps the size of a single incoming message.
func WithMaxMessageSize(n int64) WebSocketOption {
	return func(t *WebSocketTransport) {
		if n > 0 {
			t.maxMessageSize = n
		}
	}
}

// NewWebSocketTransport creates a new WebSocket transport.
func NewWebSocketTransport(conn *websocket.Conn, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		id:             GenerateID(),
		conn:           conn,
		writeTimeout:   DefaultWriteTimeout,
		readTimeout:    DefaultReadTimeout,
		maxMessageSize: DefaultMaxMessageSize,
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	conn.SetReadLimit(t.maxMessageSize)

	// Setup ping/pong handlers for keepalive
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		return nil
	})

	go t.pingLoop(pingInterval(t.readTimeout))

	return t
}

// pingLoop sends periodic pings to keep the connection alive.
func (t *WebSocketTransport) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				return
			}
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.mu.Unlock()
				return
			}
			t.mu.Unlock()
		}
	}
}

// pingInterval keeps pings well inside the read deadline.
func pingInterval(readTimeout time.Duration) time.Duration {
	if half := readTimeout / 2; half < DefaultPingInterval {
		return half
	}
	return DefaultPingInterval
}

// ID returns the unique identifier for this transport.
func (t *WebSocketTransport) ID() string {
	return t.id
}

// Read reads the next message from the WebSocket connection.
func (t *WebSocketTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-t.done:
		return nil, ErrTransportClosed
	default:
	}

	// Set read deadline based on context or default timeout
	deadline := time.Now().Add(t.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetReadDeadline(deadline)

	messageType, message, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}

	// JSON-RPC travels in text frames only.
	if messageType != websocket.TextMessage {
		return nil, io.EOF
	}

	return message, nil
}

// Write sends a message through the WebSocket connection.
func (t *WebSocketTransport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}

	// Set write deadline based on context or default timeout
	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)

	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the WebSocket connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)

	_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	return t.conn.Close()
}

// Done returns a channel that's closed when the transport is closed.
func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.done
}

// Info returns metadata about the WebSocket transport.
func (t *WebSocketTransport) Info() TransportInfo {
	return TransportInfo{
		Type:       "websocket",
		RemoteAddr: t.conn.RemoteAddr().String(),
		LocalAddr:  t.conn.LocalAddr().String(),
	}
}

