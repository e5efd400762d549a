// Package transport carries JSON-RPC messages between the server and one client.
package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common transport errors.
var (
	ErrTransportClosed = errors.New("transport is closed")
)

// Transport is a bidirectional message channel to one client.
type Transport interface {
	// ID returns a unique identifier for this transport instance. It doubles
	// as the connection id used for tab subscriptions.
	ID() string

	// Read blocks until the next message arrives or the context is cancelled.
	// It returns io.EOF when the peer closed the connection cleanly.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a message, blocking until it is written or ctx is done.
	Write(ctx context.Context, data []byte) error

	// Close closes the transport. It is safe to call more than once.
	Close() error

	// Done returns a channel that's closed when the transport is closed.
	Done() <-chan struct{}
}

// TransportInfo contains metadata about a transport connection.
type TransportInfo struct {
	Type       string
	RemoteAddr string
	LocalAddr  string
}

// GenerateID generates a unique connection id.
func GenerateID() string {
	return uuid.New().String()
}
