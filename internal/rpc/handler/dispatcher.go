package handler

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/notepadtt/internal/rpc/message"
	"github.com/rs/zerolog/log"
)

// Dispatcher routes JSON-RPC requests to registered handlers.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a new dispatcher with the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch handles a JSON-RPC request and returns a response.
// Returns nil for notifications (requests without ID).
func (d *Dispatcher) Dispatch(ctx context.Context, req *message.Request) *message.Response {
	handler := d.registry.Get(req.Method)
	if handler == nil {
		log.Warn().
			Str("method", req.Method).
			Str("client_id", ClientID(ctx)).
			Msg("method not found")

		if req.IsNotification() {
			return nil
		}
		return message.NewErrorResponse(req.ID, message.ErrMethodNotFound(req.Method))
	}

	result, rpcErr := handler(ctx, req.Params)

	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return message.NewErrorResponse(req.ID, rpcErr)
	}

	resp, err := message.NewSuccessResponse(req.ID, result)
	if err != nil {
		log.Error().
			Str("method", req.Method).
			Err(err).
			Msg("failed to marshal response")
		return message.NewErrorResponse(req.ID, message.ErrInternalError("failed to marshal response"))
	}
	return resp
}

// HandleMessage handles a single request or a batch and returns the encoded
// response, or nil when nothing needs to be sent back.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) > 0 && data[0] == '[' {
		return d.handleBatch(ctx, data)
	}

	req, err := message.ParseRequest(data)
	if err != nil {
		log.Debug().Err(err).Msg("failed to parse request")
		return json.Marshal(message.NewErrorResponse(nil, message.ErrParseError(err.Error())))
	}

	resp := d.Dispatch(ctx, req)
	if resp == nil {
		return nil, nil
	}
	return json.Marshal(resp)
}

// handleBatch runs batched requests in order.
func (d *Dispatcher) handleBatch(ctx context.Context, data []byte) ([]byte, error) {
	var rawRequests []json.RawMessage
	if err := json.Unmarshal(data, &rawRequests); err != nil {
		return json.Marshal(message.NewErrorResponse(nil, message.ErrParseError("Invalid batch request")))
	}
	if len(rawRequests) == 0 {
		return json.Marshal(message.NewErrorResponse(nil, message.ErrInvalidRequest("Empty batch")))
	}

	responses := make([]*message.Response, 0, len(rawRequests))
	for _, raw := range rawRequests {
		req, err := message.ParseRequest(raw)
		if err != nil {
			responses = append(responses, message.NewErrorResponse(nil, message.ErrInvalidRequest(err.Error())))
			continue
		}
		if resp := d.Dispatch(ctx, req); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		return nil, nil
	}
	return json.Marshal(responses)
}
