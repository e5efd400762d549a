package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianly1003/notepadtt/internal/rpc/message"
	"github.com/rs/zerolog/log"
)

// LoggingMiddleware logs every call with its duration and outcome.
func LoggingMiddleware(method string, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
		start := time.Now()
		result, rpcErr := next(ctx, params)

		evt := log.Debug()
		if rpcErr != nil {
			evt = log.Warn().Int("code", rpcErr.Code).Str("error", rpcErr.Message)
		}
		evt.
			Str("method", method).
			Str("client_id", ClientID(ctx)).
			Dur("took", time.Since(start)).
			Msg("rpc call")
		return result, rpcErr
	}
}

// RecoverMiddleware turns a panicking handler into an internal error so one
// bad call cannot take down the connection.
func RecoverMiddleware(method string, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (result interface{}, rpcErr *message.Error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("method", method).
					Str("client_id", ClientID(ctx)).
					Str("panic", fmt.Sprint(r)).
					Msg("rpc handler panicked")
				result = nil
				rpcErr = message.ErrInternalError("internal error")
			}
		}()
		return next(ctx, params)
	}
}
