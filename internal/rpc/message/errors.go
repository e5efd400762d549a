package message

import (
	"encoding/json"
	"errors"

	"github.com/brianly1003/notepadtt/internal/domain"
)

// Standard JSON-RPC 2.0 error codes.
const (
	// ParseError indicates invalid JSON was received.
	ParseError = -32700

	// InvalidRequest indicates the JSON is not a valid Request object.
	InvalidRequest = -32600

	// MethodNotFound indicates the method does not exist.
	MethodNotFound = -32601

	// InvalidParams indicates invalid method parameters.
	InvalidParams = -32602

	// InternalError indicates an internal JSON-RPC error.
	InternalError = -32603
)

// Tab synchronization error codes, inside the implementation-defined
// server error range (-32000 to -32099).
const (
	Conflict           = -32050
	NotFoundIdentifier = -32051
	InvalidFilename    = -32052
	ContentTooLarge    = -32053
	PermissionDenied   = -32054
)

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a new JSON-RPC error.
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithData creates a new JSON-RPC error with additional data.
func NewErrorWithData(code int, message string, data interface{}) *Error {
	err := &Error{
		Code:    code,
		Message: message,
	}

	if data != nil {
		if d, e := json.Marshal(data); e == nil {
			err.Data = d
		}
	}

	return err
}

// ErrParseError creates a parse error.
func ErrParseError(message string) *Error {
	if message == "" {
		message = "Parse error"
	}
	return NewError(ParseError, message)
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *Error {
	if message == "" {
		message = "Invalid Request"
	}
	return NewError(InvalidRequest, message)
}

// ErrMethodNotFound creates a method not found error.
func ErrMethodNotFound(method string) *Error {
	return NewError(MethodNotFound, "Method not found: "+method)
}

// ErrInvalidParams creates an invalid params error.
func ErrInvalidParams(message string) *Error {
	if message == "" {
		message = "Invalid params"
	}
	return NewError(InvalidParams, message)
}

// ErrInternalError creates an internal error.
func ErrInternalError(message string) *Error {
	if message == "" {
		message = "Internal error"
	}
	return NewError(InternalError, message)
}

// FromDomainError maps a domain error to its JSON-RPC error. The domain
// error code string travels in data.code so clients can branch on it.
func FromDomainError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	code := InternalError
	switch {
	case errors.Is(err, domain.ErrConflict):
		code = Conflict
	case errors.Is(err, domain.ErrNotFoundIdentifier):
		code = NotFoundIdentifier
	case errors.Is(err, domain.ErrInvalidFilename), errors.Is(err, domain.ErrInvalidSnapshot):
		code = InvalidFilename
	case errors.Is(err, domain.ErrContentTooLarge):
		code = ContentTooLarge
	case errors.Is(err, domain.ErrPermissionDenied):
		code = PermissionDenied
	}

	return NewErrorWithData(code, err.Error(), map[string]string{
		"code": domain.ErrorCode(err),
	})
}

// ErrorCodeName returns a human-readable name for an error code.
func ErrorCodeName(code int) string {
	switch code {
	case ParseError:
		return "ParseError"
	case InvalidRequest:
		return "InvalidRequest"
	case MethodNotFound:
		return "MethodNotFound"
	case InvalidParams:
		return "InvalidParams"
	case InternalError:
		return "InternalError"
	case Conflict:
		return "Conflict"
	case NotFoundIdentifier:
		return "NotFoundIdentifier"
	case InvalidFilename:
		return "InvalidFilename"
	case ContentTooLarge:
		return "ContentTooLarge"
	case PermissionDenied:
		return "PermissionDenied"
	default:
		return "UnknownError"
	}
}
