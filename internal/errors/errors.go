// Package errors provides structured error handling with context propagation
// and WebSocket close-code mapping.
package errors

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// ErrorType represents the category of error for metrics and close-code mapping.
type ErrorType string

const (
	// TypeProtocol indicates a malformed client message (close code 1001)
	TypeProtocol ErrorType = "protocol"
	// TypeAuthClaim indicates a credential that decodes but lacks a required claim
	TypeAuthClaim ErrorType = "auth_claim"
	// TypeNotFound indicates an unknown subscription-set id
	TypeNotFound ErrorType = "not_found"
	// TypeDelivery indicates a failed send to a single target socket
	TypeDelivery ErrorType = "delivery"
	// TypeExternal indicates a collaborator failure (store, broker, cache)
	TypeExternal ErrorType = "external"
	// TypeInternal indicates a server-side error
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// CloseCode returns the WebSocket close code sent to the client for this
// error type. Protocol violations and timeout evictions both use 1001.
func (e *Error) CloseCode() int {
	switch e.Type {
	case TypeProtocol:
		return websocket.CloseGoingAway
	case TypeAuthClaim, TypeNotFound:
		return websocket.CloseNormalClosure
	default:
		return websocket.CloseInternalServerErr
	}
}

// ProtocolError creates a new protocol error (malformed client message).
func ProtocolError(message string) *Error {
	return &Error{
		Type:    TypeProtocol,
		Message: message,
		Context: make(map[string]any),
	}
}

// AuthClaimError creates an error for a decodable credential missing a claim.
func AuthClaimError(message string) *Error {
	return &Error{
		Type:    TypeAuthClaim,
		Message: message,
		Context: make(map[string]any),
	}
}

// NotFoundError creates a new not-found error (unknown subscription-set id).
func NotFoundError(message string) *Error {
	return &Error{
		Type:    TypeNotFound,
		Message: message,
		Context: make(map[string]any),
	}
}

// DeliveryError creates an error for a failed send to one target socket.
func DeliveryError(message string, cause error) *Error {
	return &Error{
		Type:    TypeDelivery,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// ExternalError creates a new collaborator error.
func ExternalError(message string, cause error) *Error {
	return &Error{
		Type:    TypeExternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// InternalError creates a new internal error.
func InternalError(message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsNotFound reports whether err is (or wraps) a not-found error.
func IsNotFound(err error) bool {
	var structuredErr *Error
	return errors.As(err, &structuredErr) && structuredErr.Type == TypeNotFound
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal error", err)
}
