// Package errors provides standardized error handling for the Htier hub.
// It classifies failures into the categories the protocol handlers and
// supervisor care about, and offers helpers for consistent wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Class represents the classification of errors for handling purposes.
type Class int

const (
	// ClassConnection represents transport or auth failures at connect time.
	ClassConnection Class = iota
	// ClassPoll represents transient failures during a scheduled poll.
	ClassPoll
	// ClassDecode represents a malformed bridge payload.
	ClassDecode
	// ClassConfig represents invalid or missing configuration.
	ClassConfig
	// ClassConcurrency represents a store-contention invariant violation.
	ClassConcurrency
)

// String returns the string representation of Class.
func (c Class) String() string {
	switch c {
	case ClassConnection:
		return "connection"
	case ClassPoll:
		return "poll"
	case ClassDecode:
		return "decode"
	case ClassConfig:
		return "config"
	case ClassConcurrency:
		return "concurrency"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("handler already started")
	ErrNotStarted     = errors.New("handler not started")
	ErrShuttingDown   = errors.New("handler is shutting down")

	// Connection errors
	ErrNoConnection       = errors.New("no connection available")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrSubscriptionFailed = errors.New("subscription failed")

	// Data errors
	ErrInvalidPayload = errors.New("invalid payload format")
	ErrKeyNotFound    = errors.New("key not found")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Retry errors
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ClassifiedError wraps an error with its classification.
type ClassifiedError struct {
	Class     Class
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Is reports whether err carries the given class.
func Is(err error, class Class) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == class
	}
	return false
}

// IsConnection checks if an error is a connect-time transport failure.
func IsConnection(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ClassConnection) {
		return true
	}
	return errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrSubscriptionFailed)
}

// IsPoll checks if an error is a transient poll failure.
func IsPoll(err error) bool {
	return Is(err, ClassPoll)
}

// IsDecode checks if an error is a malformed-payload failure.
func IsDecode(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ClassDecode) || errors.Is(err, ErrInvalidPayload)
}

// IsConfig checks if an error is a configuration failure.
func IsConfig(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ClassConfig) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig)
}

// Retryable reports whether an error is worth retrying. Connection and
// poll failures are transient by nature; decode, config, and concurrency
// failures are not fixed by trying again.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassConnection || ce.Class == ClassPoll
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Unclassified errors default to retryable so transient transport
	// faults from third-party clients are not treated as fatal.
	return !IsConfig(err) && !IsDecode(err)
}

// newClassified creates a new classified error.
// Internal helper; use the Wrap* functions instead.
func newClassified(class Class, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// wrapClass wraps an error with context under the given class.
func wrapClass(class Class, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return newClassified(class, wrapped, component, method, wrapped.Error())
}

// WrapConnection wraps an error as a connect-time failure with context.
func WrapConnection(err error, component, method, action string) error {
	return wrapClass(ClassConnection, err, component, method, action)
}

// WrapPoll wraps an error as a transient poll failure with context.
func WrapPoll(err error, component, method, action string) error {
	return wrapClass(ClassPoll, err, component, method, action)
}

// WrapDecode wraps an error as a malformed-payload failure with context.
func WrapDecode(err error, component, method, action string) error {
	return wrapClass(ClassDecode, err, component, method, action)
}

// WrapConfig wraps an error as a configuration failure with context.
func WrapConfig(err error, component, method, action string) error {
	return wrapClass(ClassConfig, err, component, method, action)
}

// WrapConcurrency wraps an error as a store-invariant violation with context.
func WrapConcurrency(err error, component, method, action string) error {
	return wrapClass(ClassConcurrency, err, component, method, action)
}
