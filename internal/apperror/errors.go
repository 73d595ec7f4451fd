package apperror

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies failures surfaced by the chat core.
type Kind string

const (
	KindAuthenticationFailed Kind = "authentication_failed"
	KindForbidden            Kind = "forbidden"
	KindNotFound             Kind = "not_found"
	KindValidationFailed     Kind = "validation_failed"
	KindConflict             Kind = "conflict"
	KindTransient            Kind = "transient"
)

// Websocket close codes used when a connection is rejected before it becomes active.
const (
	CloseUnauthenticated = 4001
	CloseForbidden       = 4003
	CloseNotFound        = 4004
	CloseAuthTimeout     = 4008
	CloseInternal        = 1011
)

// Error carries a Kind plus an optional human readable message and cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Sentinels for errors.Is checks.
var (
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrValidationFailed     = &Error{Kind: KindValidationFailed}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrTransient            = &Error{Kind: KindTransient}
)

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so wrapped errors compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Forbidden builds a KindForbidden error.
func Forbidden(format string, args ...interface{}) error {
	return newError(KindForbidden, format, args...)
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

// Validation builds a KindValidationFailed error.
func Validation(format string, args ...interface{}) error {
	return newError(KindValidationFailed, format, args...)
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...interface{}) error {
	return newError(KindConflict, format, args...)
}

// Unauthenticated builds a KindAuthenticationFailed error.
func Unauthenticated(format string, args ...interface{}) error {
	return newError(KindAuthenticationFailed, format, args...)
}

// Transient wraps an infrastructure failure. Nil stays nil and already classified errors pass through.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: KindTransient, Err: err}
}

// KindOf reports the kind of err, defaulting to KindTransient for unclassified failures.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindTransient
}

// HTTPStatus maps an error onto the REST status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthenticationFailed:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindValidationFailed:
		return fiber.StatusBadRequest
	case KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusServiceUnavailable
	}
}

// CloseCode maps a join-time failure onto a websocket close code.
func CloseCode(err error) int {
	switch KindOf(err) {
	case KindAuthenticationFailed:
		return CloseUnauthenticated
	case KindForbidden:
		return CloseForbidden
	case KindNotFound:
		return CloseNotFound
	default:
		return CloseInternal
	}
}

// PublicMessage returns a message that is safe to show to clients.
func PublicMessage(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		if classified.Kind == KindTransient {
			return "temporarily unavailable, please retry"
		}
		if classified.Message != "" {
			return classified.Message
		}
		return string(classified.Kind)
	}
	return "temporarily unavailable, please retry"
}
