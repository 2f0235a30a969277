// Package tlqerr is the error taxonomy of the TLQ client.
//
// Every failure a client call can return is an *Error carrying a Kind plus the few fields
// that kind needs. Retry decisions are made from Retryable alone, never from the message
// text.
package tlqerr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind tags an Error.
type Kind int

const (
	Unknown Kind = iota
	Connection
	Timeout
	MessageTooLarge
	Server
	Serialization
	NotFound
	Validation
)

func (k Kind) String() string {
	switch k {
	case Connection:
		return "connection"
	case Timeout:
		return "timeout"
	case MessageTooLarge:
		return "message too large"
	case Server:
		return "server"
	case Serialization:
		return "serialization"
	case NotFound:
		return "not found"
	case Validation:
		return "validation"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind are transient.
// Server is retryable only for some statuses, see (*Error).Retryable.
func (k Kind) Retryable() bool {
	switch k {
	case Connection, Timeout:
		return true
	case Unknown, MessageTooLarge, Server, Serialization, NotFound, Validation:
		return false
	default:
		return false
	}
}

// Error is a classified client failure.
type Error struct {
	Kind    Kind
	Detail  string        // Human readable detail, may be empty
	Status  int           // Server: HTTP status code
	Size    int           // MessageTooLarge: rejected body size in bytes
	Timeout time.Duration // Timeout: the bound that expired
	Err     error         // Underlying cause, may be nil
}

func (e *Error) Error() string {
	switch e.Kind {
	case Connection:
		return "tlq: connection error: " + e.Detail
	case Timeout:
		return fmt.Sprintf("tlq: timeout after %dms", e.Timeout.Milliseconds())
	case MessageTooLarge:
		return fmt.Sprintf("tlq: message too large: %d bytes (max: 65536)", e.Size)
	case Server:
		return fmt.Sprintf("tlq: server error: %d - %s", e.Status, e.Detail)
	case Serialization:
		return "tlq: serialization error: " + e.Detail
	case NotFound:
		if e.Detail == "" {
			return "tlq: not found"
		}
		return "tlq: not found: " + e.Detail
	case Validation:
		return "tlq: validation error: " + e.Detail
	default:
		return "tlq: " + e.Detail
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.isSentinel()
}

func (e *Error) isSentinel() bool {
	return e.Detail == "" && e.Status == 0 && e.Size == 0 && e.Timeout == 0 && e.Err == nil
}

// Retryable reports whether the call that produced e may be attempted again.
// A server answering 429 or 503 is shedding load; every other status is permanent.
func (e *Error) Retryable() bool {
	if e.Kind == Server {
		return e.Status == http.StatusTooManyRequests || e.Status == http.StatusServiceUnavailable
	}
	return e.Kind.Retryable()
}

// Sentinels for errors.Is.
var (
	ErrConnection      = &Error{Kind: Connection}
	ErrTimeout         = &Error{Kind: Timeout}
	ErrMessageTooLarge = &Error{Kind: MessageTooLarge}
	ErrServer          = &Error{Kind: Server}
	ErrSerialization   = &Error{Kind: Serialization}
	ErrNotFound        = &Error{Kind: NotFound}
	ErrValidation      = &Error{Kind: Validation}
	ErrUnknown         = &Error{Kind: Unknown}
)

// IsRetryable is total: errors outside the taxonomy are never retried.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// KindOf returns the kind of err, Unknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func NewConnection(detail string, cause error) *Error {
	return &Error{Kind: Connection, Detail: detail, Err: cause}
}

func NewTimeout(d time.Duration, cause error) *Error {
	return &Error{Kind: Timeout, Timeout: d, Err: cause}
}

func NewMessageTooLarge(size int) *Error {
	return &Error{Kind: MessageTooLarge, Size: size}
}

func NewServer(status int, detail string) *Error {
	return &Error{Kind: Server, Status: status, Detail: detail}
}

func NewSerialization(cause error) *Error {
	return &Error{Kind: Serialization, Detail: cause.Error(), Err: cause}
}

func NewNotFound(detail string) *Error {
	return &Error{Kind: NotFound, Detail: detail}
}

func NewValidation(detail string) *Error {
	return &Error{Kind: Validation, Detail: detail}
}

func NewUnknown(detail string, cause error) *Error {
	return &Error{Kind: Unknown, Detail: detail, Err: cause}
}
