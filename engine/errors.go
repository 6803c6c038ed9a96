package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngine matches every *Error with errors.Is.
	ErrEngine = errors.New("engine error")
	// ErrClosed is returned for operations on a closed engine.
	ErrClosed = errors.New("engine is closed")
	// ErrUnknownHandle is reported for a handle the engine does not know.
	ErrUnknownHandle = errors.New("unknown database handle")
	// ErrIncomplete is reported when an entry point returns without
	// delivering its final callback.
	ErrIncomplete = errors.New("engine returned without completing")
)

// Error is an error reported by the engine through a callback. Message is
// kept verbatim. QueryID is set on errors that ended a query stream and
// matches the query_id field of that query's log lines.
type Error struct {
	Op      string
	Message string
	QueryID string
	cause   error
}

// NewError wraps an engine-reported message.
func NewError(op, message string) *Error {
	return &Error{Op: op, Message: message}
}

// Wrap reports cause as an engine error for op. The message is cause's text.
// Wrap returns nil for a nil cause.
func Wrap(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if errors.As(cause, &e) {
		return e
	}
	return &Error{Op: op, Message: cause.Error(), cause: cause}
}

// WithQueryID returns a copy of e tagged with id. The copy unwraps to e.
func (e *Error) WithQueryID(id string) *Error {
	c := *e
	c.QueryID = id
	c.cause = e
	return &c
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	return target == ErrEngine
}
