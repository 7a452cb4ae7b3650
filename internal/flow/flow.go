// Package flow holds the pieces shared by the divination session
// controllers: the error taxonomy surfaced to callers and the step-change
// notification hook.
package flow

import (
	"errors"
	"fmt"
)

// Kind classifies a session error.
type Kind string

const (
	// KindValidation is malformed or out-of-range input. State is unchanged.
	KindValidation Kind = "validation"
	// KindSequence is an operation requested out of the legal transition order.
	KindSequence Kind = "sequence"
	// KindIO is a failed read or write against an external store. Retryable.
	KindIO Kind = "io"
	// KindNotFound is a lookup for a record that does not exist.
	KindNotFound Kind = "not_found"
)

// ErrCompleted is wrapped by store refusals for an activity the user
// already completed in the current period.
var ErrCompleted = errors.New("already completed")

// Error is returned by session controllers and their collaborators.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "tarot.advance"
	Msg  string // user-facing message
	Err  error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a KindValidation error.
func Validation(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Sequence builds a KindSequence error.
func Sequence(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindSequence, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Completed builds a KindSequence error wrapping ErrCompleted.
func Completed(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindSequence, Op: op, Msg: fmt.Sprintf(format, args...), Err: ErrCompleted}
}

// NotFound builds a KindNotFound error.
func NotFound(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IO wraps a store failure as a KindIO error.
func IO(op, msg string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Msg: msg, Err: err}
}

// KindOf reports the Kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) is a flow error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message returns the user-facing message of a flow error, falling back to
// err.Error() for anything else.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Msg
	}
	return err.Error()
}

// Listener is notified after every step change of a session.
type Listener func(sessionID, step string)
