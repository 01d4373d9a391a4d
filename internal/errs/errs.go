// Package errs defines the error taxonomy shared by every component of
// the orchestrator, per the spec's §7. It is kept separate from
// internal/engine (which wires the components together) so that
// low-level packages like internal/store can report typed errors
// without importing the top-level wiring package.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error for the host.
type Kind string

const (
	KindConfig       Kind = "Config"
	KindStorage      Kind = "Storage"
	KindModel        Kind = "Model"
	KindTool         Kind = "Tool"
	KindSafety       Kind = "Safety"
	KindInvalidState Kind = "InvalidState"
	KindNotFound     Kind = "NotFound"
	KindCancelled    Kind = "Cancelled"
	KindTimeout      Kind = "Timeout"
	KindUnknown      Kind = "Unknown"
)

// Error is the single structured error type returned across package
// boundaries in this module. It carries a Kind for programmatic
// dispatch and wraps an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given Kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error of the given Kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given Kind around an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// sentinels let callers use errors.Is without caring about message text.
var (
	ErrNotFound  = &Error{Kind: KindNotFound, Message: "not found"}
	ErrCancelled = &Error{Kind: KindCancelled, Message: "cancelled"}
)

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind of err, or KindUnknown if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsCancelled reports whether err is a Cancelled error.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }
