// Package drmerr defines the single sum-typed error used across every
// layer of the agent (spec §7), so the exported drmagent package can
// alias it without creating an import cycle between the public API
// and the internal implementation packages.
package drmerr

import (
	"errors"
	"fmt"
)

// Kind classifies every error the agent can return.
type Kind int

const (
	// BadArgument: caller or configuration is wrong; non-retryable.
	BadArgument Kind = iota
	// BadFormat: malformed configuration or mailbox product JSON.
	BadFormat
	// BadUsage: operation not permitted in the current state.
	BadUsage
	// BadFrequency: measured controller frequency off by more than
	// the configured threshold.
	BadFrequency
	// ControllerError: hardware/driver malfunction; non-retryable,
	// fatal to the session.
	ControllerError
	// WebServiceError: terminal service failure after exhausted
	// retries.
	WebServiceError
	// WebServiceRetryable: transient; only ever visible inside the
	// retry engine, never returned to a caller.
	WebServiceRetryable
	// WebServiceResponseError: server response violated the license
	// response contract.
	WebServiceResponseError
	// Exit: cooperative cancellation signal; never surfaced to the
	// caller of a public entry point.
	Exit
)

func (k Kind) String() string {
	switch k {
	case BadArgument:
		return "BadArgument"
	case BadFormat:
		return "BadFormat"
	case BadUsage:
		return "BadUsage"
	case BadFrequency:
		return "BadFrequency"
	case ControllerError:
		return "ControllerError"
	case WebServiceError:
		return "WebServiceError"
	case WebServiceRetryable:
		return "WebServiceRetryable"
	case WebServiceResponseError:
		return "WebServiceResponseError"
	case Exit:
		return "Exit"
	default:
		return "Unknown"
	}
}

// Error is the single sum-typed error the agent uses for every
// failure (Design Note "Exception-based error flow"). Callers branch
// on Kind with errors.As, not on string matching.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match against a bare Kind sentinel wrapped in an
// *Error with no message, e.g. errors.Is(err, drmerr.New(BadUsage, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and ok.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
