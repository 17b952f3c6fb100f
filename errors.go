package drmagent

import "github.com/fpga-edge/drm-agent-go/internal/drmerr"

// ErrorKind classifies every error the agent can return (spec §7).
// It is an alias for the internal kind so every layer of the agent —
// public and internal — shares one type without an import cycle.
type ErrorKind = drmerr.Kind

const (
	BadArgument             = drmerr.BadArgument
	BadFormat               = drmerr.BadFormat
	BadUsage                = drmerr.BadUsage
	BadFrequency            = drmerr.BadFrequency
	ControllerError         = drmerr.ControllerError
	WebServiceError         = drmerr.WebServiceError
	WebServiceRetryable     = drmerr.WebServiceRetryable
	WebServiceResponseError = drmerr.WebServiceResponseError
	Exit                    = drmerr.Exit
)

// Error is the single sum-typed error the agent uses for every
// failure (Design Note "Exception-based error flow"). Callers branch
// on Kind with errors.As, not on string matching.
type Error = drmerr.Error

// KindOf returns the Kind of err if it is (or wraps) an *Error, and ok.
func KindOf(err error) (ErrorKind, bool) { return drmerr.KindOf(err) }

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind ErrorKind) bool { return drmerr.Is(err, kind) }
