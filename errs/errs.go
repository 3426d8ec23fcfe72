// Package errs is the normative error taxonomy shared by every core
// subsystem (protocol codec, transport, RTDB, channel pipeline, rule
// executor). Every terminal error returned across a subsystem boundary
// carries one of the Code values below so callers can dispatch on
// taxonomy without type-switching on concrete error structs.
package errs

import "fmt"

// Code is a stable, comparable, allocation-free error identifier.
type Code string

func (c Code) Error() string { return string(c) }

// Taxonomy tags (§7 of the design).
const (
	Connection Code = "connection" // transport could not be opened or was lost
	Timeout    Code = "timeout"    // a per-request deadline elapsed
	Io         Code = "io"         // read/write failed mid-frame
	Protocol   Code = "protocol"   // structural frame error, frame-ignored, exception response
	Config     Code = "config"     // missing parameter, unregistered point, unknown instance
	NotFound   Code = "not_found"  // alarm/command/point id not present when required
	Parse      Code = "parse"      // malformed external input
	State      Code = "state"      // operation illegal in the current state

	Unknown Code = "error" // generic fallback
)

// E wraps a Code with an operation name, a human message, and an
// optional cause, following the standard library's errors.Unwrap chain.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	switch {
	case e.Msg != "" && e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.C, e.Msg)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.C, e.Msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.C)
	default:
		return string(e.C)
	}
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E with the given code, operation, and message.
func New(code Code, op, msg string) *E {
	return &E{C: code, Op: op, Msg: msg}
}

// Wrap builds an *E that keeps err as its cause.
func Wrap(code Code, op string, err error) *E {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &E{C: code, Op: op, Msg: msg, Err: err}
}

type coder interface{ Code() Code }

// Of extracts a taxonomy Code from an error, defaulting to Unknown.
// A nil error maps to the empty Code (no taxonomy — success).
func Of(err error) Code {
	if err == nil {
		return ""
	}
	if c, ok := err.(Code); ok {
		return c
	}
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Unknown
}

// Is reports whether err carries the given taxonomy Code, looking
// through the Unwrap chain the same way errors.Is does for sentinel
// values.
func Is(err error, code Code) bool {
	for err != nil {
		if c, ok := err.(Code); ok {
			if c == code {
				return true
			}
		}
		if x, ok := err.(coder); ok && x.Code() == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
