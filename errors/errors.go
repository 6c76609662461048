// Package errors defines the result-code taxonomy every core operation
// reports through, instead of ad-hoc error strings.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the eight outcomes a core operation can report.
type Code string

const (
	// Invalid marks malformed arguments or a state mismatch (wrong flow
	// state, unknown DIF type mismatch, bad config parameter value).
	Invalid Code = "invalid"
	// NoDevice marks a requested IPCP/flow/port that does not exist, or
	// exists but has no uipcp to forward a request through.
	NoDevice Code = "no-device"
	// Busy marks a resource already owned by a different party.
	Busy Code = "busy"
	// NoSpace marks bitmap exhaustion or a full upstream queue under a
	// non-blocking producer.
	NoSpace Code = "no-space"
	// NoMemory marks an allocation failure.
	NoMemory Code = "no-memory"
	// Unsupported marks an operation the target IPCP does not implement,
	// or an unrecognized config parameter.
	Unsupported Code = "unsupported"
	// Interrupted marks a blocking wait aborted by a signal/cancellation.
	Interrupted Code = "interrupted"
	// WouldBlock marks a non-blocking read on an empty queue.
	WouldBlock Code = "would-block"
)

// Error is the structured error every handler and subsystem returns.
type Error struct {
	Op      string // operation that failed, e.g. "FA_REQ", "flow_add"
	Code    Code
	IPCPID  int32 // -1 if not applicable
	PortID  int32 // -1 if not applicable
	Msg     string
	Inner   error
}

func (e *Error) Error() string {
	var ctx string
	if e.IPCPID >= 0 {
		ctx += fmt.Sprintf(" ipcp=%d", e.IPCPID)
	}
	if e.PortID >= 0 {
		ctx += fmt.Sprintf(" port=%d", e.PortID)
	}
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("rina: %s: %s%s", e.Op, msg, ctx)
	}
	return fmt.Sprintf("rina: %s%s", msg, ctx)
}

func (e *Error) Unwrap() error { return e.Inner }

// Is supports errors.Is comparisons against another *Error: it matches when
// the target carries the same Code. Any other target type never matches.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return e.Code == t.Code
	default:
		return false
	}
}

// New builds a context-free *Error of the given code.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, IPCPID: -1, PortID: -1, Msg: msg}
}

// WithIPCP attaches an IPCP id to a copy of err.
func (e *Error) WithIPCP(id int32) *Error {
	cp := *e
	cp.IPCPID = id
	return &cp
}

// WithPort attaches a port id to a copy of err.
func (e *Error) WithPort(id int32) *Error {
	cp := *e
	cp.PortID = id
	return &cp
}

// Wrap attaches op/code context to an arbitrary inner error, preserving a
// stack trace via github.com/pkg/errors for errors that did not already
// carry one of the eight taxonomy codes (socket setup, marshal failures
// that are really bugs rather than malformed client input).
func Wrap(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ue, ok := inner.(*Error); ok {
		cp := *ue
		cp.Op = op
		return &cp
	}
	return &Error{
		Op:     op,
		Code:   code,
		IPCPID: -1,
		PortID: -1,
		Msg:    inner.Error(),
		Inner:  errors.WithStack(inner),
	}
}

// Of reports the Code carried by err, and ok=false if err is nil or not a
// *Error.
func Of(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// Is reports whether err is a *Error carrying the given code.
func Is(err error, code Code) bool {
	c, ok := Of(err)
	return ok && c == code
}
