package scpi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// ErrTimeout is wrapped by transports whose underlying library reports a
// timeout without a net.Error.
var ErrTimeout = errors.New("timeout")

// TransportError is a timeout, disconnect or low-level framing failure. It is
// handed to the caller unmodified and never retried by this package.
type TransportError struct {
	Op      string // write, read, ask, block
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("transport %s %q: %v", e.Op, e.Command, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the operation ran out of time.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, ErrTimeout) || errors.Is(e.Err, os.ErrDeadlineExceeded) ||
		errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Temporary reports whether the caller may retry. Only timeouts qualify; the
// device state after a timeout is unspecified and must be re-synchronized.
func (e *TransportError) Temporary() bool { return e.Timeout() }

// ProtocolError is a reply that does not match what the instrument declared
// or what the protocol allows. Raw carries the offending payload.
type ProtocolError struct {
	Msg string
	Raw string
}

func (e *ProtocolError) Error() string {
	if e.Raw == "" {
		return "protocol: " + e.Msg
	}
	raw := e.Raw
	if len(raw) > 128 {
		raw = raw[:128] + "..."
	}
	return fmt.Sprintf("protocol: %s (raw %q)", e.Msg, raw)
}

// Protocolf builds a ProtocolError carrying raw.
func Protocolf(raw string, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...), Raw: raw}
}

// ValidationError rejects a caller-supplied value before anything is sent
// to the device.
type ValidationError struct {
	Param   string
	Value   interface{}
	Allowed []string
	Msg     string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid ")
	if e.Param != "" {
		b.WriteString(e.Param)
	} else {
		b.WriteString("value")
	}
	fmt.Fprintf(&b, " %v", e.Value)
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Allowed) > 0 {
		fmt.Fprintf(&b, " (allowed: %s)", strings.Join(e.Allowed, ", "))
	}
	return b.String()
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
