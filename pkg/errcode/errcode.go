// Package errcode defines the closed set of outcome codes returned across the
// netxchat client boundary and the mapping from Go errors onto them.
//
// Every failure inside the engine wraps exactly one of the sentinel errors
// below, so the boundary can classify it with errors.Is. Anything that does
// not wrap a sentinel is treated as an internal fault.
package errcode

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Code is a boundary outcome code. The numeric values are part of the
// external contract and never change.
type Code uint8

const (
	OK                       Code = 0
	NullArgument             Code = 1
	InternalFault            Code = 2
	ProtocolOrTransportError Code = 3
	NotConnected             Code = 4
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case NullArgument:
		return "null_argument"
	case InternalFault:
		return "internal_fault"
	case ProtocolOrTransportError:
		return "protocol_or_transport_error"
	case NotConnected:
		return "not_connected"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the defined codes.
func (c Code) Valid() bool {
	return c <= NotConnected
}

var (
	ErrNullArgument = errors.New("null argument")
	ErrInternal     = errors.New("internal fault")
	ErrProtocol     = errors.New("protocol or transport error")
	ErrNotConnected = errors.New("not connected")
)

// Of classifies err. A nil error is OK; an error wrapping none of the
// sentinels is an InternalFault.
func Of(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrInternal):
		return InternalFault
	case errors.Is(err, ErrNullArgument):
		return NullArgument
	case errors.Is(err, ErrNotConnected):
		return NotConnected
	case errors.Is(err, ErrProtocol):
		return ProtocolOrTransportError
	default:
		return InternalFault
	}
}

// Protocol marks err as a protocol or transport failure. A nil err stays nil.
func Protocol(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProtocol) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProtocol, err)
}

// PanicError carries a value recovered from a panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap makes every PanicError an ErrInternal.
func (e *PanicError) Unwrap() error { return ErrInternal }

// Recover converts an in-flight panic into a *PanicError stored in *errp.
// It must be deferred directly:
//
//	defer errcode.Recover(&err, "login")
func Recover(errp *error, op string) {
	r := recover()
	if r == nil {
		return
	}
	perr := &PanicError{Value: r, Stack: debug.Stack()}
	slog.Error("recovered panic", "op", op, "panic", r, "stack", string(perr.Stack))
	if errp != nil {
		*errp = perr
	}
}

// Guard runs fn and returns its code, converting a panic into InternalFault.
func Guard(op string, fn func() Code) (code Code) {
	var err error
	defer func() {
		if err != nil {
			code = InternalFault
		}
	}()
	defer Recover(&err, op)
	return fn()
}
