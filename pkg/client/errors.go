package client

import (
	"errors"
	"fmt"

	"github.com/NicolasHaas/netxchat/pkg/errcode"
)

var (
	// ErrWrongState is returned when an operation is issued in a lifecycle
	// state that does not allow it. Nothing is sent.
	ErrWrongState = fmt.Errorf("%w: operation not valid in current state", errcode.ErrNotConnected)

	// ErrAlreadyPending rejects a second login or directory fetch, or a ping
	// whose (target, issue time) is already in flight.
	ErrAlreadyPending = fmt.Errorf("%w: operation already pending", errcode.ErrProtocol)

	// ErrCancelled is delivered to completion handles still pending when the
	// session is destroyed.
	ErrCancelled = errors.New("client: operation cancelled")

	// ErrConnectionLost is delivered to pending handles when the server side
	// of the connection goes away.
	ErrConnectionLost = fmt.Errorf("%w: connection lost", ErrCancelled)

	// ErrUnknownTarget fails a ping the server could not route.
	ErrUnknownTarget = fmt.Errorf("%w: unknown target", errcode.ErrProtocol)
)

// IsCancelled reports whether err is a cancellation delivered by Destroy or
// by connection loss.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func nullArg(what string) error {
	return fmt.Errorf("client: %w: %s", errcode.ErrNullArgument, what)
}
