// Package transport provides the frame channels netxchat sessions talk over.
//
// A Channel moves opaque, self-delimited frames. Byte-stream transports (TCP,
// TLS, in-memory pipes) length-prefix each frame; WebSocket carries one frame
// per binary message.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/NicolasHaas/netxchat/pkg/errcode"
	"github.com/NicolasHaas/netxchat/pkg/protocol"
)

// Channel is a bidirectional frame connection. ReadFrame is called from a
// single goroutine; WriteFrame is safe for concurrent use. Close unblocks a
// pending ReadFrame.
type Channel interface {
	// ReadFrame blocks until the next frame arrives. It returns an error
	// wrapping io.EOF when the peer closed the connection cleanly.
	ReadFrame() ([]byte, error)

	// WriteFrame sends one frame. The context deadline, if any, bounds the
	// write.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close closes the connection. Idempotent.
	Close() error

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
}

// ErrDropFrame is returned by ReadFrame for a message that is not a frame.
// The channel stays usable; the caller skips the message and reads on.
var ErrDropFrame = fmt.Errorf("%w: transport: message is not a frame", errcode.ErrProtocol)

// Prober is implemented by channels that have a native liveness check.
type Prober interface {
	Probe(ctx context.Context) error
}

// Kind selects a transport implementation.
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindWebSocket Kind = "websocket"
)

// Options configures Dial.
type Options struct {
	Kind          Kind
	Addr          string // host:port
	WebSocketPath string // request path for KindWebSocket (default "/ws")
	MaxFrameSize  int
	TLS           *tls.Config // nil = plaintext
}

// Dial opens a channel to the server described by opts.
func Dial(ctx context.Context, opts Options) (Channel, error) {
	if opts.Addr == "" {
		return nil, errcode.Protocol(errors.New("transport: dial: empty address"))
	}
	switch opts.Kind {
	case KindTCP, "":
		return DialTCP(ctx, opts)
	case KindWebSocket:
		return DialWebSocket(ctx, opts)
	default:
		return nil, errcode.Protocol(fmt.Errorf("transport: unknown kind %q", opts.Kind))
	}
}

// IsExpectedClose reports whether err is a normal connection termination:
// EOF, closed connection, broken pipe, or connection reset.
func IsExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

func frameLimit(n int) int {
	if n <= 0 {
		return protocol.MaxFrameSize
	}
	return n
}

func deadlineOf(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}
