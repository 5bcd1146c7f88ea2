package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/NicolasHaas/netxchat/pkg/errcode"
	"github.com/NicolasHaas/netxchat/pkg/protocol"
)

// Compile-time interface check.
var _ Channel = (*StreamChannel)(nil)

// StreamChannel frames a net.Conn with 4-byte length prefixes.
type StreamChannel struct {
	conn  net.Conn
	limit int

	mu        sync.Mutex // serialises writes
	closeOnce sync.Once
	closeErr  error
}

// NewStreamChannel wraps conn. maxFrame <= 0 selects protocol.MaxFrameSize.
func NewStreamChannel(conn net.Conn, maxFrame int) *StreamChannel {
	return &StreamChannel{conn: conn, limit: frameLimit(maxFrame)}
}

// DialTCP connects over TCP, or TLS when opts.TLS is set.
func DialTCP(ctx context.Context, opts Options) (*StreamChannel, error) {
	var (
		conn net.Conn
		err  error
	)
	if opts.TLS != nil {
		dialer := &tls.Dialer{Config: opts.TLS}
		conn, err = dialer.DialContext(ctx, "tcp", opts.Addr)
	} else {
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "tcp", opts.Addr)
	}
	if err != nil {
		return nil, errcode.Protocol(fmt.Errorf("transport: connect %s: %w", opts.Addr, err))
	}
	return NewStreamChannel(conn, opts.MaxFrameSize), nil
}

// ReadFrame reads the next length-prefixed frame.
func (c *StreamChannel) ReadFrame() ([]byte, error) {
	return protocol.ReadFrame(c.conn, c.limit)
}

// WriteFrame writes one length-prefixed frame.
func (c *StreamChannel) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return errcode.Protocol(fmt.Errorf("transport: write: %w", err))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(deadlineOf(ctx))
	return protocol.WriteFrame(c.conn, frame, c.limit)
}

// Close closes the underlying connection once.
func (c *StreamChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *StreamChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Pipe returns two connected in-memory channels. Writes block until the
// other side reads, like net.Pipe.
func Pipe() (*StreamChannel, *StreamChannel) {
	a, b := net.Pipe()
	return NewStreamChannel(a, 0), NewStreamChannel(b, 0)
}
