package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/netxchat/pkg/errcode"
)

const (
	// DefaultWebSocketPath is the upgrade path served by the reference server.
	DefaultWebSocketPath = "/ws"

	probeTimeout = 5 * time.Second
)

var (
	_ Channel = (*WebSocketChannel)(nil)
	_ Prober  = (*WebSocketChannel)(nil)
)

// WebSocketChannel carries one frame per binary WebSocket message.
type WebSocketChannel struct {
	conn *websocket.Conn

	writeMu   sync.Mutex // serialises all data writes
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketChannel wraps an established connection. maxFrame <= 0 selects
// protocol.MaxFrameSize as the read limit.
func NewWebSocketChannel(conn *websocket.Conn, maxFrame int) *WebSocketChannel {
	conn.SetReadLimit(int64(frameLimit(maxFrame)))
	return &WebSocketChannel{conn: conn}
}

// DialWebSocket connects to ws://addr/path, or wss:// when opts.TLS is set.
func DialWebSocket(ctx context.Context, opts Options) (*WebSocketChannel, error) {
	u := url.URL{Scheme: "ws", Host: opts.Addr, Path: opts.WebSocketPath}
	if u.Path == "" {
		u.Path = DefaultWebSocketPath
	}
	dialer := *websocket.DefaultDialer
	if opts.TLS != nil {
		u.Scheme = "wss"
		dialer.TLSClientConfig = opts.TLS
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errcode.Protocol(fmt.Errorf("transport: websocket connect %s: %w", u.String(), err))
	}
	return NewWebSocketChannel(conn, opts.MaxFrameSize), nil
}

// ReadFrame reads the next binary message. A text message yields
// ErrDropFrame without closing the connection.
func (c *WebSocketChannel) ReadFrame() ([]byte, error) {
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, errcode.Protocol(fmt.Errorf("transport: websocket closed: %w", io.EOF))
		}
		return nil, errcode.Protocol(fmt.Errorf("transport: websocket read: %w", err))
	}
	if kind != websocket.BinaryMessage {
		return nil, fmt.Errorf("transport: websocket: unexpected text message: %w", ErrDropFrame)
	}
	return data, nil
}

// WriteFrame sends frame as one binary message.
func (c *WebSocketChannel) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return errcode.Protocol(fmt.Errorf("transport: write: %w", err))
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadlineOf(ctx))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return errcode.Protocol(fmt.Errorf("transport: websocket write: %w", err))
	}
	return nil
}

// Probe sends a WebSocket ping control frame.
func (c *WebSocketChannel) Probe(ctx context.Context) error {
	deadline := deadlineOf(ctx)
	if deadline.IsZero() {
		deadline = time.Now().Add(probeTimeout)
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return errcode.Protocol(fmt.Errorf("transport: websocket probe: %w", err))
	}
	return nil
}

// Close sends a close frame on a best-effort basis and closes the connection.
func (c *WebSocketChannel) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *WebSocketChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Upgrader accepts WebSocket connections for a server.
type Upgrader struct {
	MaxFrameSize int
	CheckOrigin  func(r *http.Request) bool
}

// Upgrade completes the handshake and returns the resulting channel.
func (u Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*WebSocketChannel, error) {
	up := websocket.Upgrader{CheckOrigin: u.CheckOrigin}
	if up.CheckOrigin == nil {
		up.CheckOrigin = func(*http.Request) bool { return true }
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: websocket upgrade: %w", err)
	}
	return NewWebSocketChannel(conn, u.MaxFrameSize), nil
}

// ServerTLS returns a client TLS config for serverName. insecure disables
// certificate verification and is meant for local testing only.
func ServerTLS(serverName string, insecure bool) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecure, //nolint:gosec // opt-in via config
		MinVersion:         tls.VersionTLS12,
	}
}
