package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/NicolasHaas/netxchat/pkg/transport"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
func (s *Server) StartMetricsHTTP() error {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return nil // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return s.serveHTTP("metrics", addr, mux)
}

// StartWebSocket accepts WebSocket clients on Config.WebSocketAddr. They speak
// the same frames as TCP clients, one frame per binary message.
func (s *Server) StartWebSocket() error {
	addr := s.cfg.WebSocketAddr
	if addr == "" {
		return nil
	}
	if s.codec == nil {
		return fmt.Errorf("server: unknown codec %q", s.cfg.Codec)
	}
	path := s.cfg.WebSocketPath
	if path == "" {
		path = transport.DefaultWebSocketPath
	}

	mux := http.NewServeMux()
	mux.Handle(path, s.WebSocketHandler())
	return s.serveHTTP("websocket", addr, mux)
}

// WebSocketHandler upgrades requests and serves each as a client connection.
func (s *Server) WebSocketHandler() http.Handler {
	up := transport.Upgrader{MaxFrameSize: s.cfg.MaxFrameSize}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch, err := up.Upgrade(w, r)
		if err != nil {
			s.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		s.Serve(ch)
	})
}

func (s *Server) serveHTTP(name, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", name, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpSrvs = append(s.httpSrvs, srv)
	s.mu.Unlock()

	go func() {
		s.log.Info(name+" HTTP listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(name+" HTTP error", "err", err)
		}
	}()
	return nil
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := m.uptime().Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("netxchat_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("netxchat_connections_active", "Current open client connections.", "gauge",
		m.ActiveConnections.Load())
	write("netxchat_connections_total", "Lifetime client connections accepted.", "counter",
		m.TotalConnections.Load())
	write("netxchat_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())
	write("netxchat_users_online", "Currently logged-in users.", "gauge",
		int64(len(s.sessions.Users())))

	write("netxchat_login_success_total", "Accepted logins.", "counter",
		m.SuccessfulLogins.Load())
	write("netxchat_login_failed_total", "Rejected logins.", "counter",
		m.FailedLogins.Load())

	write("netxchat_frames_in_total", "Frames read from clients.", "counter",
		m.FramesIn.Load())
	write("netxchat_frames_out_total", "Frames written to clients.", "counter",
		m.FramesOut.Load())
	write("netxchat_frames_dropped_total", "Malformed, unexpected or unroutable frames.", "counter",
		m.FramesDropped.Load())

	write("netxchat_chat_messages_total", "Broadcast chat messages relayed.", "counter",
		m.ChatMessages.Load())
	write("netxchat_direct_messages_total", "Direct messages relayed.", "counter",
		m.DirectMessages.Load())
	write("netxchat_pings_relayed_total", "Pings forwarded to their target.", "counter",
		m.PingsRelayed.Load())
	write("netxchat_pongs_relayed_total", "Pongs returned to their origin.", "counter",
		m.PongsRelayed.Load())
}
