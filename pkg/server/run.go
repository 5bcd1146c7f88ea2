package server

import (
	"os"
	"os/signal"
	"syscall"
)

// Start brings up every configured listener and returns once they are bound.
func (s *Server) Start() error {
	if err := s.StartControl(); err != nil {
		return err
	}
	if err := s.StartWebSocket(); err != nil {
		s.Shutdown()
		return err
	}
	if err := s.StartMetricsHTTP(); err != nil {
		s.Shutdown()
		return err
	}
	s.metrics.StartPeriodicLog(s.log, s.cfg.MetricsLogInterval, s.ctx.Done())
	return nil
}

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	s.log.Info("netxchat server running",
		"control", s.cfg.ListenAddr,
		"websocket", s.cfg.WebSocketAddr,
		"metrics", s.cfg.MetricsAddr,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	s.log.Info("shutting down...")
	s.Shutdown()
	s.metrics.LogSummary(s.log)
	return nil
}

// Shutdown stops the listeners, closes every client connection and waits for
// their handlers to finish.
func (s *Server) Shutdown() {
	s.cancel()

	s.mu.Lock()
	ln := s.listener
	srvs := s.httpSrvs
	s.httpSrvs = nil
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, srv := range srvs {
		_ = srv.Close()
	}
	s.conns.Wait()
}
