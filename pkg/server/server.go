// Package server implements the netxchat reference message server.
//
// The server keeps every session in memory. A connection may ping peers
// right away; everything else requires a successful login with a nickname
// that is unique among logged-in users.
package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/NicolasHaas/netxchat/pkg/clock"
	"github.com/NicolasHaas/netxchat/pkg/logging"
	"github.com/NicolasHaas/netxchat/pkg/protocol"
)

// Config holds server configuration.
type Config struct {
	ListenAddr    string `yaml:"listen_addr"`    // TCP bind address (e.g. ":7000")
	WebSocketAddr string `yaml:"websocket_addr"` // HTTP bind address for WebSocket clients (empty = disabled)
	WebSocketPath string `yaml:"websocket_path"`
	MetricsAddr   string `yaml:"metrics_addr"` // HTTP bind address for /metrics (empty = disabled)
	Codec         string `yaml:"codec"`        // "json" or "cbor"; every client must match
	MaxFrameSize  int    `yaml:"max_frame_size"`

	TLS      bool   `yaml:"tls"`       // serve TCP over TLS
	CertFile string `yaml:"cert_file"` // TLS certificate file path
	KeyFile  string `yaml:"key_file"`  // TLS private key file path
	DataDir  string `yaml:"data_dir"`  // directory for generated certs

	MetricsLogInterval time.Duration `yaml:"metrics_log_interval"` // 0 = no periodic log

	Log logging.Options `yaml:"log,omitempty"` // installed by the binary, not by New
}

// Dependencies holds injectable collaborators. Zero values select defaults.
type Dependencies struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:         ":7000",
		WebSocketPath:      "/ws",
		MetricsAddr:        ":7002",
		Codec:              "json",
		MaxFrameSize:       protocol.MaxFrameSize,
		DataDir:            ".",
		MetricsLogInterval: 60 * time.Second,
	}
}

// loadOrGenerateTLS loads TLS cert/key from disk or generates a self-signed pair.
func loadOrGenerateTLS(cfg Config, log *slog.Logger) (tls.Certificate, error) {
	certPath := cfg.CertFile
	keyPath := cfg.KeyFile

	if certPath == "" {
		certPath = filepath.Join(cfg.DataDir, "server.crt")
	}
	if keyPath == "" {
		keyPath = filepath.Join(cfg.DataDir, "server.key")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil {
		log.Info("loaded TLS certificate", "cert", certPath)
		return cert, nil
	}

	log.Info("generating self-signed TLS certificate")
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{Organization: []string{"netxchat server"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create cert: %w", err)
	}
	privBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("marshal key: %w", err)
	}

	if err := writePEM(certPath, "CERTIFICATE", certDER, 0o644); err != nil {
		return tls.Certificate{}, err
	}
	if err := writePEM(keyPath, "EC PRIVATE KEY", privBytes, 0o600); err != nil {
		return tls.Certificate{}, err
	}

	log.Info("TLS certificate generated", "cert", certPath, "key", keyPath)
	return tls.LoadX509KeyPair(certPath, keyPath)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm) //nolint:gosec // path from server config
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// Server is the netxchat message server.
type Server struct {
	cfg      Config
	codec    protocol.Codec
	clock    clock.Clock
	log      *slog.Logger
	sessions *SessionManager
	metrics  *Metrics

	mu       sync.Mutex
	listener net.Listener
	httpSrvs []*http.Server
	conns    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance. An unknown codec is reported by Start.
func New(cfg Config, deps Dependencies) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		codec = nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		codec:    codec,
		clock:    deps.Clock,
		log:      logging.For(deps.Logger, "server"),
		sessions: NewSessionManager(),
		metrics:  NewMetrics(deps.Clock),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound TCP address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
