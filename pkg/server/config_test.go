package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/netxchat/pkg/logging"
)

func TestParseConfigYAML(t *testing.T) {
	data := []byte(`
listen_addr: "127.0.0.1:9000"
codec: cbor
websocket_addr: ":9001"
metrics_log_interval: 15s
log:
  level: debug
  format: json
`)
	got, err := ParseConfigYAML(data, DefaultConfig())
	if err != nil {
		t.Fatalf("ParseConfigYAML: %v", err)
	}
	want := DefaultConfig()
	want.ListenAddr = "127.0.0.1:9000"
	want.Codec = "cbor"
	want.WebSocketAddr = ":9001"
	want.MetricsLogInterval = 15 * time.Second
	want.Log = logging.Options{Level: "debug", Format: "json"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfigYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "listen: ':1'\n"},
		{"bad codec", "codec: xml\n"},
		{"empty listen", "listen_addr: ''\n"},
		{"frame too large", "max_frame_size: 1000000\n"},
		{"negative interval", "metrics_log_interval: -1s\n"},
		{"bad log level", "log:\n  level: chatty\n"},
		{"bad log format", "log:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigYAML([]byte(tt.data), DefaultConfig())
			if err == nil {
				t.Fatalf("ParseConfigYAML(%q) succeeded: %+v", tt.data, got)
			}
			if diff := cmp.Diff(DefaultConfig(), got); diff != "" {
				t.Errorf("base not returned on error (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConfigFileRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = ":7100"
	cfg.TLS = true

	data, err := ExportConfigYAML(cfg)
	if err != nil {
		t.Fatalf("ExportConfigYAML: %v", err)
	}
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := LoadConfigFile(path, Config{})
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), cfg); err == nil {
		t.Error("LoadConfigFile(missing) succeeded")
	}
}
