package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"zero", Options{}, false},
		{"json debug", Options{Level: "debug", Format: "JSON"}, false},
		{"unknown level", Options{Level: "chatty"}, true},
		{"unknown format", Options{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%+v) = %v, wantErr %v", tt.opts, err, tt.wantErr)
			}
			if _, err := New(tt.opts); (err != nil) != tt.wantErr {
				t.Errorf("New(%+v) = %v, wantErr %v", tt.opts, err, tt.wantErr)
			}
		})
	}
	if err := Setup(Options{Level: "chatty"}); err == nil {
		t.Fatal("Setup(chatty) succeeded")
	}
}

func TestNewLeavesDefault(t *testing.T) {
	prev := slog.Default()
	var buf bytes.Buffer
	log, err := New(Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if slog.Default() != prev {
		t.Fatal("New replaced the default logger")
	}
	log.Info("own")
	if !strings.Contains(buf.String(), `"msg":"own"`) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestFor(t *testing.T) {
	var buf bytes.Buffer
	base, err := New(Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	For(base, "client", "addr", "pipe").Warn("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not one JSON record: %v\n%s", err, buf.String())
	}
	if rec["component"] != "client" || rec["addr"] != "pipe" {
		t.Errorf("record = %v", rec)
	}

	if For(nil, "server") == nil {
		t.Error("For(nil) returned nil")
	}
	Discard().Error("dropped")
}

func TestSetupJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if err := Setup(Options{Level: "warn", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Setup: unexpected error: %v", err)
	}
	slog.Info("hidden")
	slog.Warn("shown", "k", "v")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("output is not one JSON record: %v\n%s", err, out)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("NETXCHAT_LOG_LEVEL", "debug")
	t.Setenv("NETXCHAT_LOG_FORMAT", "json")
	got := FromEnv("netxchat")
	if got.Level != "debug" || got.Format != "json" {
		t.Errorf("FromEnv = %+v", got)
	}
}
