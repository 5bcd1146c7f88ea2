package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/netxchat/pkg/protocol"
)

// LoadConfigFile reads a YAML config file onto base. Keys absent from the
// file keep their value from base.
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return base, fmt.Errorf("read server config: %w", err)
	}
	return ParseConfigYAML(data, base)
}

// ParseConfigYAML decodes data onto base and validates the result.
func ParseConfigYAML(data []byte, base Config) (Config, error) {
	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parse server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// ExportConfigYAML renders cfg as YAML, suitable for LoadConfigFile.
func ExportConfigYAML(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal server config: %w", err)
	}
	return data, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("server config: listen_addr is required")
	}
	if _, err := protocol.CodecByName(c.Codec); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if c.MaxFrameSize < 0 || c.MaxFrameSize > protocol.MaxFrameSize {
		return fmt.Errorf("server config: max_frame_size must be in [0, %d]", protocol.MaxFrameSize)
	}
	if c.MetricsLogInterval < 0 {
		return errors.New("server config: metrics_log_interval must not be negative")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	return nil
}
