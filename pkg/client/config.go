package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/netxchat/pkg/errcode"
	"github.com/NicolasHaas/netxchat/pkg/logging"
	"github.com/NicolasHaas/netxchat/pkg/protocol"
	"github.com/NicolasHaas/netxchat/pkg/transport"
)

// TLSConfig enables TLS on the connection to the server.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	ServerName         string `yaml:"server_name,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
}

// Config is the parsed session configuration. The blob form is YAML or JSON
// (comments and trailing commas allowed).
type Config struct {
	Addr          string        `yaml:"addr"`
	Transport     string        `yaml:"transport"`
	Codec         string        `yaml:"codec"`
	WebSocketPath string        `yaml:"websocket_path,omitempty"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxFrameSize  int           `yaml:"max_frame_size"`
	TLS           TLSConfig     `yaml:"tls"`

	// Log, when set, gives the session its own stderr logger instead of the
	// process default. An injected Dependencies.Logger takes precedence.
	Log logging.Options `yaml:"log,omitempty"`
}

// DefaultConfig returns a Config with every optional field filled in.
func DefaultConfig() Config {
	return Config{
		Transport:    string(transport.KindTCP),
		Codec:        "json",
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		MaxFrameSize: protocol.MaxFrameSize,
	}
}

// ParseConfig decodes an opaque configuration blob onto DefaultConfig.
// A nil blob is a null argument; anything unparseable or invalid is a
// protocol error.
func ParseConfig(blob []byte) (Config, error) {
	if blob == nil {
		return Config{}, nullArg("config")
	}
	cfg := DefaultConfig()

	data := bytes.TrimSpace(blob)
	if len(data) > 0 && data[0] == '{' {
		data = jsonc.ToJSON(data)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errcode.Protocol(fmt.Errorf("client: parse config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errcode.Protocol(err)
	}
	return cfg, nil
}

// LoadConfig reads and parses a configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("client: read config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("client: config: addr is required")
	}
	switch transport.Kind(c.Transport) {
	case transport.KindTCP, transport.KindWebSocket:
	default:
		return fmt.Errorf("client: config: unknown transport %q", c.Transport)
	}
	if _, err := protocol.CodecByName(c.Codec); err != nil {
		return fmt.Errorf("client: config: %w", err)
	}
	if c.DialTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("client: config: timeouts must not be negative")
	}
	if c.MaxFrameSize < 0 {
		return errors.New("client: config: max_frame_size must not be negative")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("client: config: %w", err)
	}
	return nil
}

func (c Config) transportOptions() transport.Options {
	opts := transport.Options{
		Kind:          transport.Kind(c.Transport),
		Addr:          c.Addr,
		WebSocketPath: c.WebSocketPath,
		MaxFrameSize:  c.MaxFrameSize,
	}
	if c.TLS.Enabled {
		opts.TLS = transport.ServerTLS(c.TLS.ServerName, c.TLS.InsecureSkipVerify)
	}
	return opts
}
