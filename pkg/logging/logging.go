// Package logging builds the structured loggers netxchat components write
// through.
//
// Binaries install a process-wide logger with Setup; library code such as a
// client session derives its own with New or scopes an injected one with For.
// Log levels from most to least verbose: DEBUG, INFO, WARN, ERROR.
//
// Usage:
//
//	logging.Setup(logging.Options{Level: "debug", Format: "text"})
//	log := logging.For(nil, "client", "addr", addr)
//	log.Info("connected")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how a logger is built. Level and Format can be read from
// YAML or JSON config blobs.
type Options struct {
	Level  string    `yaml:"level,omitempty"`  // "debug", "info", "warn", "error" (default: "info")
	Format string    `yaml:"format,omitempty"` // "text" or "json" (default: "text")
	Output io.Writer `yaml:"-"`                // default: os.Stdout
}

// IsZero reports whether opts leaves every field at its default.
func (o Options) IsZero() bool {
	return o.Level == "" && o.Format == "" && o.Output == nil
}

// ParseLevel converts a string level name to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger for opts without touching the process default.
func New(opts Options) (*slog.Logger, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // include file:line in debug mode
	}

	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(out, handlerOpts)), nil
}

// Setup builds a logger with New and installs it as the slog default.
// Safe to call early in main() before any logging occurs.
func Setup(opts Options) error {
	log, err := New(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	return nil
}

// For scopes base to one component. A nil base selects the slog default as
// of this call.
func For(base *slog.Logger, component string, args ...any) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(append([]any{"component", component}, args...)...)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// LevelNames returns all valid level names, useful for --help text.
func LevelNames() string {
	return "debug, info, warn, error"
}

// Validate checks both the level and the format.
func (o Options) Validate() error {
	if err := ValidateLevel(o.Level); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(o.Format)) {
	case "text", "json", "":
		return nil
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", o.Format)
	}
}

// ValidateLevel returns an error if the level string is not recognized.
func ValidateLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error", "":
		return nil
	default:
		return fmt.Errorf("unknown log level %q (valid: %s)", level, LevelNames())
	}
}

// FromEnv reads <PREFIX>_LOG_LEVEL and <PREFIX>_LOG_FORMAT, e.g.
// NETXCHAT_LOG_LEVEL=debug. Unset variables leave the defaults.
func FromEnv(prefix string) Options {
	prefix = strings.ToUpper(strings.TrimSuffix(prefix, "_"))
	return Options{
		Level:  os.Getenv(prefix + "_LOG_LEVEL"),
		Format: os.Getenv(prefix + "_LOG_FORMAT"),
	}
}
