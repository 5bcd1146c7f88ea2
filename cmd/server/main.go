package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/NicolasHaas/netxchat/pkg/logging"
	"github.com/NicolasHaas/netxchat/pkg/server"
	"github.com/NicolasHaas/netxchat/pkg/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	base := server.DefaultConfig()
	base.Log = logging.FromEnv("NETXCHAT")
	cfg := base

	flags := pflag.NewFlagSet("netxchat-server", pflag.ContinueOnError)
	configFile := flags.StringP("config", "c", "", "YAML config file (flags override its values)")
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "TCP bind address")
	flags.StringVar(&cfg.WebSocketAddr, "websocket", cfg.WebSocketAddr, "HTTP bind address for WebSocket clients (empty to disable)")
	flags.StringVar(&cfg.WebSocketPath, "websocket-path", cfg.WebSocketPath, "WebSocket upgrade path")
	flags.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flags.StringVar(&cfg.Codec, "codec", cfg.Codec, "Wire codec: json or cbor")
	flags.BoolVar(&cfg.TLS, "tls", cfg.TLS, "Serve TCP over TLS")
	flags.StringVar(&cfg.CertFile, "cert", "", "TLS certificate file (auto-generated if empty)")
	flags.StringVar(&cfg.KeyFile, "key", "", "TLS private key file (auto-generated if empty)")
	flags.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory for generated files")
	flags.DurationVar(&cfg.MetricsLogInterval, "metrics-log-interval", cfg.MetricsLogInterval, "Period of the metrics log line (0 to disable)")
	printConfig := flags.Bool("print-config", false, "Print the effective config as YAML and exit")
	showVersion := flags.Bool("version", false, "Print version and exit")
	flags.StringVar(&cfg.Log.Level, "log-level", firstNonEmpty(cfg.Log.Level, "info"), "Log level: "+logging.LevelNames())
	flags.StringVar(&cfg.Log.Format, "log-format", firstNonEmpty(cfg.Log.Format, "text"), "Log format: text or json")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("netxchat-server", version.Full())
		return nil
	}

	if *configFile != "" {
		fileCfg, err := server.LoadConfigFile(*configFile, base)
		if err != nil {
			return err
		}
		// Explicit flags win over the file.
		merged := fileCfg
		flags.Visit(func(f *pflag.Flag) { applyFlag(&merged, cfg, f.Name) })
		cfg = merged
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Configure structured logging
	logOpts := cfg.Log
	logOpts.Output = os.Stdout
	if err := logging.Setup(logOpts); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if *printConfig {
		data, err := server.ExportConfigYAML(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}

	slog.Info("starting netxchat server", "version", version.String())
	return server.New(cfg, server.Dependencies{Logger: slog.Default()}).Run()
}

// applyFlag copies the field behind flag name from src to dst.
func applyFlag(dst *server.Config, src server.Config, name string) {
	switch name {
	case "listen":
		dst.ListenAddr = src.ListenAddr
	case "websocket":
		dst.WebSocketAddr = src.WebSocketAddr
	case "websocket-path":
		dst.WebSocketPath = src.WebSocketPath
	case "metrics":
		dst.MetricsAddr = src.MetricsAddr
	case "codec":
		dst.Codec = src.Codec
	case "tls":
		dst.TLS = src.TLS
	case "cert":
		dst.CertFile = src.CertFile
	case "key":
		dst.KeyFile = src.KeyFile
	case "data":
		dst.DataDir = src.DataDir
	case "metrics-log-interval":
		dst.MetricsLogInterval = src.MetricsLogInterval
	case "log-level":
		dst.Log.Level = src.Log.Level
	case "log-format":
		dst.Log.Format = src.Log.Format
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
