// probe exercises a netxchat server through the client boundary: it
// connects, logs in, lists users, pings a peer and disconnects, logging each
// step. A non-zero exit status means some step failed.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/netxchat/pkg/errcode"
	"github.com/NicolasHaas/netxchat/pkg/logging"
	"github.com/NicolasHaas/netxchat/pkg/msgclient"
)

type options struct {
	configFile string
	addr       string
	transport  string
	codec      string
	tls        bool
	insecure   bool
	nickname   string
	target     string
	say        string
	timeout    time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	env := logging.FromEnv("NETXCHAT")

	flags := pflag.NewFlagSet("netxchat-probe", pflag.ContinueOnError)
	flags.StringVarP(&opts.configFile, "config", "c", "", "client config blob file (YAML or JSON); overrides the connection flags")
	flags.StringVar(&opts.addr, "addr", "localhost:7000", "server address")
	flags.StringVar(&opts.transport, "transport", "tcp", "transport: tcp or websocket")
	flags.StringVar(&opts.codec, "codec", "json", "wire codec: json or cbor")
	flags.BoolVar(&opts.tls, "tls", false, "connect with TLS")
	flags.BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification")
	flags.StringVarP(&opts.nickname, "nick", "n", "probe", "login nickname")
	flags.StringVar(&opts.target, "ping", "", "nickname to ping (default: own nickname)")
	flags.StringVar(&opts.say, "say", "", "broadcast this message after login")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Second, "wait limit for each reply")
	logLevel := flags.String("log-level", firstNonEmpty(env.Level, "info"), "Log level: "+logging.LevelNames())
	logFormat := flags.String("log-format", firstNonEmpty(env.Format, "text"), "Log format: text or json")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if err := logging.Setup(logging.Options{Level: *logLevel, Format: *logFormat, Output: os.Stderr}); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	if opts.target == "" {
		opts.target = opts.nickname
	}

	blob, err := configBlob(opts)
	if err != nil {
		return err
	}
	return probe(blob, opts)
}

// configBlob returns the config file contents, or a YAML blob built from
// the connection flags.
func configBlob(opts options) ([]byte, error) {
	if opts.configFile != "" {
		data, err := os.ReadFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return data, nil
	}
	type tlsBlob struct {
		Enabled            bool `yaml:"enabled"`
		InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`
	}
	return yaml.Marshal(struct {
		Addr      string  `yaml:"addr"`
		Transport string  `yaml:"transport"`
		Codec     string  `yaml:"codec"`
		TLS       tlsBlob `yaml:"tls"`
	}{opts.addr, opts.transport, opts.codec, tlsBlob{opts.tls, opts.insecure}})
}

func probe(blob []byte, opts options) error {
	slog.Info("api guard", "value", fmt.Sprintf("%016x", msgclient.APIGuard()))

	var c *msgclient.Client
	if err := step("create", msgclient.NewByConfig(&c, blob)); err != nil {
		return err
	}
	defer func() {
		_ = step("destroy", msgclient.Destroy(&c))
	}()

	if err := step("init", msgclient.Init(c)); err != nil {
		return err
	}
	if err := step("connect test", msgclient.ConnectTest(c)); err != nil {
		return err
	}

	type loginResult struct {
		outcome uint8
		message string
	}
	logins := make(chan loginResult, 1)
	if !msgclient.Login(c, []byte(opts.nickname), func(o uint8, msg []byte) bool {
		logins <- loginResult{o, string(msg)}
		return true
	}) {
		return errors.New("login: request not accepted")
	}
	res, err := wait(logins, opts.timeout, "login")
	if err != nil {
		return err
	}
	slog.Info("login", "nickname", opts.nickname, "outcome", res.outcome, "message", res.message)
	if res.outcome != 1 {
		return fmt.Errorf("login rejected: %s", res.message)
	}

	users := make(chan []msgclient.User, 1)
	if err := step("get users", msgclient.GetUsers(c, func(u []msgclient.User) { users <- u })); err != nil {
		return err
	}
	list, err := wait(users, opts.timeout, "users")
	if err != nil {
		return err
	}
	for _, u := range list {
		slog.Info("user", "nickname", string(u.Nickname), "session", u.SessionID)
	}

	if opts.say != "" {
		if err := step("talk", msgclient.Talk(c, []byte(opts.say))); err != nil {
			return err
		}
	}

	pings := make(chan int64, 1)
	issued := time.Now().UnixMilli()
	if err := step("ping", msgclient.Ping(c, []byte(opts.target), issued, func(_ []byte, ms int64) { pings <- ms })); err != nil {
		return err
	}
	ms, err := wait(pings, opts.timeout, "pong")
	if err != nil {
		return err
	}
	if ms < 0 {
		return fmt.Errorf("ping %s failed", opts.target)
	}
	slog.Info("ping", "target", opts.target, "rtt_ms", ms)
	return nil
}

func step(name string, code errcode.Code) error {
	if code != errcode.OK {
		slog.Error("step failed", "step", name, "code", code)
		return fmt.Errorf("%s: %s", name, code)
	}
	slog.Debug("step ok", "step", name)
	return nil
}

func wait[T any](ch <-chan T, timeout time.Duration, what string) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-time.After(timeout):
		var zero T
		return zero, fmt.Errorf("timed out waiting for %s", what)
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
