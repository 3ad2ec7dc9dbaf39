package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	remote "github.com/musikcube/remote/sdk/golang"
)

// newLogger builds the console logger. Precedence: --log-level, then
// MUSIKREMOTE_LOG_LEVEL, then the config file.
func newLogger(cfg *Config) zerolog.Logger {
	level := cfg.Log.Level
	if env := os.Getenv("MUSIKREMOTE_LOG_LEVEL"); env != "" {
		level = env
	}
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "musikremote").Logger()
}

func parseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// newService creates a service reading settings from the config file.
func newService(opts ...remote.Option) (*remote.Service, *Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Server.Valid() {
		return nil, nil, fmt.Errorf("no server configured. Run 'musikremote init <address>' first")
	}
	path, err := configPath()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)
	all := append([]remote.Option{remote.WithLogger(logger)}, opts...)
	return remote.New(remote.NewFileSettings(path), all...), cfg, nil
}

// connection is a Client that reports the first connect outcome.
type connection struct {
	remote.ClientFuncs
	ready  chan struct{}
	denied chan struct{}
}

func newConnection() *connection {
	return &connection{ready: make(chan struct{}, 1), denied: make(chan struct{}, 1)}
}

func (c *connection) OnStateChanged(newState, oldState remote.State) {
	if newState == remote.StateConnected {
		select {
		case c.ready <- struct{}{}:
		default:
		}
	}
	c.ClientFuncs.OnStateChanged(newState, oldState)
}

func (c *connection) OnInvalidCredentials() {
	select {
	case c.denied <- struct{}{}:
	default:
	}
	c.ClientFuncs.OnInvalidCredentials()
}

// connect registers c and waits until the service is connected.
func connect(ctx context.Context, svc *remote.Service, c *connection) error {
	if !svc.Post(func() { svc.RegisterClient(c) }) {
		return remote.ErrClosed
	}
	select {
	case <-c.ready:
		return nil
	case <-c.denied:
		return remote.ErrAuthenticationFailed
	case <-ctx.Done():
		return fmt.Errorf("cannot connect: %w", ctx.Err())
	}
}

// parseOptions turns key=value arguments into request options. Values that
// look like integers, floats or booleans are sent as such.
func parseOptions(args []string) (map[string]any, error) {
	opts := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("option %q must be key=value", arg)
		}
		opts[key] = parseValue(value)
	}
	return opts, nil
}

func parseValue(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// maskKey hides all but the first and last two characters of a secret.
func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 4:
		return "****"
	}
	return key[:2] + strings.Repeat("*", len(key)-4) + key[len(key)-2:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
