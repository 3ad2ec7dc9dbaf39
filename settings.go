package remote

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// ============================================================================
// Defaults
// ============================================================================

const (
	DefaultAddress = "localhost"
	DefaultPort    = 7905

	DefaultReconnectDelay      = 2 * time.Second
	DefaultCallbackTimeout     = 30 * time.Second
	DefaultConnectTimeout      = 5 * time.Second
	DefaultHandshakeTimeout    = 10 * time.Second
	DefaultPingInterval        = 3500 * time.Millisecond
	DefaultFailsafeDelay       = 2 * time.Second
	DefaultAutoDisconnectDelay = 10 * time.Second

	// CloseCodeAuthenticationFailed is the close code (policy violation) the
	// server uses to reject a password.
	CloseCodeAuthenticationFailed = 1008
)

// ============================================================================
// Settings
// ============================================================================

// Settings describes how to reach and authenticate with the server.
type Settings struct {
	Address            string `toml:"address"`
	Port               int    `toml:"port"`
	TLS                bool   `toml:"tls"`
	Password           string `toml:"password"`
	Compression        bool   `toml:"compression"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	DeviceID           string `toml:"device_id,omitempty"`
}

// DefaultSettings returns settings for a server on the local machine.
func DefaultSettings() Settings {
	return Settings{
		Address:     DefaultAddress,
		Port:        DefaultPort,
		Compression: true,
	}
}

// URL returns the WebSocket URL for the configured server.
func (s Settings) URL() string {
	scheme := "ws"
	if s.TLS {
		scheme = "wss"
	}
	return scheme + "://" + net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// Endpoint converts the settings into a transport endpoint.
func (s Settings) Endpoint() Endpoint {
	return Endpoint{
		URL:                s.URL(),
		Compression:        s.Compression,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}
}

// Valid reports whether an address and port have been configured.
func (s Settings) Valid() bool {
	return s.Address != "" && s.Port >= 0
}

// SettingsProvider supplies settings. It is consulted at the start of every
// connect attempt, so changes take effect on the next reconnect.
type SettingsProvider interface {
	Settings() Settings
}

// StaticSettings is a SettingsProvider that always returns the same settings.
type StaticSettings Settings

// Settings returns s.
func (s StaticSettings) Settings() Settings { return Settings(s) }

// ============================================================================
// Timings
// ============================================================================

// Timings holds the fixed durations used by the service.
type Timings struct {
	ReconnectDelay      time.Duration
	CallbackTimeout     time.Duration
	ConnectTimeout      time.Duration
	HandshakeTimeout    time.Duration
	PingInterval        time.Duration
	FailsafeDelay       time.Duration
	AutoDisconnectDelay time.Duration
}

// DefaultTimings returns the standard timings.
func DefaultTimings() Timings {
	var t Timings
	t.defaults()
	return t
}

func (t *Timings) defaults() {
	if t.ReconnectDelay == 0 {
		t.ReconnectDelay = DefaultReconnectDelay
	}
	if t.CallbackTimeout == 0 {
		t.CallbackTimeout = DefaultCallbackTimeout
	}
	if t.ConnectTimeout == 0 {
		t.ConnectTimeout = DefaultConnectTimeout
	}
	if t.HandshakeTimeout == 0 {
		t.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if t.PingInterval == 0 {
		t.PingInterval = DefaultPingInterval
	}
	if t.FailsafeDelay == 0 {
		t.FailsafeDelay = DefaultFailsafeDelay
	}
	if t.AutoDisconnectDelay == 0 {
		t.AutoDisconnectDelay = DefaultAutoDisconnectDelay
	}
}

// ============================================================================
// File-backed settings
// ============================================================================

type settingsFile struct {
	Server Settings `toml:"server"`
}

// LoadSettingsFile reads the [server] section of a TOML file. A missing file
// yields DefaultSettings.
func LoadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("cannot read settings: %w", err)
	}
	file := settingsFile{Server: DefaultSettings()}
	if err := toml.Unmarshal(data, &file); err != nil {
		return Settings{}, fmt.Errorf("cannot parse settings: %w", err)
	}
	return file.Server, nil
}

// FileSettings is a SettingsProvider that re-reads a TOML file on every
// connect attempt and falls back to the last good read on error.
type FileSettings struct {
	Path string

	mu   sync.Mutex
	last *Settings
}

// NewFileSettings creates a provider for the file at path.
func NewFileSettings(path string) *FileSettings {
	return &FileSettings{Path: path}
}

// Settings returns the current file contents.
func (f *FileSettings) Settings() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := LoadSettingsFile(f.Path)
	if err != nil {
		if f.last != nil {
			return *f.last
		}
		return DefaultSettings()
	}
	f.last = &s
	return s
}
