package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	remote "github.com/musikcube/remote/sdk/golang"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.musikremote/config.toml.
// The [server] section is also read directly by remote.FileSettings.
type Config struct {
	Server remote.Settings `toml:"server"`
	Log    ConfigLog       `toml:"log"`
}

// ConfigLog holds logging settings.
type ConfigLog struct {
	Level string `toml:"level"`
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.musikremote, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".musikremote")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file, honoring --config.
func configPath() (string, error) {
	if configFlag != "" {
		return configFlag, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads and parses the config file.
// If the file does not exist, it returns the default configuration.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg := &Config{Server: remote.DefaultSettings(), Log: ConfigLog{Level: "info"}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return cfg, nil
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "server.address").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. server.address)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "server":
		switch field {
		case "address":
			cfg.Server.Address = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil || port < 0 || port > 65535 {
				return fmt.Errorf("invalid port %q", value)
			}
			cfg.Server.Port = port
		case "password":
			cfg.Server.Password = value
		case "device_id":
			cfg.Server.DeviceID = value
		case "tls", "compression", "insecure_skip_verify":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid boolean %q for server.%s", value, field)
			}
			switch field {
			case "tls":
				cfg.Server.TLS = b
			case "compression":
				cfg.Server.Compression = b
			default:
				cfg.Server.InsecureSkipVerify = b
			}
		default:
			return fmt.Errorf("unknown field %q in section [server]", field)
		}
	case "log":
		switch field {
		case "level":
			if _, err := parseLevel(value); err != nil {
				return err
			}
			cfg.Log.Level = value
		default:
			return fmt.Errorf("unknown field %q in section [log]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: server, log)", section)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:          "musikremote",
	Short:        "musikcube remote CLI",
	Long:         "Command-line client for the musikcube remote WebSocket protocol.\nConfigure a server, send requests and watch playback events.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.musikremote/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (trace, debug, info, warn, error); overrides MUSIKREMOTE_LOG_LEVEL and the config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
