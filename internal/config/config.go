// Package config loads wsnotify settings from an optional TOML file and
// WSNOTIFY_ prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// EnvPrefix is the prefix of environment variables overriding the file.
// WSNOTIFY_RECONNECT_BASE__DELAY maps to reconnect.base_delay: single
// underscores separate sections, double underscores are kept literally.
const EnvPrefix = "WSNOTIFY_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Reconnect ReconnectConfig `koanf:"reconnect"`
	Heartbeat HeartbeatConfig `koanf:"heartbeat"`
	Subscribe []string        `koanf:"subscribe"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type ServerConfig struct {
	// URL is a ws(s):// endpoint or an http(s):// origin.
	URL        string `koanf:"url"`
	Token      string `koanf:"token"`
	TokenParam string `koanf:"token_param"`

	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	HandshakeTimeout   time.Duration `koanf:"handshake_timeout"`
}

type ReconnectConfig struct {
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	MaxAttempts int           `koanf:"max_attempts"`
}

type HeartbeatConfig struct {
	Interval time.Duration `koanf:"interval"`
	// PongTimeout of zero disables the pong watchdog.
	PongTimeout time.Duration `koanf:"pong_timeout"`
}

type LoggingConfig struct {
	// Level can be "debug", "info", "warn" or "error".
	Level string `koanf:"level"`
	// Format is "json" or "text".
	Format string `koanf:"format"`
}

type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `koanf:"addr"`
}

// Load layers configPath (when given), the environment and overrides, in that
// order, on top of the defaults and validates the result. Override keys use
// the dotted form, e.g. "server.url".
func Load(configPath string, overrides map[string]any) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, errors.Wrap(err, "failed to load config file")
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment variables")
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, "failed to apply overrides")
		}
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)

	s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ReplaceAll(s, "%UNDERSCORE%", "_")
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			TokenParam:       "token",
			HandshakeTimeout: 10 * time.Second,
		},
		Reconnect: ReconnectConfig{
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			MaxAttempts: 5,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	if c.Server.TokenParam == "" {
		return errors.New("server.token_param must not be empty")
	}
	if c.Server.HandshakeTimeout < 0 {
		return errors.Errorf("server.handshake_timeout must not be negative, got %s", c.Server.HandshakeTimeout)
	}

	if c.Reconnect.BaseDelay <= 0 {
		return errors.Errorf("reconnect.base_delay must be positive, got %s", c.Reconnect.BaseDelay)
	}
	if c.Reconnect.MaxDelay <= 0 {
		return errors.Errorf("reconnect.max_delay must be positive, got %s", c.Reconnect.MaxDelay)
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return errors.Errorf("reconnect.max_delay (%s) must not be lower than reconnect.base_delay (%s)",
			c.Reconnect.MaxDelay, c.Reconnect.BaseDelay)
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return errors.Errorf("reconnect.max_attempts must be positive, got %d", c.Reconnect.MaxAttempts)
	}

	if c.Heartbeat.Interval <= 0 {
		return errors.Errorf("heartbeat.interval must be positive, got %s", c.Heartbeat.Interval)
	}
	if c.Heartbeat.PongTimeout < 0 {
		return errors.Errorf("heartbeat.pong_timeout must not be negative, got %s", c.Heartbeat.PongTimeout)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}
