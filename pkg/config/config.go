// Package config provides YAML-based zone configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration of one zone process.
type Config struct {
	// Name is the human-readable zone name, sent in the manifest.
	Name string `mapstructure:"name"`

	// Listen configures the inbound transport.
	Listen ListenConfig `mapstructure:"listen"`

	// Peers lists known destinations a session may transfer to.
	// Destination strings are matched verbatim.
	Peers []string `mapstructure:"peers"`

	// Codec selects the envelope codec: json (wire default) or cbor.
	Codec string `mapstructure:"codec"`

	// AuthTimeoutMS bounds the wait for auth on a new connection.
	AuthTimeoutMS int `mapstructure:"auth_timeout_ms"`

	// Identity configures the zone's ed25519 signing key for minted
	// passports. Empty means passports go out unsigned.
	Identity IdentityConfig `mapstructure:"identity"`

	// Log holds logging configuration.
	Log LogConfig `mapstructure:"log"`

	// Game holds settings for game zones; other apps ignore it.
	Game GameConfig `mapstructure:"game"`
}

// ListenConfig selects the transport kind and address.
type ListenConfig struct {
	// Kind: tcp or quic.
	Kind string `mapstructure:"kind"`
	// Addr is a host:port for tcp/quic.
	Addr string `mapstructure:"addr"`
}

// IdentityConfig configures the zone signing key.
type IdentityConfig struct {
	Sign           bool   `mapstructure:"sign"`
	PrivateKey     string `mapstructure:"private_key"`      // base64 raw-url
	PrivateKeyFile string `mapstructure:"private_key_file"` // raw or base64
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`
	// Rotation controls rotation for file outputs
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// GameConfig holds the game zone's import policy knobs.
type GameConfig struct {
	// AllowWeapons overrides the zone-name heuristic when set.
	AllowWeapons *bool `mapstructure:"allow_weapons"`
	// TickMS is the world tick interval. Default 50 (20 ticks/sec).
	TickMS int `mapstructure:"tick_ms"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Name:          "zone",
		Listen:        ListenConfig{Kind: "tcp", Addr: ":8001"},
		Codec:         "json",
		AuthTimeoutMS: 10000,
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Filename:   "logs/interconnect.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Game: GameConfig{TickMS: 50},
	}
}

// Load reads configuration from path (if non-empty), otherwise searches
// common locations. Environment variables use the prefix INTERCONNECT with
// `.`/`-` mapped to `_`, e.g. INTERCONNECT_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("INTERCONNECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("name", cfg.Name)
	v.SetDefault("listen.kind", cfg.Listen.Kind)
	v.SetDefault("listen.addr", cfg.Listen.Addr)
	v.SetDefault("peers", cfg.Peers)
	v.SetDefault("codec", cfg.Codec)
	v.SetDefault("auth_timeout_ms", cfg.AuthTimeoutMS)
	v.SetDefault("identity.sign", cfg.Identity.Sign)
	v.SetDefault("identity.private_key", cfg.Identity.PrivateKey)
	v.SetDefault("identity.private_key_file", cfg.Identity.PrivateKeyFile)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("game.tick_ms", cfg.Game.TickMS)

	if path == "" {
		if envPath := os.Getenv("INTERCONNECT_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("interconnect")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".interconnect"))
		}
	}

	// missing config file is fine: defaults + env remain
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Listen.Kind)) {
	case "tcp", "quic":
		c.Listen.Kind = strings.ToLower(strings.TrimSpace(c.Listen.Kind))
	default:
		return fmt.Errorf("invalid listen.kind: %q", c.Listen.Kind)
	}
	switch strings.ToLower(strings.TrimSpace(c.Codec)) {
	case "json", "cbor":
		c.Codec = strings.ToLower(strings.TrimSpace(c.Codec))
	default:
		return fmt.Errorf("invalid codec: %q", c.Codec)
	}
	if strings.TrimSpace(c.Name) == "" {
		c.Name = "zone"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.AuthTimeoutMS <= 0 {
		c.AuthTimeoutMS = 10000
	}
	if c.Game.TickMS <= 0 {
		c.Game.TickMS = 50
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
