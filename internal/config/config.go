package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Store kinds.
const (
	StoreZip = "zip"
	StoreDir = "dir"
)

const envPrefix = "TESTWEAVER"

// Config holds settings shared by the run and replay commands.
type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Jobs     int           `mapstructure:"jobs"`
	Store    string        `mapstructure:"store"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "warn",
		Jobs:     runtime.NumCPU(),
		Store:    StoreZip,
		Timeout:  5 * time.Minute,
	}
}

// Load reads path (YAML, optional when empty) and applies TESTWEAVER_*
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("jobs", def.Jobs)
	v.SetDefault("store", def.Store)
	v.SetDefault("timeout", def.Timeout)

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
}

// Validate rejects settings the runner cannot honor.
func (c *Config) Validate() error {
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1 (got %d)", c.Jobs)
	}
	switch c.Store {
	case StoreZip, StoreDir:
	default:
		return fmt.Errorf("invalid store %q (expected %s|%s)", c.Store, StoreZip, StoreDir)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %s)", c.Timeout)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}
