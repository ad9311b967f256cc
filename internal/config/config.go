// Package config loads gaitsync settings from a config file, GAITSYNC_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/banshee-data/gaitsync/internal/gaitup/parse"
	"github.com/banshee-data/gaitsync/internal/serialdump"
)

// EnvPrefix is prepended to every environment variable, e.g.
// GAITSYNC_SERIAL_PORT for serial.port.
const EnvPrefix = "gaitsync"

// Config is the root configuration. Field names match the keys accepted in
// config files, so the same names can be used as flags.
type Config struct {
	SyncWindow int          `mapstructure:"sync_window" json:"sync_window"`
	DBPath     string       `mapstructure:"db_path" json:"db_path"`
	Listen     string       `mapstructure:"listen" json:"listen"`
	PlotsDir   string       `mapstructure:"plots_dir" json:"plots_dir"`
	Serial     SerialConfig `mapstructure:"serial" json:"serial"`
}

// SerialConfig describes the link used by the download command.
type SerialConfig struct {
	Port        string `mapstructure:"port" json:"port"`
	BaudRate    int    `mapstructure:"baud_rate" json:"baud_rate"`
	DataBits    int    `mapstructure:"data_bits" json:"data_bits"`
	StopBits    int    `mapstructure:"stop_bits" json:"stop_bits"`
	Parity      string `mapstructure:"parity" json:"parity"`
	ReadTimeout string `mapstructure:"read_timeout" json:"read_timeout"` // duration string like "2s"
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		SyncWindow: parse.DefaultSyncWindow,
		DBPath:     "gaitsync.db",
		Listen:     "localhost:8090",
		PlotsDir:   "",
		Serial: SerialConfig{
			BaudRate:    921600,
			DataBits:    8,
			StopBits:    1,
			Parity:      "N",
			ReadTimeout: "2s",
		},
	}
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("sync_window", d.SyncWindow)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("plots_dir", d.PlotsDir)
	v.SetDefault("serial.port", d.Serial.Port)
	v.SetDefault("serial.baud_rate", d.Serial.BaudRate)
	v.SetDefault("serial.data_bits", d.Serial.DataBits)
	v.SetDefault("serial.stop_bits", d.Serial.StopBits)
	v.SetDefault("serial.parity", d.Serial.Parity)
	v.SetDefault("serial.read_timeout", d.Serial.ReadTimeout)
}

// NewViper returns a viper instance with defaults and environment binding.
// When path is non-empty the file is read; its type follows the extension.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		return v, nil
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".toml", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must be json, toml or yaml, got %q", ext)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return v, nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadFile is NewViper followed by Load.
func LoadFile(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return Load(v)
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.SyncWindow <= 0 {
		return fmt.Errorf("sync_window must be positive, got %d", c.SyncWindow)
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.Listen == "" {
		return errors.New("listen must not be empty")
	}
	if _, err := c.Serial.PortOptions().Normalise(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	if c.Serial.ReadTimeout != "" {
		d, err := time.ParseDuration(c.Serial.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid serial.read_timeout '%s': %w", c.Serial.ReadTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("serial.read_timeout must be non-negative, got %s", d)
		}
	}
	return nil
}

// ParseOptions returns the decoder options derived from the configuration.
func (c *Config) ParseOptions() parse.Options {
	return parse.Options{SyncWindow: c.SyncWindow}
}

// PortOptions converts the serial block into options for serialdump.
func (s SerialConfig) PortOptions() serialdump.PortOptions {
	return serialdump.PortOptions{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		StopBits: s.StopBits,
		Parity:   s.Parity,
	}
}

// GetReadTimeout parses ReadTimeout, returning 2s when unset or invalid.
func (s SerialConfig) GetReadTimeout() time.Duration {
	if s.ReadTimeout == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(s.ReadTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}
