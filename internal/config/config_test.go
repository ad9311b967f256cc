package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 512, cfg.ParseOptions().SyncWindow)
	assert.Equal(t, 2*time.Second, cfg.Serial.GetReadTimeout())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	want := Defaults()
	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Errorf("LoadFile(\"\") mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "gaitsync.json", `{
  "sync_window": 1024,
  "db_path": "/var/lib/gaitsync/sessions.db",
  "serial": {"port": "/dev/ttyACM0", "parity": "even", "read_timeout": "500ms"}
}`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.SyncWindow)
	assert.Equal(t, "/var/lib/gaitsync/sessions.db", cfg.DBPath)
	assert.Equal(t, "localhost:8090", cfg.Listen)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, "even", cfg.Serial.Parity)
	assert.Equal(t, 921600, cfg.Serial.BaudRate)
	assert.Equal(t, 500*time.Millisecond, cfg.Serial.GetReadTimeout())
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "gaitsync.toml", `
listen = ":9000"
plots_dir = "plots"

[serial]
baud_rate = 115200
stop_bits = 2
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "plots", cfg.PlotsDir)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 2, cfg.Serial.StopBits)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "gaitsync.json", `{"db_path": "from-file.db"}`)
	t.Setenv("GAITSYNC_DB_PATH", "from-env.db")
	t.Setenv("GAITSYNC_SERIAL_PORT", "/dev/ttyUSB3")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DBPath)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Serial.Port)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeConfig(t, "gaitsync.ini", "listen=:1")
	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "json, toml or yaml")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"zero sync window", func(c *Config) { c.SyncWindow = 0 }, "sync_window"},
		{"empty db path", func(c *Config) { c.DBPath = "" }, "db_path"},
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen"},
		{"bad parity", func(c *Config) { c.Serial.Parity = "mark" }, "parity"},
		{"bad data bits", func(c *Config) { c.Serial.DataBits = 9 }, "data bits"},
		{"bad timeout", func(c *Config) { c.Serial.ReadTimeout = "soon" }, "read_timeout"},
		{"negative timeout", func(c *Config) { c.Serial.ReadTimeout = "-1s" }, "non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestInvalidFileFailsLoad(t *testing.T) {
	path := writeConfig(t, "bad.json", `{"sync_window": -5}`)
	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestPortOptions(t *testing.T) {
	s := SerialConfig{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "O"}
	opts := s.PortOptions()
	assert.Equal(t, 9600, opts.BaudRate)
	assert.Equal(t, 7, opts.DataBits)
	assert.Equal(t, 2, opts.StopBits)
	assert.Equal(t, "O", opts.Parity)
}
