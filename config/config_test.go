package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, byte(1), cfg.I2C.Bus)
	assert.Equal(t, byte(0), cfg.I2C.Address)
	assert.Equal(t, 5, *cfg.I2C.Retries)
	assert.Equal(t, 10, *cfg.I2C.RetrySleepMs)
	assert.Equal(t, 1000, cfg.Poll.IntervalMs)
	assert.Equal(t, 25.0, *cfg.Compensation.Temperature)
	assert.Equal(t, 50.0, *cfg.Compensation.Humidity)
	assert.Nil(t, cfg.Interrupt.Pin)
	assert.Equal(t, ":9978", cfg.HTTP.Listen)
	assert.Empty(t, cfg.Datalog.Path)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, Validate(cfg))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ens160.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
i2c:
  bus: 3
  address: 0x52
  retries: 0
poll:
  interval_ms: 250
compensation:
  temperature: 72.5
  unit: f
  humidity: 55
interrupt:
  pin: 17
datalog:
  path: /tmp/ens160.db
log:
  dir: /var/log/ens160/
  debug: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.Equal(t, byte(3), cfg.I2C.Bus)
	assert.Equal(t, byte(0x52), cfg.I2C.Address)
	assert.Equal(t, 0, *cfg.I2C.Retries)
	assert.Equal(t, 10, *cfg.I2C.RetrySleepMs)
	assert.Equal(t, 250, cfg.Poll.IntervalMs)
	assert.InDelta(t, 22.5, *cfg.Compensation.Temperature, 1e-9)
	assert.Equal(t, "C", cfg.Compensation.Unit)
	assert.Equal(t, 17, *cfg.Interrupt.Pin)
	assert.Equal(t, "/tmp/ens160.db", cfg.Datalog.Path)
	assert.Equal(t, "/var/log/ens160", cfg.Log.Dir)
	assert.True(t, cfg.Log.Debug)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestParseBadYAML(t *testing.T) {
	_, err := Parse([]byte("i2c: [1, 2"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad address", "i2c: {address: 0x77}"},
		{"negative retries", "i2c: {retries: -1}"},
		{"negative retry sleep", "i2c: {retry_sleep_ms: -1}"},
		{"negative interval", "poll: {interval_ms: -5}"},
		{"bad unit", "compensation: {temperature: 20, unit: R}"},
		{"below absolute zero", "compensation: {temperature: -300}"},
		{"too hot for register", "compensation: {temperature: 1100, unit: K}"},
		{"humidity", "compensation: {humidity: 120}"},
		{"pin", "interrupt: {pin: 40}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestNormalizeKelvin(t *testing.T) {
	cfg, err := Parse([]byte("compensation: {temperature: 300, unit: K}"))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	Normalize(cfg)
	assert.InDelta(t, 26.85, *cfg.Compensation.Temperature, 1e-9)
}
