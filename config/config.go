// Package config loads the ens160d YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultI2CBus       = 1
	DefaultRetries      = 5
	DefaultRetrySleepMs = 10
	DefaultIntervalMs   = 1000
	DefaultTemperature  = 25.0
	DefaultHumidity     = 50.0
	DefaultListen       = ":9978"
	DefaultLogDir       = "/var/log"
)

type Config struct {
	I2C          I2CConfig          `yaml:"i2c"`
	Poll         PollConfig         `yaml:"poll"`
	Compensation CompensationConfig `yaml:"compensation"`
	Interrupt    InterruptConfig    `yaml:"interrupt"`
	HTTP         HTTPConfig         `yaml:"http"`
	Datalog      DatalogConfig      `yaml:"datalog"`
	Log          LogConfig          `yaml:"log"`
}

// ---- BUS ----

type I2CConfig struct {
	Bus          byte `yaml:"bus"`
	Address      byte `yaml:"address"` // 0 = probe 0x53 then 0x52
	Retries      *int `yaml:"retries"`
	RetrySleepMs *int `yaml:"retry_sleep_ms"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- COMPENSATION ----

type CompensationConfig struct {
	Temperature *float64 `yaml:"temperature"`
	Unit        string   `yaml:"unit"` // C, F or K
	Humidity    *float64 `yaml:"humidity"`
}

// ---- INTERRUPT ----

// InterruptConfig names the BCM GPIO wired to the sensor's INTn pin (opt-in).
type InterruptConfig struct {
	Pin *int `yaml:"pin"`
}

// ---- OUTPUTS ----

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

type DatalogConfig struct {
	Path string `yaml:"path"` // empty disables the datalog
}

type LogConfig struct {
	Dir   string `yaml:"dir"`
	Debug bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads path and fills in defaults for everything left out.
// The result still has to go through Validate and Normalize.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func applyDefaults(cfg *Config) {
	if cfg.I2C.Bus == 0 {
		cfg.I2C.Bus = DefaultI2CBus
	}
	if cfg.I2C.Retries == nil {
		cfg.I2C.Retries = intPtr(DefaultRetries)
	}
	if cfg.I2C.RetrySleepMs == nil {
		cfg.I2C.RetrySleepMs = intPtr(DefaultRetrySleepMs)
	}
	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = DefaultIntervalMs
	}
	if cfg.Compensation.Unit == "" {
		cfg.Compensation.Unit = "C"
	}
	if cfg.Compensation.Temperature == nil {
		cfg.Compensation.Temperature = floatPtr(DefaultTemperature)
		cfg.Compensation.Unit = "C"
	}
	if cfg.Compensation.Humidity == nil {
		cfg.Compensation.Humidity = floatPtr(DefaultHumidity)
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultListen
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = DefaultLogDir
	}
}
