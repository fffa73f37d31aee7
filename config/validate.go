package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	switch cfg.I2C.Address {
	case 0, 0x52, 0x53:
	default:
		return fmt.Errorf("i2c: address 0x%02X is not an ENS160 address (0x52 or 0x53)", cfg.I2C.Address)
	}
	if cfg.I2C.Retries != nil && *cfg.I2C.Retries < 0 {
		return fmt.Errorf("i2c: retries must be >= 0, got %d", *cfg.I2C.Retries)
	}
	if cfg.I2C.RetrySleepMs != nil && *cfg.I2C.RetrySleepMs < 0 {
		return fmt.Errorf("i2c: retry_sleep_ms must be >= 0, got %d", *cfg.I2C.RetrySleepMs)
	}

	if cfg.Poll.IntervalMs <= 0 {
		return fmt.Errorf("poll: interval_ms must be > 0, got %d", cfg.Poll.IntervalMs)
	}

	c := cfg.Compensation
	switch strings.ToUpper(c.Unit) {
	case "C", "F", "K":
	default:
		return fmt.Errorf("compensation: unknown temperature unit %q (want C, F or K)", c.Unit)
	}
	if c.Temperature != nil {
		k := toKelvin(*c.Temperature, c.Unit)
		// the register holds Kelvin*64 in 16 bits
		if k < 0 || k*64 > 0xFFFF {
			return fmt.Errorf("compensation: temperature %g%s out of range", *c.Temperature, strings.ToUpper(c.Unit))
		}
	}
	if c.Humidity != nil && (*c.Humidity < 0 || *c.Humidity > 100) {
		return fmt.Errorf("compensation: humidity must be 0-100%%, got %g", *c.Humidity)
	}

	if cfg.Interrupt.Pin != nil && (*cfg.Interrupt.Pin < 0 || *cfg.Interrupt.Pin > 27) {
		return fmt.Errorf("interrupt: pin %d is not a BCM GPIO", *cfg.Interrupt.Pin)
	}

	return nil
}

func toKelvin(v float64, unit string) float64 {
	switch strings.ToUpper(unit) {
	case "F":
		return (v-32)*5/9 + 273.15
	case "K":
		return v
	}
	return v + 273.15
}
