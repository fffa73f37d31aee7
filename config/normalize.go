package config

import "strings"

// Normalize applies post-validation normalization.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// Compensation is handed to the sensor in degrees C.
	c := &cfg.Compensation
	if c.Temperature != nil {
		celsius := toKelvin(*c.Temperature, c.Unit) - 273.15
		c.Temperature = &celsius
	}
	c.Unit = "C"

	cfg.Log.Dir = strings.TrimRight(cfg.Log.Dir, "/")
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = "/"
	}
}
