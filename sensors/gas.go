// Package sensors provides a polling interface to the air quality sensors.
package sensors

import (
	"time"

	"github.com/b3nn0/ens160/sensors/ens160"
)

// GasReader provides an interface to a sensor reading air quality, like the
// ENS160. Values are the latest ones polled in the background.
type GasReader interface {
	// AQI returns the air quality index, 1 (excellent) to 5 (unhealthy).
	AQI() (aqi uint8, err error)
	// TVOC returns total volatile organic compounds in ppb.
	TVOC() (tvoc uint16, err error)
	// ECO2 returns the equivalent CO2 concentration in ppm.
	ECO2() (eco2 uint16, err error)
	Status() (ens160.Status, error)
	LastReading() (GasSample, bool)
	// SetCompensation sets ambient temperature (degrees C) and relative humidity (%).
	SetCompensation(tempC, rh float64) error
	Close() // Close stops reading from the sensor.
}

// GasSample is one set of measurements with the time it was taken.
type GasSample struct {
	ens160.Reading
	Time time.Time
}

// DataReady is a GPIO input wired to the sensor's interrupt pin, such as an
// rpio.Pin set up for edge detection.
type DataReady interface {
	EdgeDetected() bool
}
