package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/b3nn0/ens160/sensors"
)

// Prometheus metrics, registered on their own registry so /metrics only
// carries sensor data and the Go runtime collectors.
type metrics struct {
	registry *prometheus.Registry

	aqi       prometheus.Gauge
	tvoc      prometheus.Gauge
	eco2      prometheus.Gauge
	validity  prometheus.Gauge
	errorFlag prometheus.Gauge
	readings  prometheus.Counter
	busErrors prometheus.Counter
	uptime    prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		aqi: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ens160_aqi",
			Help: "Air quality index, 1 (excellent) to 5 (unhealthy).",
		}),
		tvoc: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ens160_tvoc_ppb",
			Help: "Total volatile organic compounds, ppb.",
		}),
		eco2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ens160_eco2_ppm",
			Help: "Equivalent CO2, ppm.",
		}),
		validity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ens160_validity",
			Help: "Validity flag: 0 normal, 1 warm-up, 2 initial start-up, 3 invalid.",
		}),
		errorFlag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ens160_status_error",
			Help: "1 if the sensor reports an invalid operating mode.",
		}),
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ens160_readings_total",
			Help: "Readings taken.",
		}),
		busErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ens160_bus_errors_total",
			Help: "I2C transactions that failed after all retries.",
		}),
		uptime: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ens160d_uptime_seconds_total",
			Help: "Total uptime.",
		}),
	}
	m.registry.MustRegister(
		m.aqi, m.tvoc, m.eco2, m.validity, m.errorFlag,
		m.readings, m.busErrors, m.uptime,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *metrics) observe(s sensors.GasSample) {
	m.readings.Inc()
	m.aqi.Set(float64(s.AQI))
	m.tvoc.Set(float64(s.TVOC))
	m.eco2.Set(float64(s.ECO2))
	m.validity.Set(float64(s.Status.Validity))
	if s.Status.Error {
		m.errorFlag.Set(1)
	} else {
		m.errorFlag.Set(0)
	}
}
