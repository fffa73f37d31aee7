package sensors

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b3nn0/ens160/sensors/ens160"
	"github.com/b3nn0/ens160/sensors/retryi2c"
)

const defaultFirmwareTimeout = 500 * time.Millisecond

var errNoData = errors.New("ENS160 Error: no reading available")

// ENS160Config selects how the sensor is found and polled.
type ENS160Config struct {
	// Address of the sensor; zero tries both possible addresses.
	Address byte
	Bus     retryi2c.Config

	// Interval between status polls. Zero disables the background loop,
	// the caller then drives it with Poll.
	Interval time.Duration

	// Initial compensation values.
	TemperatureC float64
	Humidity     float64

	// DataReady, if set, gates polling on the INTn pin and configures the
	// sensor to assert it on new data.
	DataReady DataReady

	FirmwareTimeout time.Duration

	// Now stamps samples, defaults to time.Now.
	Now func() time.Time

	OnReading func(GasSample)
	OnError   func(error)
}

// ENS160 polls an ENS160 in the background and implements GasReader.
type ENS160 struct {
	busMu  sync.Mutex // serializes device access
	sensor *ens160.ENS160
	cfg    ENS160Config

	mu       sync.RWMutex
	last     GasSample
	haveData bool
	running  bool
	firmware string

	done chan struct{}
	wg   sync.WaitGroup
	log  *logrus.Entry
}

// NewENS160 looks for an ENS160 on conn, resets it, applies the compensation
// values, switches it to standard gas sensing and begins reading it.
func NewENS160(conn retryi2c.Conn, cfg ENS160Config) (*ENS160, error) {
	sensor, err := findENS160(conn, cfg)
	if err != nil {
		return nil, err
	}
	return startENS160(sensor, cfg)
}

func findENS160(conn retryi2c.Conn, cfg ENS160Config) (*ens160.ENS160, error) {
	addrs := []byte{ens160.Address2, ens160.Address1}
	if cfg.Address != 0 {
		addrs = []byte{cfg.Address}
	}
	for _, addr := range addrs {
		sensor := ens160.New(retryi2c.New(conn, addr, cfg.Bus))
		if sensor.Connected() {
			return sensor, nil
		}
	}
	return nil, ens160.ErrNotConnected
}

func startENS160(sensor *ens160.ENS160, cfg ENS160Config) (*ENS160, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FirmwareTimeout <= 0 {
		cfg.FirmwareTimeout = defaultFirmwareTimeout
	}

	e := &ENS160{
		sensor: sensor,
		cfg:    cfg,
		done:   make(chan struct{}),
		log:    logrus.WithFields(logrus.Fields{"sensor": "ens160", "addr": sensor.Address()}),
	}

	if err := sensor.Init(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FirmwareTimeout)
	fw, err := sensor.FirmwareVersionContext(ctx)
	cancel()
	switch {
	case errors.Is(err, ens160.ErrTimeout):
		e.log.Warn("firmware version not reported")
	case err != nil:
		return nil, err
	default:
		e.firmware = fw
		e.log.WithField("firmware", fw).Info("ENS160 found")
	}

	if cfg.DataReady != nil {
		err = sensor.SetInterruptConfig(ens160.IntEnable | ens160.IntOnData | ens160.IntPushPull)
		if err != nil {
			return nil, err
		}
	}
	if err := e.applyCompensation(cfg.TemperatureC, cfg.Humidity); err != nil {
		return nil, err
	}
	if err := sensor.SetOperatingMode(ens160.Standard); err != nil {
		return nil, err
	}

	e.running = true
	if cfg.Interval > 0 {
		e.wg.Add(1)
		go e.run()
	}
	return e, nil
}

func (e *ENS160) applyCompensation(tempC, rh float64) error {
	if err := e.sensor.SetTempCompensationCelsius(tempC); err != nil {
		return err
	}
	return e.sensor.SetRHCompensation(rh)
}

func (e *ENS160) run() {
	defer e.wg.Done()
	clock := time.NewTicker(e.cfg.Interval)
	defer clock.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-clock.C:
			if err := e.Poll(); err != nil {
				e.log.WithError(err).Warn("couldn't read sensor")
			}
		}
	}
}

// Poll checks the device status once and stores a new sample if the device
// has fresh data.
func (e *ENS160) Poll() error {
	if e.cfg.DataReady != nil && !e.cfg.DataReady.EdgeDetected() {
		return nil
	}

	e.busMu.Lock()
	status, err := e.sensor.DeviceStatus()
	var r ens160.Reading
	if err == nil && status.NewData {
		r, err = e.sensor.ReadAll()
	}
	e.busMu.Unlock()

	if err != nil {
		if e.cfg.OnError != nil {
			e.cfg.OnError(err)
		}
		return err
	}
	if !status.NewData {
		return nil
	}
	if status.Error {
		e.log.WithField("status", status).Warn("sensor reports an error")
	}

	sample := GasSample{Reading: r, Time: e.cfg.Now()}
	e.mu.Lock()
	e.last = sample
	e.haveData = true
	e.mu.Unlock()

	if e.cfg.OnReading != nil {
		e.cfg.OnReading(sample)
	}
	return nil
}

// SetCompensation updates the ambient temperature (degrees C) and relative
// humidity (%) the sensor compensates for.
func (e *ENS160) SetCompensation(tempC, rh float64) error {
	e.busMu.Lock()
	defer e.busMu.Unlock()
	return e.applyCompensation(tempC, rh)
}

func (e *ENS160) Firmware() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.firmware
}

func (e *ENS160) Address() byte { return e.sensor.Address() }

func (e *ENS160) LastReading() (GasSample, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last, e.running && e.haveData
}

func (e *ENS160) sample() (GasSample, error) {
	s, ok := e.LastReading()
	if !ok {
		return GasSample{}, errNoData
	}
	return s, nil
}

func (e *ENS160) AQI() (uint8, error) {
	s, err := e.sample()
	return s.AQI, err
}

func (e *ENS160) TVOC() (uint16, error) {
	s, err := e.sample()
	return s.TVOC, err
}

func (e *ENS160) ECO2() (uint16, error) {
	s, err := e.sample()
	return s.ECO2, err
}

func (e *ENS160) Status() (ens160.Status, error) {
	s, err := e.sample()
	return s.Status, err
}

// Close stops the measurements and puts the sensor into deep sleep.
func (e *ENS160) Close() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()

	e.busMu.Lock()
	defer e.busMu.Unlock()
	if err := e.sensor.SetOperatingMode(ens160.DeepSleep); err != nil {
		e.log.WithError(err).Warn("couldn't put sensor to sleep")
	}
}
