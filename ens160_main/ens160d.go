package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
	"github.com/takama/daemon"

	"github.com/b3nn0/ens160/common"
	"github.com/b3nn0/ens160/config"
	"github.com/b3nn0/ens160/datalog"
	"github.com/b3nn0/ens160/sensors"
	"github.com/b3nn0/ens160/sensors/retryi2c"
)

const (
	defaultConfigLocation = "/etc/ens160d.yaml"

	// how often to retry finding the sensor
	connectRetryDelay = 4 * time.Second

	// name of the service
	name        = "ens160d"
	description = "ENS160 air quality sensor monitor"
)

// ens160d holds the daemon's runtime state.
type ens160d struct {
	mu      sync.RWMutex
	cfg     *config.Config
	sensor  sensors.GasReader
	address byte
	fw      string
	stopped bool

	clock   *common.Monotonic
	metrics *metrics
	datalog *datalog.Logger
	started time.Time
}

// gasRow is the datalog representation of a sample.
type gasRow struct {
	AQI      uint8
	TVOC     uint16
	ECO2     uint16
	Validity string
	PowerOn  bool
	Error    bool
	Time     time.Time
}

func (d *ens160d) record(s sensors.GasSample) {
	d.metrics.observe(s)
	if d.datalog != nil {
		d.datalog.Log("gas", gasRow{
			AQI:      s.AQI,
			TVOC:     s.TVOC,
			ECO2:     s.ECO2,
			Validity: s.Status.Validity.String(),
			PowerOn:  s.Status.PowerOn,
			Error:    s.Status.Error,
			Time:     s.Time,
		})
	}
	log.WithFields(log.Fields{
		"aqi":  s.AQI,
		"tvoc": s.TVOC,
		"eco2": s.ECO2,
	}).Debug("reading")
}

func (d *ens160d) updateStats(done <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.metrics.uptime.Inc()
		case <-done:
			return
		}
	}
}

func (d *ens160d) sensorConfig(ready sensors.DataReady) sensors.ENS160Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c := d.cfg
	return sensors.ENS160Config{
		Address: c.I2C.Address,
		Bus: retryi2c.Config{
			Retries:    *c.I2C.Retries,
			RetrySleep: time.Duration(*c.I2C.RetrySleepMs) * time.Millisecond,
		},
		Interval:     time.Duration(c.Poll.IntervalMs) * time.Millisecond,
		TemperatureC: *c.Compensation.Temperature,
		Humidity:     *c.Compensation.Humidity,
		DataReady:    ready,
		Now:          d.clock.Now,
		OnReading:    d.record,
		OnError: func(err error) {
			if errors.Is(err, retryi2c.ErrBusTransaction) {
				d.metrics.busErrors.Inc()
			}
		},
	}
}

// connect keeps trying to find the sensor until it answers or done closes.
func (d *ens160d) connect(conn retryi2c.Conn, ready sensors.DataReady, done <-chan struct{}) bool {
	timer := time.NewTicker(connectRetryDelay)
	defer timer.Stop()
	for {
		log.Info("attempting ENS160 connection")
		s, err := sensors.NewENS160(conn, d.sensorConfig(ready))
		if err == nil {
			if !d.attach(s, s.Address(), s.Firmware()) {
				s.Close()
				return false
			}
			log.WithField("addr", fmt.Sprintf("0x%02X", s.Address())).Info("successfully initialized ENS160")
			return true
		}
		log.WithError(err).Warn("couldn't initialize ENS160")
		select {
		case <-timer.C:
		case <-done:
			return false
		}
	}
}

// attach publishes a freshly connected sensor. It refuses once shutdown ran,
// leaving the caller to close the sensor.
func (d *ens160d) attach(s sensors.GasReader, address byte, fw string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.sensor = s
	d.address = address
	d.fw = fw
	return true
}

// shutdown closes the current sensor and stops later connects from attaching.
func (d *ens160d) shutdown() {
	d.mu.Lock()
	d.stopped = true
	s := d.sensor
	d.sensor = nil
	d.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// reload re-reads the config file and applies what can change at runtime.
func (d *ens160d) reload(path string) {
	cfg, err := loadConfig(path)
	if err != nil {
		log.WithError(err).Errorf("can't read settings %s", path)
		return
	}
	d.mu.Lock()
	d.cfg.Compensation = cfg.Compensation
	d.cfg.Log.Debug = cfg.Log.Debug
	sensor := d.sensor
	d.mu.Unlock()

	if cfg.Log.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	if sensor == nil {
		return
	}
	err = sensor.SetCompensation(*cfg.Compensation.Temperature, *cfg.Compensation.Humidity)
	if err != nil {
		log.WithError(err).Error("couldn't update compensation")
		return
	}
	log.WithFields(log.Fields{
		"temperature": *cfg.Compensation.Temperature,
		"humidity":    *cfg.Compensation.Humidity,
	}).Info("read in settings")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if os.IsNotExist(err) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	return cfg, nil
}

// openDataReady sets up the BCM pin wired to INTn for falling edge detection.
func openDataReady(pinNum int) (sensors.DataReady, func(), error) {
	if err := rpio.Open(); err != nil {
		return nil, nil, err
	}
	pin := rpio.Pin(pinNum)
	pin.Input()
	pin.PullUp()
	pin.Detect(rpio.FallEdge)
	return pin, func() {
		pin.Detect(rpio.NoEdge)
		rpio.Close()
	}, nil
}

func run(configPath string) (string, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return "", err
	}

	done := make(chan struct{})
	defer close(done)

	logs := initLogging(cfg.Log.Dir, cfg.Log.Debug, done)
	defer logs.close()

	d := &ens160d{
		cfg:     cfg,
		clock:   common.NewMonotonic(),
		metrics: newMetrics(),
		started: time.Now(),
	}
	defer d.clock.Stop()

	if cfg.Datalog.Path != "" {
		d.datalog, err = datalog.Open(cfg.Datalog.Path)
		if err != nil {
			return "", err
		}
		defer d.datalog.Close()
	}

	var ready sensors.DataReady
	if cfg.Interrupt.Pin != nil {
		pin, closePin, err := openDataReady(*cfg.Interrupt.Pin)
		if err != nil {
			log.WithError(err).Warn("couldn't open GPIO, polling without data ready pin")
		} else {
			ready = pin
			defer closePin()
		}
	}

	bus := embd.NewI2CBus(cfg.I2C.Bus)
	defer bus.Close()

	go d.updateStats(done)
	go func() {
		if d.connect(bus, ready, done) {
			d.mu.RLock()
			log.WithField("firmware", d.fw).Info("ENS160 running")
			d.mu.RUnlock()
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", d.handleStatusRequest)
	mux.Handle("/metrics", promhttp.HandlerFor(d.metrics.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.HTTP.Listen, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
		}
	}()
	defer srv.Close()

	defer d.shutdown()

	// Set up channel on which to send signal notifications.
	// We must use a buffered channel or risk missing the signal
	// if we're not ready to receive when the signal is sent.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	// interrupt by system signal
	for {
		killSignal := <-interrupt
		log.Println("Got signal:", killSignal)
		switch killSignal {
		case syscall.SIGUSR1:
			d.reload(configPath)
		case syscall.SIGINT:
			return "Daemon was interrupted by system signal", nil
		default:
			return "Daemon was killed", nil
		}
	}
}

// Service has embedded daemon
type Service struct {
	daemon.Daemon
}

// Manage by daemon commands or run the daemon
func (service *Service) Manage() (string, error) {
	configPath := flag.String("config", defaultConfigLocation, "Path to the YAML configuration")
	flag.Parse()

	usage := "Usage: " + name + " [-config file] install | remove | start | stop | status"
	// if received any kind of command, do it
	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "install":
			if !common.IsRunningAsRoot() {
				return usage, errors.New("install must be run as root")
			}
			return service.Install("-config", *configPath)
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	return run(*configPath)
}

func main() {
	srv, err := daemon.New(name, description, daemon.SystemDaemon)
	if err != nil {
		log.Error("Error: ", err)
		os.Exit(1)
	}
	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		log.Error(status, "\nError: ", err)
		os.Exit(1)
	}
	fmt.Println(status)
}
