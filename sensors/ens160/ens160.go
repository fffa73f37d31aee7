package ens160

/*
Register level driver. Every register access goes through a retryi2c.Bus, the
driver itself keeps no copy of device state: operating mode and status are read
back from the device whenever they matter.
*/
import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/b3nn0/ens160/sensors/retryi2c"
)

var (
	ErrTimeout      = errors.New("ens160: timed out waiting for device")
	ErrNotConnected = errors.New("ens160: not connected")
	errGPRLength    = errors.New("ens160: general purpose write takes at most 8 bytes")
)

const (
	resetPolls        = 25
	resetPollInterval = 10 * time.Millisecond
	fwPollInterval    = time.Millisecond
)

var log = logrus.WithField("sensor", "ens160")

// Reading is one snapshot of the measurement registers.
type Reading struct {
	Status Status
	AQI    uint8  // 1 (excellent) to 5 (unhealthy)
	TVOC   uint16 // ppb
	ECO2   uint16 // ppm
}

// ENS160 drives one sensor through its transaction layer.
type ENS160 struct {
	bus *retryi2c.Bus

	// Sleep waits between device polls. Tests replace it to avoid real delays.
	Sleep func(time.Duration)
}

func New(bus *retryi2c.Bus) *ENS160 {
	return &ENS160{bus: bus, Sleep: time.Sleep}
}

// Open binds a driver to address on conn using the default retry policy.
func Open(conn retryi2c.Conn, address byte) *ENS160 {
	return New(retryi2c.New(conn, address, retryi2c.DefaultConfig()))
}

func (d *ENS160) Address() byte { return d.bus.Address() }

func (d *ENS160) read(reg Register, n int) ([]byte, error) {
	return d.bus.Read(byte(reg), n)
}

func (d *ENS160) readUint16(reg Register) (uint16, error) {
	b, err := d.read(reg, 2)
	if err != nil {
		return 0, err
	}
	return uint16(b[1])<<8 | uint16(b[0]), nil
}

func (d *ENS160) writeUint16(reg Register, v uint16) error {
	return d.bus.Write(byte(reg), []byte{byte(v & 0xFF), byte(v >> 8)})
}

// PartID reads the device identity, PartID for a genuine ENS160. A mismatch
// is not treated as an error here.
func (d *ENS160) PartID() (uint16, error) {
	return d.readUint16(RegPartID)
}

// Connected returns true if the bus works and the part id matches.
func (d *ENS160) Connected() bool {
	id, err := d.PartID()
	return err == nil && id == PartID
}

// SetOperatingMode passes mode through unvalidated.
func (d *ENS160) SetOperatingMode(mode OpMode) error {
	return d.bus.WriteByteToReg(byte(RegOpMode), byte(mode))
}

func (d *ENS160) OperatingMode() (OpMode, error) {
	v, err := d.bus.ReadByteFromReg(byte(RegOpMode))
	return OpMode(v), err
}

func (d *ENS160) DeviceStatus() (Status, error) {
	v, err := d.bus.ReadByteFromReg(byte(RegDeviceStatus))
	if err != nil {
		return Status{}, err
	}
	return DecodeStatus(v), nil
}

// ClearGPReadFlag clears the new general purpose data flag.
func (d *ENS160) ClearGPReadFlag() error {
	// CmdClearGPRRead written to RegCommand does not clear the flag on the
	// parts tested. Reading the general purpose registers does.
	_, err := d.read(RegGPRRead4, 3)
	return err
}

// FirmwareVersion asks the device for its firmware version and waits for it
// to be published. The device must be in Idle. The wait has no bound: a device
// that never raises the new GPR flag blocks the caller forever. Use
// FirmwareVersionContext to put a limit on it.
func (d *ENS160) FirmwareVersion() (string, error) {
	return d.FirmwareVersionContext(context.Background())
}

// FirmwareVersionContext is FirmwareVersion with the status poll bounded by
// ctx. It returns ErrTimeout once ctx is done.
func (d *ENS160) FirmwareVersionContext(ctx context.Context) (string, error) {
	if err := d.bus.WriteByteToReg(byte(RegCommand), byte(CmdGetFWVer)); err != nil {
		return "", err
	}
	for {
		s, err := d.DeviceStatus()
		if err != nil {
			return "", err
		}
		if s.NewGPR {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: firmware version: %w", ErrTimeout, err)
		}
		d.Sleep(fwPollInterval)
	}
	b, err := d.read(RegGPRRead4, 3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d", b[0], b[1], b[2]), nil
}

// clampUint16 rounds half to even and saturates at the register limits.
func clampUint16(v float64) uint16 {
	v = math.RoundToEven(v)
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

// SetTempCompensationKelvin sets the ambient temperature used by the gas
// calculations. Without it the device reports zeros. The register holds
// Kelvin*64 rounded half to even; values outside 0..1023.98 K are clamped
// to the register range rather than wrapped.
func (d *ENS160) SetTempCompensationKelvin(kelvin float64) error {
	return d.writeUint16(RegTempIn, clampUint16(kelvin*64))
}

func (d *ENS160) SetTempCompensationCelsius(celsius float64) error {
	return d.SetTempCompensationKelvin(celsius + 273.15)
}

func (d *ENS160) SetTempCompensationFahrenheit(fahrenheit float64) error {
	return d.SetTempCompensationCelsius((fahrenheit - 32.0) * 5.0 / 9.0)
}

// SetRHCompensation sets the relative humidity in percent used by the gas
// calculations. Without it the device reports zeros.
func (d *ENS160) SetRHCompensation(percent float64) error {
	return d.writeUint16(RegRHIn, clampUint16(percent*512))
}

// CompensationTemperature returns the temperature in degrees C the device is
// currently compensating for.
func (d *ENS160) CompensationTemperature() (float64, error) {
	v, err := d.readUint16(RegDataT)
	if err != nil {
		return 0, err
	}
	return float64(v)/64 - 273.15, nil
}

// CompensationHumidity returns the relative humidity in percent the device is
// currently compensating for.
func (d *ENS160) CompensationHumidity() (float64, error) {
	v, err := d.readUint16(RegDataRH)
	if err != nil {
		return 0, err
	}
	return float64(v) / 512, nil
}

func (d *ENS160) AQI() (uint8, error) {
	v, err := d.bus.ReadByteFromReg(byte(RegDataAQI))
	return v & 0x07, err
}

func (d *ENS160) TVOC() (uint16, error) {
	return d.readUint16(RegDataTVOC)
}

func (d *ENS160) ECO2() (uint16, error) {
	return d.readUint16(RegDataECO2)
}

// MISR returns the data integrity checksum of the last data read.
func (d *ENS160) MISR() (uint8, error) {
	return d.bus.ReadByteFromReg(byte(RegDataMISR))
}

func (d *ENS160) SetInterruptConfig(cfg InterruptConfig) error {
	return d.bus.WriteByteToReg(byte(RegConfig), byte(cfg))
}

func (d *ENS160) WriteGPR(data []byte) error {
	if len(data) == 0 || len(data) > gprWriteLen {
		return errGPRLength
	}
	return d.bus.Write(byte(RegGPRWrite), data)
}

// ReadAll reads the status followed by all gas measurements.
func (d *ENS160) ReadAll() (r Reading, err error) {
	if r.Status, err = d.DeviceStatus(); err != nil {
		return
	}
	if r.AQI, err = d.AQI(); err != nil {
		return
	}
	if r.TVOC, err = d.TVOC(); err != nil {
		return
	}
	r.ECO2, err = d.ECO2()
	return
}

// Reset puts the device through a reset and waits for it to settle in
// DeepSleep. It reports false if the device did not settle in time; only bus
// failures are returned as errors, and always with false.
func (d *ENS160) Reset() (bool, error) {
	if err := d.SetOperatingMode(Reset); err != nil {
		return false, err
	}
	for i := 0; i < resetPolls; i++ {
		if i > 0 {
			d.Sleep(resetPollInterval)
		}
		m, err := d.OperatingMode()
		if err != nil {
			return false, err
		}
		if m == DeepSleep {
			if err := d.ClearGPReadFlag(); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	log.WithField("polls", resetPolls).Warn("device did not return to deep sleep after reset")
	return false, nil
}

// Init resets the device and leaves it in Idle, ready for commands.
func (d *ENS160) Init() error {
	if _, err := d.Reset(); err != nil {
		return err
	}
	return d.SetOperatingMode(Idle)
}
