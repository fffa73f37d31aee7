package sensors

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b3nn0/ens160/sensors/ens160"
	"github.com/b3nn0/ens160/sensors/retryi2c"
	"github.com/b3nn0/ens160/sensors/retryi2c/i2ctest"
)

// fakeENS160 behaves like a sensor that settles and answers commands at once.
func fakeENS160() *i2ctest.Device {
	dev := &i2ctest.Device{}
	dev.Set(byte(ens160.RegPartID), 0x60, 0x01)
	dev.Set(byte(ens160.RegGPRRead4), 7, 1, 0)
	dev.OnWrite = func(dev *i2ctest.Device, reg byte, data []byte) {
		switch ens160.Register(reg) {
		case ens160.RegOpMode:
			if ens160.OpMode(data[0]) == ens160.Reset {
				dev.Regs[reg] = byte(ens160.DeepSleep)
			}
		case ens160.RegCommand:
			if ens160.Command(data[0]) == ens160.CmdGetFWVer {
				dev.Regs[ens160.RegDeviceStatus] |= 0x01
			}
		}
	}
	dev.OnRead = func(dev *i2ctest.Device, reg byte) {
		if ens160.Register(reg) == ens160.RegGPRRead4 {
			dev.Regs[ens160.RegDeviceStatus] &^= 0x01
		}
	}
	return dev
}

// onlyAt answers transactions for a single address.
type onlyAt struct {
	*i2ctest.Device
	addr byte
}

var errNack = errors.New("nack")

func (o onlyAt) ReadFromReg(addr, reg byte, value []byte) error {
	if addr != o.addr {
		return errNack
	}
	return o.Device.ReadFromReg(addr, reg, value)
}

func (o onlyAt) ReadByteFromReg(addr, reg byte) (byte, error) {
	if addr != o.addr {
		return 0, errNack
	}
	return o.Device.ReadByteFromReg(addr, reg)
}

func TestNewENS160(t *testing.T) {
	dev := fakeENS160()
	e, err := NewENS160(dev, ENS160Config{Bus: retryi2c.DefaultConfig(), TemperatureC: 25, Humidity: 55})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "7.1.0", e.Firmware())
	assert.Equal(t, ens160.Address2, e.Address())
	assert.Equal(t, byte(ens160.Standard), dev.Regs[ens160.RegOpMode])
	assert.Equal(t, []byte{0x8A, 0x4A}, dev.WritesTo(byte(ens160.RegTempIn))[0].Data)
	assert.Equal(t, []byte{0x00, 0x6E}, dev.WritesTo(byte(ens160.RegRHIn))[0].Data)
	assert.Empty(t, dev.WritesTo(byte(ens160.RegConfig)))

	_, err = e.AQI()
	assert.Error(t, err)
	_, ok := e.LastReading()
	assert.False(t, ok)
}

func TestNewENS160FallsBackToSecondAddress(t *testing.T) {
	dev := fakeENS160()
	conn := onlyAt{Device: dev, addr: ens160.Address1}
	e, err := NewENS160(conn, ENS160Config{Bus: retryi2c.Config{}})
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, ens160.Address1, e.Address())
}

func TestNewENS160NotConnected(t *testing.T) {
	dev := &i2ctest.Device{}
	dev.Set(byte(ens160.RegPartID), 0x50, 0x00)
	_, err := NewENS160(dev, ENS160Config{Address: ens160.Address1})
	assert.True(t, errors.Is(err, ens160.ErrNotConnected))
	assert.Empty(t, dev.Writes)
}

func TestPoll(t *testing.T) {
	dev := fakeENS160()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var got []GasSample
	e, err := NewENS160(dev, ENS160Config{
		Now:       func() time.Time { return at },
		OnReading: func(s GasSample) { got = append(got, s) },
	})
	require.NoError(t, err)
	defer e.Close()

	// no new data yet
	require.NoError(t, e.Poll())
	assert.Empty(t, got)

	dev.Set(byte(ens160.RegDeviceStatus), 0x82)
	dev.Set(byte(ens160.RegDataAQI), 2)
	dev.Set(byte(ens160.RegDataTVOC), 0x64, 0x00)
	dev.Set(byte(ens160.RegDataECO2), 0x58, 0x02)
	require.NoError(t, e.Poll())

	require.Len(t, got, 1)
	assert.Equal(t, at, got[0].Time)

	aqi, err := e.AQI()
	require.NoError(t, err)
	assert.Equal(t, uint8(2), aqi)
	tvoc, err := e.TVOC()
	require.NoError(t, err)
	assert.Equal(t, uint16(100), tvoc)
	eco2, err := e.ECO2()
	require.NoError(t, err)
	assert.Equal(t, uint16(600), eco2)
	s, err := e.Status()
	require.NoError(t, err)
	assert.True(t, s.PowerOn)
}

func TestPollReportsBusErrors(t *testing.T) {
	dev := fakeENS160()
	var errs []error
	e, err := NewENS160(dev, ENS160Config{
		Bus:     retryi2c.Config{Retries: 1},
		OnError: func(err error) { errs = append(errs, err) },
	})
	require.NoError(t, err)
	defer e.Close()

	dev.Fail = 2
	err = e.Poll()
	require.Error(t, err)
	assert.True(t, errors.Is(err, retryi2c.ErrBusTransaction))
	assert.Len(t, errs, 1)
}

type fakePin struct {
	mu    sync.Mutex
	edges int
}

func (p *fakePin) EdgeDetected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.edges > 0 {
		p.edges--
		return true
	}
	return false
}

func TestPollGatedByDataReady(t *testing.T) {
	dev := fakeENS160()
	pin := &fakePin{}
	e, err := NewENS160(dev, ENS160Config{DataReady: pin})
	require.NoError(t, err)
	defer e.Close()

	w := dev.WritesTo(byte(ens160.RegConfig))
	require.Len(t, w, 1)
	assert.Equal(t, []byte{0x23}, w[0].Data)

	dev.Set(byte(ens160.RegDeviceStatus), 0x82)
	statusReads := len(dev.ReadsFrom(byte(ens160.RegDeviceStatus)))
	require.NoError(t, e.Poll())
	assert.Len(t, dev.ReadsFrom(byte(ens160.RegDeviceStatus)), statusReads)

	pin.edges = 1
	require.NoError(t, e.Poll())
	_, ok := e.LastReading()
	assert.True(t, ok)
}

func TestBackgroundLoop(t *testing.T) {
	dev := fakeENS160()
	readings := make(chan GasSample, 16)
	e, err := NewENS160(dev, ENS160Config{
		Interval: 5 * time.Millisecond,
		OnReading: func(s GasSample) {
			select {
			case readings <- s:
			default:
			}
		},
	})
	require.NoError(t, err)
	dev.Set(byte(ens160.RegDeviceStatus), 0x82)
	dev.Set(byte(ens160.RegDataECO2), 0x90, 0x01)

	select {
	case s := <-readings:
		assert.Equal(t, uint16(400), s.ECO2)
	case <-time.After(2 * time.Second):
		t.Fatal("no reading from background loop")
	}

	e.Close()
	assert.Equal(t, byte(ens160.DeepSleep), dev.Regs[ens160.RegOpMode])
	_, err = e.ECO2()
	assert.Error(t, err)
	e.Close()
}

func TestSetCompensation(t *testing.T) {
	dev := fakeENS160()
	e, err := NewENS160(dev, ENS160Config{})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.SetCompensation(26.85, 40))
	w := dev.WritesTo(byte(ens160.RegTempIn))
	assert.Equal(t, []byte{0x00, 0x4B}, w[len(w)-1].Data)
	w = dev.WritesTo(byte(ens160.RegRHIn))
	assert.Equal(t, []byte{0x00, 0x50}, w[len(w)-1].Data)
}

var _ GasReader = (*ENS160)(nil)
