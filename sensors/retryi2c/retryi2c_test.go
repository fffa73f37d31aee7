package retryi2c

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b3nn0/ens160/sensors/retryi2c/i2ctest"
)

func newTestBus(dev *i2ctest.Device, retries int) (*Bus, *[]time.Duration) {
	var slept []time.Duration
	b := New(dev, 0x53, Config{Retries: retries, RetrySleep: 10 * time.Millisecond})
	b.Sleep = func(d time.Duration) { slept = append(slept, d) }
	return b, &slept
}

func TestRetryRecoversWithinBudget(t *testing.T) {
	for retries := 0; retries <= 6; retries++ {
		dev := &i2ctest.Device{Fail: retries}
		dev.Set(0x20, 0x83)
		b, slept := newTestBus(dev, retries)

		v, err := b.ReadByteFromReg(0x20)
		require.NoError(t, err, "retries=%d", retries)
		assert.Equal(t, byte(0x83), v)
		assert.Len(t, *slept, retries)
		for _, d := range *slept {
			assert.Equal(t, 10*time.Millisecond, d)
		}
	}
}

func TestRetryExhausted(t *testing.T) {
	for retries := 0; retries <= 6; retries++ {
		dev := &i2ctest.Device{Fail: retries + 1}
		b, slept := newTestBus(dev, retries)

		err := b.WriteByteToReg(0x10, 0x01)
		require.Error(t, err)
		assert.Len(t, *slept, retries)
		assert.True(t, errors.Is(err, ErrBusTransaction))
		assert.True(t, errors.Is(err, i2ctest.ErrInjected))

		var be *BusError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, retries+1, be.Attempts)
		assert.Equal(t, byte(0x10), be.Register)
		assert.Equal(t, byte(0x53), be.Address)
		assert.Empty(t, dev.Writes)
	}
}

func TestNegativeRetriesMeansSingleAttempt(t *testing.T) {
	dev := &i2ctest.Device{Fail: 1}
	b, slept := newTestBus(dev, -3)
	_, err := b.Read(0x22, 2)
	require.Error(t, err)
	assert.Empty(t, *slept)
}

func TestReadWriteForms(t *testing.T) {
	dev := &i2ctest.Device{}
	dev.Set(0x00, 0x60, 0x01)
	b, _ := newTestBus(dev, DefaultRetries)

	data, err := b.Read(0x00, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x01}, data)

	data, err = b.Read(0x01, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, data)

	require.NoError(t, b.Write(0x13, []byte{0xA6, 0x4A}))
	require.NoError(t, b.Write(0x10, []byte{0x02}))
	require.Len(t, dev.Writes, 2)
	assert.Equal(t, i2ctest.Write{Addr: 0x53, Reg: 0x13, Data: []byte{0xA6, 0x4A}}, dev.Writes[0])
	assert.Equal(t, i2ctest.Write{Addr: 0x53, Reg: 0x10, Data: []byte{0x02}}, dev.Writes[1])
	assert.Equal(t, byte(0x53), b.Address())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Retries)
	assert.Equal(t, 10*time.Millisecond, cfg.RetrySleep)
}

func TestBusIsNotAByteStream(t *testing.T) {
	var b interface{} = New(&i2ctest.Device{}, 0x53, DefaultConfig())
	_, isReader := b.(io.ByteReader)
	_, isWriter := b.(io.ByteWriter)
	assert.False(t, isReader)
	assert.False(t, isWriter)
}
