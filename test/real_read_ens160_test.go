package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b3nn0/ens160/sensors/ens160"
	"github.com/b3nn0/ens160/sensors/retryi2c"
	"github.com/b3nn0/ens160/sensors/retryi2c/i2ctest"
)

func openTestDevice(dev *i2ctest.Device) *ens160.ENS160 {
	bus := retryi2c.New(dev, ens160.Address2, retryi2c.DefaultConfig())
	bus.Sleep = func(time.Duration) {}
	return ens160.New(bus)
}

func TestStartMeasuring(t *testing.T) {
	dev := &i2ctest.Device{}
	require.NoError(t, startMeasuring(openTestDevice(dev), 25, 55))

	assert.Equal(t, []byte{0x00, 0x6E}, dev.WritesTo(byte(ens160.RegRHIn))[0].Data)
	assert.Equal(t, []byte{0x8A, 0x4A}, dev.WritesTo(byte(ens160.RegTempIn))[0].Data)
	assert.Equal(t, []byte{byte(ens160.Standard)}, dev.WritesTo(byte(ens160.RegOpMode))[0].Data)
}

func TestStartMeasuringStopsOnBusError(t *testing.T) {
	dev := &i2ctest.Device{Fail: 6}
	err := startMeasuring(openTestDevice(dev), 25, 55)
	require.Error(t, err)
	assert.True(t, errors.Is(err, retryi2c.ErrBusTransaction))
	assert.Empty(t, dev.WritesTo(byte(ens160.RegOpMode)))
}
