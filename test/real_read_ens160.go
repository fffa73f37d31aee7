package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"

	"github.com/b3nn0/ens160/sensors/ens160"
)

func main() {
	busNum := flag.Int("bus", 1, "I2C bus number")
	addr := flag.Int("addr", int(ens160.Address2), "I2C address, 0x52 or 0x53")
	tempC := flag.Float64("temp", 25, "compensation temperature, degrees C")
	rh := flag.Float64("rh", 50, "compensation relative humidity, %")
	flag.Parse()

	i2cbus := embd.NewI2CBus(byte(*busNum))
	defer i2cbus.Close()
	dev := ens160.Open(i2cbus, byte(*addr))

	if err := dev.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}
	partID, err := dev.PartID()
	if err != nil || partID != ens160.PartID {
		fmt.Fprintf(os.Stderr, "part not found, expected 0x%04X got 0x%04X (%v)\n", ens160.PartID, partID, err)
		os.Exit(1)
	}
	fw, err := dev.FirmwareVersion()
	if err != nil {
		fmt.Fprintln(os.Stderr, "firmware:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "part id 0x%04X, firmware %s\n", partID, fw)

	if err := startMeasuring(dev, *tempC, *rh); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}

	fmt.Println("t,validity,aqi,tvoc,eco2")

	start := time.Now()
	clock := time.NewTicker(100 * time.Millisecond)
	for range clock.C {
		status, err := dev.DeviceStatus()
		if err != nil || !status.NewData {
			continue
		}
		r, err := dev.ReadAll()
		if err != nil {
			continue
		}
		fmt.Printf("%.1f,%s,%d,%d,%d\n", time.Since(start).Seconds(), r.Status.Validity, r.AQI, r.TVOC, r.ECO2)
	}
}

// startMeasuring applies compensation and switches to Standard mode.
func startMeasuring(dev *ens160.ENS160, tempC, rh float64) error {
	if err := dev.SetRHCompensation(rh); err != nil {
		return fmt.Errorf("humidity compensation: %w", err)
	}
	if err := dev.SetTempCompensationCelsius(tempC); err != nil {
		return fmt.Errorf("temperature compensation: %w", err)
	}
	if err := dev.SetOperatingMode(ens160.Standard); err != nil {
		return fmt.Errorf("operating mode: %w", err)
	}
	return nil
}
