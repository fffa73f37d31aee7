// Package ens160 provides a driver for ScioSense's ENS160 digital metal-oxide multi-gas sensor.
// The datasheet can be found here: https://www.sciosense.com/wp-content/uploads/2023/12/ENS160-Datasheet.pdf
package ens160

import "fmt"

const (
	Address1 byte = 0x52 // ADDR pin low
	Address2 byte = 0x53 // ADDR pin high, default on most breakout boards
)

const PartID uint16 = 0x0160 // correct response if reading from the part id register

type Register byte

const (
	RegPartID       Register = 0x00 // 2 bytes, device identity
	RegOpMode       Register = 0x10 // operating mode
	RegConfig       Register = 0x11 // interrupt pin configuration
	RegCommand      Register = 0x12 // additional system commands, only in idle mode
	RegTempIn       Register = 0x13 // 2 bytes, host ambient temperature information
	RegRHIn         Register = 0x15 // 2 bytes, host relative humidity information
	RegDeviceStatus Register = 0x20 // operating mode
	RegDataAQI      Register = 0x21 // air quality index
	RegDataTVOC     Register = 0x22 // 2 bytes, TVOC concentration (ppb)
	RegDataECO2     Register = 0x24 // 2 bytes, equivalent CO2 concentration (ppm)
	RegDataT        Register = 0x30 // 2 bytes, temperature used in calculations
	RegDataRH       Register = 0x32 // 2 bytes, relative humidity used in calculations
	RegDataMISR     Register = 0x38 // data integrity field (optional)
	RegGPRWrite     Register = 0x40 // 8 bytes of general purpose write registers
	RegGPRRead0     Register = 0x48 // general purpose read registers, 1 byte each
	RegGPRRead1     Register = 0x49
	RegGPRRead2     Register = 0x4A
	RegGPRRead3     Register = 0x4B
	RegGPRRead4     Register = 0x4C
	RegGPRRead5     Register = 0x4D
	RegGPRRead6     Register = 0x4E
	RegGPRRead7     Register = 0x4F
)

const gprWriteLen = 8

// OpMode is the device's coarse lifecycle state.
type OpMode byte

const (
	DeepSleep OpMode = 0x00 // only responds to an operating mode write
	Idle      OpMode = 0x01 // accepting commands
	Standard  OpMode = 0x02 // gas sensing
	Reset     OpMode = 0xF0 // reset the unit, it settles into DeepSleep
)

func (m OpMode) String() string {
	switch m {
	case DeepSleep:
		return "DEEP_SLEEP"
	case Idle:
		return "IDLE"
	case Standard:
		return "STANDARD"
	case Reset:
		return "RESET"
	}
	return fmt.Sprintf("OpMode(0x%02X)", byte(m))
}

// Command values are only accepted while the device is in Idle.
type Command byte

const (
	CmdNop          Command = 0x00
	CmdGetFWVer     Command = 0x0E // firmware version is published in GPR_READ4..6
	CmdClearGPRRead Command = 0xCC
)

// Interrupt pin configuration bits for RegConfig.
type InterruptConfig byte

const (
	IntEnable     InterruptConfig = 0x01 // INTn pin enabled
	IntOnData     InterruptConfig = 0x02 // assert when new data is in the data registers
	IntOnGPR      InterruptConfig = 0x08 // assert when new data is in the general purpose read registers
	IntPushPull   InterruptConfig = 0x20 // push/pull driver, open drain otherwise
	IntActiveHigh InterruptConfig = 0x40 // active high, active low otherwise
)
