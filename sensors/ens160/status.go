package ens160

import "fmt"

// Validity is the 2 bit validity flag of the status register.
type Validity byte

const (
	NormalOperation Validity = 0
	WarmUp          Validity = 1 // first 3 minutes after power-on
	InitialStartup  Validity = 2 // first full hour of operation after initial power-on
	InvalidOutput   Validity = 3 // signals out of range, multiple sensors affected
)

func (v Validity) String() string {
	switch v {
	case NormalOperation:
		return "normal"
	case WarmUp:
		return "warm-up"
	case InitialStartup:
		return "initial-startup"
	case InvalidOutput:
		return "invalid"
	}
	return fmt.Sprintf("Validity(%d)", byte(v))
}

const (
	statusNewGPR   = 0x01
	statusNewData  = 0x02
	statusValidity = 0x0C
	statusError    = 0x40
	statusPowerOn  = 0x80
)

// Status is a decoded DEVICE_STATUS byte.
type Status struct {
	Validity Validity
	PowerOn  bool // operating mode is running
	Error    bool // invalid operating mode was selected
	NewData  bool // new data in the data registers
	NewGPR   bool // new data in the general purpose read registers
}

func DecodeStatus(b byte) Status {
	return Status{
		Validity: Validity((b & statusValidity) >> 2),
		PowerOn:  b&statusPowerOn != 0,
		Error:    b&statusError != 0,
		NewData:  b&statusNewData != 0,
		NewGPR:   b&statusNewGPR != 0,
	}
}

// Byte encodes the status back into its register representation.
func (s Status) Byte() byte {
	b := byte(s.Validity&0x03) << 2
	if s.NewGPR {
		b |= statusNewGPR
	}
	if s.NewData {
		b |= statusNewData
	}
	if s.Error {
		b |= statusError
	}
	if s.PowerOn {
		b |= statusPowerOn
	}
	return b
}

func (s Status) NormalOperation() bool { return s.Validity == NormalOperation }
func (s Status) WarmUp() bool          { return s.Validity == WarmUp }
func (s Status) InitialStartup() bool  { return s.Validity == InitialStartup }
func (s Status) InvalidData() bool     { return s.Validity == InvalidOutput }

func (s Status) String() string {
	return fmt.Sprintf("validity=%s power_on=%t error=%t new_data=%t new_gpr=%t",
		s.Validity, s.PowerOn, s.Error, s.NewData, s.NewGPR)
}
