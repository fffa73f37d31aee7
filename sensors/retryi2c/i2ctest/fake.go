// Package i2ctest provides an in-memory register device for driver tests.
package i2ctest

import (
	"errors"
	"sync"
)

var ErrInjected = errors.New("i2ctest: injected bus failure")

// Write records one write transaction.
type Write struct {
	Addr byte
	Reg  byte
	Data []byte
}

// Read records one read transaction.
type Read struct {
	Addr byte
	Reg  byte
	Len  int
}

// Device is a fake retryi2c.Conn backed by a 256 byte register file.
// Multi-byte reads and writes span contiguous registers.
type Device struct {
	mu sync.Mutex

	Regs [256]byte

	// Fail makes the next Fail transactions return ErrInjected.
	Fail int

	// OnRead, when set, is called before a read is served so tests can
	// change register contents between polls. Callbacks run with the
	// device locked and must touch Regs directly.
	OnRead func(d *Device, reg byte)
	// OnWrite is called after a write was applied to Regs.
	OnWrite func(d *Device, reg byte, data []byte)

	Writes []Write
	Reads  []Read
}

func (d *Device) fail() bool {
	if d.Fail > 0 {
		d.Fail--
		return true
	}
	return false
}

func (d *Device) ReadFromReg(addr, reg byte, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail() {
		return ErrInjected
	}
	if d.OnRead != nil {
		d.OnRead(d, reg)
	}
	d.Reads = append(d.Reads, Read{Addr: addr, Reg: reg, Len: len(value)})
	for i := range value {
		value[i] = d.Regs[int(reg)+i]
	}
	return nil
}

func (d *Device) ReadByteFromReg(addr, reg byte) (byte, error) {
	v := make([]byte, 1)
	err := d.ReadFromReg(addr, reg, v)
	return v[0], err
}

func (d *Device) WriteToReg(addr, reg byte, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail() {
		return ErrInjected
	}
	data := append([]byte(nil), value...)
	d.Writes = append(d.Writes, Write{Addr: addr, Reg: reg, Data: data})
	copy(d.Regs[reg:], data)
	if d.OnWrite != nil {
		d.OnWrite(d, reg, data)
	}
	return nil
}

func (d *Device) WriteByteToReg(addr, reg, value byte) error {
	return d.WriteToReg(addr, reg, []byte{value})
}

// WritesTo returns the recorded writes to reg.
func (d *Device) WritesTo(reg byte) []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Write
	for _, w := range d.Writes {
		if w.Reg == reg {
			out = append(out, w)
		}
	}
	return out
}

// ReadsFrom returns the recorded reads from reg.
func (d *Device) ReadsFrom(reg byte) []Read {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Read
	for _, r := range d.Reads {
		if r.Reg == reg {
			out = append(out, r)
		}
	}
	return out
}

// Set stores data starting at reg without recording a transaction.
func (d *Device) Set(reg byte, data ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.Regs[reg:], data)
}
