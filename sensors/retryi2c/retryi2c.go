// Package retryi2c wraps a register-oriented I2C connection with a bounded,
// fixed-delay retry on failed transactions.
package retryi2c

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultRetries    = 5
	DefaultRetrySleep = 10 * time.Millisecond
)

// ErrBusTransaction matches every error returned once the retry budget is spent.
var ErrBusTransaction = errors.New("retryi2c: bus transaction failed")

// Conn is the register access subset of embd.I2CBus.
type Conn interface {
	ReadFromReg(addr, reg byte, value []byte) error
	ReadByteFromReg(addr, reg byte) (value byte, err error)
	WriteToReg(addr, reg byte, value []byte) error
	WriteByteToReg(addr, reg, value byte) error
}

type Config struct {
	Retries    int
	RetrySleep time.Duration
}

func DefaultConfig() Config {
	return Config{Retries: DefaultRetries, RetrySleep: DefaultRetrySleep}
}

// BusError is returned when a transaction still fails after all retries.
type BusError struct {
	Op       string
	Address  byte
	Register byte
	Attempts int
	Err      error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("retryi2c: %s addr=0x%02X reg=0x%02X failed after %d attempts: %v",
		e.Op, e.Address, e.Register, e.Attempts, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

func (e *BusError) Is(target error) bool { return target == ErrBusTransaction }

// Bus addresses a single device on a Conn. Every call is one transport
// transaction, repeated verbatim on failure.
type Bus struct {
	conn       Conn
	address    byte
	retries    int
	retrySleep time.Duration

	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(time.Duration)

	log *logrus.Entry
}

func New(conn Conn, address byte, cfg Config) *Bus {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Bus{
		conn:       conn,
		address:    address,
		retries:    cfg.Retries,
		retrySleep: cfg.RetrySleep,
		Sleep:      time.Sleep,
		log:        logrus.WithField("addr", fmt.Sprintf("0x%02X", address)),
	}
}

func (b *Bus) Address() byte { return b.address }

// Read reads n bytes starting at reg.
func (b *Bus) Read(reg byte, n int) ([]byte, error) {
	if n == 1 {
		v, err := b.ReadByteFromReg(reg)
		if err != nil {
			return nil, err
		}
		return []byte{v}, nil
	}
	data := make([]byte, n)
	err := b.do("read", reg, func() error {
		return b.conn.ReadFromReg(b.address, reg, data)
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *Bus) ReadByteFromReg(reg byte) (byte, error) {
	var v byte
	err := b.do("read", reg, func() (err error) {
		v, err = b.conn.ReadByteFromReg(b.address, reg)
		return
	})
	return v, err
}

// Write writes data starting at reg. A single byte goes out as a byte write.
func (b *Bus) Write(reg byte, data []byte) error {
	if len(data) == 1 {
		return b.WriteByteToReg(reg, data[0])
	}
	return b.do("write", reg, func() error {
		return b.conn.WriteToReg(b.address, reg, data)
	})
}

func (b *Bus) WriteByteToReg(reg, value byte) error {
	return b.do("write", reg, func() error {
		return b.conn.WriteByteToReg(b.address, reg, value)
	})
}

func (b *Bus) do(op string, reg byte, fn func() error) error {
	remaining := b.retries
	attempts := 0
	for {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		remaining--
		if remaining < 0 {
			return &BusError{Op: op, Address: b.address, Register: reg, Attempts: attempts, Err: err}
		}
		b.log.WithFields(logrus.Fields{
			"op":      op,
			"reg":     fmt.Sprintf("0x%02X", reg),
			"attempt": attempts,
		}).WithError(err).Debug("i2c transaction failed, retrying")
		b.Sleep(b.retrySleep)
	}
}
