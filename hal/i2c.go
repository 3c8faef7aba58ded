package hal

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// I2C implements Bus on a periph.io I2C bus.
type I2C struct {
	bus    i2c.Bus
	name   string
	closer func() error
}

// OpenI2C opens a bus by its i2c-dev node such as /dev/i2c-1, or by any
// name periph's registry accepts.
func OpenI2C(path string) (*I2C, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	name := strings.TrimPrefix(path, "/dev/i2c-")
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c %s: %w", path, err)
	}
	b := newI2C(bus, path)
	b.closer = bus.Close
	return b, nil
}

func newI2C(bus i2c.Bus, name string) *I2C {
	return &I2C{bus: bus, name: name, closer: func() error { return nil }}
}

func (b *I2C) dev(addr uint8) *i2c.Dev {
	return &i2c.Dev{Bus: b.bus, Addr: uint16(addr)}
}

// ReadRegisters implements Bus.ReadRegisters with a write of the register
// address followed by a repeated-start read.
func (b *I2C) ReadRegisters(addr, reg uint8, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := b.dev(addr).Tx([]byte{reg}, buf); err != nil {
		return nil, fmt.Errorf("read 0x%02x/0x%02x on %s: %w", addr, reg, b.name, err)
	}
	return buf, nil
}

// WriteRegisters implements Bus.WriteRegisters.
func (b *I2C) WriteRegisters(addr, reg uint8, data []byte) error {
	msg := make([]byte, 0, len(data)+1)
	msg = append(msg, reg)
	msg = append(msg, data...)
	if err := b.dev(addr).Tx(msg, nil); err != nil {
		return fmt.Errorf("write 0x%02x/0x%02x on %s: %w", addr, reg, b.name, err)
	}
	return nil
}

// Detect implements Bus.Detect with a one byte read.
func (b *I2C) Detect(addr uint8) bool {
	var one [1]byte
	return b.dev(addr).Tx(nil, one[:]) == nil
}

// Close releases the bus.
func (b *I2C) Close() error {
	return b.closer()
}
