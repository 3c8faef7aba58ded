// Package hal holds the hardware capabilities the door controller consumes:
// an I2C register bus, millivolt ADC channels, digital output pins, the
// system wall clock and the low-power sleep entry.
package hal

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotSupported is returned on platforms without the required kernel interface.
	ErrNotSupported = errors.New("not supported on this platform")
)

// Bus is register-level access to devices on an I2C bus.
type Bus interface {
	// ReadRegisters reads n consecutive registers starting at reg.
	ReadRegisters(addr, reg uint8, n int) ([]byte, error)

	// WriteRegisters writes data to consecutive registers starting at reg.
	WriteRegisters(addr, reg uint8, data []byte) error

	// Detect reports whether a device acknowledges addr.
	Detect(addr uint8) bool
}

// ADC reads calibrated analog inputs.
type ADC interface {
	ReadMillivolts(channel int) (uint32, error)
}

// OutputPin is a single digital output.
type OutputPin interface {
	High()
	Low()
	IsHigh() bool
	Release() error
}

// WallClock is the system time of day.
type WallClock interface {
	Now() time.Time
	Set(t time.Time) error
}

// Sleeper enters the platform's lowest power state that still wakes on a
// button interrupt or reset.
type Sleeper interface {
	Sleep() error
}

// Config selects and locates the hardware backends.
type Config struct {
	GPIO       string `yaml:"gpio" env:"COOPDOOR_GPIO" env-default:"govattu"` // "govattu", "gpiomem", "cdev", "none"
	Chip       string `yaml:"chip" env-default:"gpiochip0"`
	I2CBus     string `yaml:"i2c_bus" env:"COOPDOOR_I2C_BUS" env-default:"/dev/i2c-1"`
	IIODevice  string `yaml:"iio_device" env-default:"/sys/bus/iio/devices/iio:device0"`
	SleepState string `yaml:"sleep_state" env-default:"mem"` // written to /sys/power/state, "" disables
}

// OutputPin creates an output pin on the configured GPIO backend, driven
// low. A nil pin number yields a Noop pin.
func (c Config) OutputPin(pin *int) (OutputPin, error) {
	if pin == nil {
		return &Noop{}, nil
	}

	switch c.GPIO {
	case "govattu", "":
		return NewVattuPin(uint8(*pin))
	case "gpiomem":
		return NewMemPin(*pin)
	case "cdev":
		return NewCdevPin(c.Chip, *pin)
	case "none":
		return &Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", c.GPIO)
	}
}

// Noop is an OutputPin that only remembers its level.
// Used when a pin is not configured.
type Noop struct {
	high bool
}

// High implements OutputPin.High.
func (n *Noop) High() { n.high = true }

// Low implements OutputPin.Low.
func (n *Noop) Low() { n.high = false }

// IsHigh implements OutputPin.IsHigh.
func (n *Noop) IsHigh() bool { return n.high }

// Release implements OutputPin.Release.
func (n *Noop) Release() error { return nil }
