package motor

import (
	"errors"

	"coopdoor/hal"
)

// Driver energizes the motor in a direction; None de-energizes it.
type Driver interface {
	Drive(dir Direction)
}

// Bridge drives a two-input H-bridge.
type Bridge struct {
	in1 hal.OutputPin
	in2 hal.OutputPin
}

// NewBridge returns a Bridge with both inputs low (motor free).
func NewBridge(in1, in2 hal.OutputPin) *Bridge {
	b := &Bridge{in1: in1, in2: in2}
	b.Drive(None)
	return b
}

// Drive implements Driver.Drive.
func (b *Bridge) Drive(dir Direction) {
	switch dir {
	case Raise:
		b.in1.Low()
		b.in2.High()
	case Lower:
		b.in1.High()
		b.in2.Low()
	default:
		b.in1.Low()
		b.in2.Low()
	}
}

// Release de-energizes the motor and frees both pins.
func (b *Bridge) Release() error {
	b.Drive(None)
	return errors.Join(b.in1.Release(), b.in2.Release())
}
