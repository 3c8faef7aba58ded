package hal

import (
	"fmt"

	"github.com/hjkoskel/govattu"
)

// VattuPin implements OutputPin through BCM283x register access.
type VattuPin struct {
	hw   govattu.Vattu
	pin  uint8
	high bool
}

// NewVattuPin configures pin as an output and drives it low.
func NewVattuPin(pin uint8) (*VattuPin, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	hw.PinMode(pin, govattu.ALToutput)

	p := &VattuPin{
		hw:  hw,
		pin: pin,
	}
	p.Low()
	return p, nil
}

// High implements OutputPin.High.
func (p *VattuPin) High() {
	p.hw.PinSet(p.pin)
	p.high = true
}

// Low implements OutputPin.Low.
func (p *VattuPin) Low() {
	p.hw.PinClear(p.pin)
	p.high = false
}

// IsHigh implements OutputPin.IsHigh.
func (p *VattuPin) IsHigh() bool {
	return p.high
}

// Release implements OutputPin.Release. The pin is left as it is so a
// power-hold output survives process exit until the hardware cuts power.
func (p *VattuPin) Release() error {
	return p.hw.Close()
}
