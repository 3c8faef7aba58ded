package hal

import (
	"fmt"
	"sync"

	"github.com/warthog618/gpio"
)

var (
	memOnce sync.Once
	memErr  error
)

// MemPin implements OutputPin on /dev/gpiomem.
type MemPin struct {
	pin  *gpio.Pin
	high bool
}

// NewMemPin configures pin as an output and drives it low.
func NewMemPin(pin int) (*MemPin, error) {
	memOnce.Do(func() {
		memErr = gpio.Open()
	})
	if memErr != nil {
		return nil, fmt.Errorf("open gpiomem: %w", memErr)
	}

	p := &MemPin{pin: gpio.NewPin(pin)}
	p.pin.Output()
	p.Low()
	return p, nil
}

// High implements OutputPin.High.
func (p *MemPin) High() {
	p.pin.High()
	p.high = true
}

// Low implements OutputPin.Low.
func (p *MemPin) Low() {
	p.pin.Low()
	p.high = false
}

// IsHigh implements OutputPin.IsHigh.
func (p *MemPin) IsHigh() bool {
	return p.high
}

// Release implements OutputPin.Release. The shared mapping stays open for
// the other pins.
func (p *MemPin) Release() error {
	return nil
}
