//go:build linux

package hal

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// CdevPin implements OutputPin on a GPIO character device line.
type CdevPin struct {
	line *gpiocdev.Line
	high bool
}

// NewCdevPin requests offset on chip as an output, initially low.
func NewCdevPin(chip string, offset int) (*CdevPin, error) {
	if chip == "" {
		chip = "gpiochip0"
	}
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("coopdoor"))
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}
	return &CdevPin{line: line}, nil
}

// High implements OutputPin.High.
func (p *CdevPin) High() {
	p.line.SetValue(1)
	p.high = true
}

// Low implements OutputPin.Low.
func (p *CdevPin) Low() {
	p.line.SetValue(0)
	p.high = false
}

// IsHigh implements OutputPin.IsHigh.
func (p *CdevPin) IsHigh() bool {
	return p.high
}

// Release implements OutputPin.Release.
func (p *CdevPin) Release() error {
	return p.line.Close()
}
