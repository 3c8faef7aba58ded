package main

import (
	"errors"
	"fmt"

	"coopdoor/hal"
	"coopdoor/softtimer"
)

// hardware is everything the components need from the board.
type hardware struct {
	bus     hal.Bus
	adc     hal.ADC
	wall    hal.WallClock
	sleeper hal.Sleeper
	clock   softtimer.Clock

	in1, in2 hal.OutputPin // H-bridge
	hold     hal.OutputPin // power hold
	led      hal.OutputPin

	closers []func() error
}

// openHardware opens the bus, the ADC and the output pins named in cfg.
func openHardware(cfg *Config) (*hardware, error) {
	hw := &hardware{
		wall:    hal.SystemClock{},
		sleeper: hal.NewSleeper(cfg.HAL.SleepState),
		clock:   softtimer.System(),
	}

	bus, err := hal.OpenI2C(cfg.HAL.I2CBus)
	if err != nil {
		return nil, err
	}
	hw.bus = bus
	hw.closers = append(hw.closers, bus.Close)

	hw.adc, err = hal.NewIIO(cfg.HAL.IIODevice)
	if err != nil {
		hw.Close()
		return nil, err
	}

	pins := []struct {
		name    string
		num     *int
		dst     *hal.OutputPin
		bridged bool // released by motor.Bridge
	}{
		{"motor in1", cfg.Motor.In1Pin, &hw.in1, true},
		{"motor in2", cfg.Motor.In2Pin, &hw.in2, true},
		{"power hold", cfg.Power.HoldPin, &hw.hold, false},
		{"led", cfg.Power.LEDPin, &hw.led, false},
	}
	for _, p := range pins {
		pin, err := cfg.HAL.OutputPin(p.num)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("%s pin: %w", p.name, err)
		}
		*p.dst = pin
		if !p.bridged {
			hw.closers = append(hw.closers, pin.Release)
		}
	}

	return hw, nil
}

// Close releases the power and LED pins and closes the bus.
func (hw *hardware) Close() error {
	var errs []error
	for i := len(hw.closers) - 1; i >= 0; i-- {
		errs = append(errs, hw.closers[i]())
	}
	hw.closers = nil
	return errors.Join(errs...)
}
