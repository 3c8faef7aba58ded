// Package button reads the three manual door buttons (up, standby, down).
//
// Interrupt-driven backends deliver presses from their own goroutines into
// a buffered queue; the control loop drains it with Poll.
package button

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"coopdoor/door"
	"coopdoor/hal"
	"coopdoor/softtimer"
)

// Source is a set of manual buttons.
type Source interface {
	// Poll returns the next press, if any. It never blocks.
	Poll() (door.Button, bool)

	// Close releases the input device.
	Close() error
}

// Config selects the button backend.
type Config struct {
	Type string `yaml:"type" env:"COOPDOOR_BUTTONS" env-default:"none"` // "ladder", "cdev", "evdev", "none"

	Ladder LadderConfig `yaml:"ladder"`

	// cdev
	Chip       string        `yaml:"chip" env-default:"gpiochip0"`
	UpPin      *int          `yaml:"up_pin"`
	StandbyPin *int          `yaml:"standby_pin"`
	DownPin    *int          `yaml:"down_pin"`
	Debounce   time.Duration `yaml:"debounce" env-default:"10ms"`

	// evdev (gpio-keys)
	Device     string `yaml:"device" env-default:"/dev/input/by-path/platform-gpio-keys-event"`
	UpKey      int    `yaml:"up_key" env-default:"103"`     // KEY_UP
	StandbyKey int    `yaml:"standby_key" env-default:"28"` // KEY_ENTER
	DownKey    int    `yaml:"down_key" env-default:"108"`   // KEY_DOWN
}

// New creates the configured Source. adc and clock are only used by the
// ladder backend.
func New(cfg Config, adc hal.ADC, clock softtimer.Clock, log *zap.Logger) (Source, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("button")

	switch cfg.Type {
	case "ladder":
		return NewLadder(cfg.Ladder, adc, clock, log), nil
	case "cdev":
		pins := map[door.Button]*int{
			door.Up:      cfg.UpPin,
			door.Standby: cfg.StandbyPin,
			door.Down:    cfg.DownPin,
		}
		c, err := NewCdev(cfg.Chip, pins, cfg.Debounce, log)
		if err != nil {
			return nil, fmt.Errorf("button lines: %w", err)
		}
		return c, nil
	case "evdev":
		keys := map[int]door.Button{
			cfg.UpKey:      door.Up,
			cfg.StandbyKey: door.Standby,
			cfg.DownKey:    door.Down,
		}
		e, err := NewEvdev(cfg.Device, keys, log)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "none", "":
		return &Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown button type %q", cfg.Type)
	}
}

// Noop is a Source without buttons.
type Noop struct{}

// Poll implements Source.Poll.
func (Noop) Poll() (door.Button, bool) { return 0, false }

// Close implements Source.Close.
func (Noop) Close() error { return nil }

// queue hands presses from event goroutines to the control loop.
type queue struct {
	ch  chan door.Button
	log *zap.Logger
}

func newQueue(log *zap.Logger) *queue {
	return &queue{ch: make(chan door.Button, 8), log: log}
}

// push never blocks; presses beyond the buffer are dropped.
func (q *queue) push(b door.Button) {
	select {
	case q.ch <- b:
	default:
		q.log.Warn("button queue full, press dropped", zap.Stringer("button", b))
	}
}

// Poll implements Source.Poll.
func (q *queue) Poll() (door.Button, bool) {
	select {
	case b := <-q.ch:
		return b, true
	default:
		return 0, false
	}
}
