// Package power bounds how long the board stays awake and shows the battery
// state on the status LED.
//
// The board is switched on by a button that bridges the power MOSFET. The
// daemon keeps it on through the hold pin and releases the pin when the
// session ends, cutting its own supply.
package power

import (
	"time"

	"go.uber.org/zap"

	"coopdoor/hal"
	"coopdoor/softtimer"
)

// Config holds the pins and session timing.
type Config struct {
	HoldPin    *int          `yaml:"hold_pin"` // keeps the supply switched on while high
	LEDPin     *int          `yaml:"led_pin"`
	Session    time.Duration `yaml:"session" env:"COOPDOOR_SESSION" env-default:"180s"`
	Blink      time.Duration `yaml:"blink" env-default:"200ms"`
	LowPercent int           `yaml:"low_percent" env-default:"20"`
	Settle     time.Duration `yaml:"settle" env-default:"100ms"`
}

// Battery reports the remaining charge.
type Battery interface {
	Percent() (int, error)
}

// Controller is the power session controller. All methods except Off must
// be called from the control loop.
type Controller struct {
	cfg     Config
	hold    hal.OutputPin
	led     hal.OutputPin
	battery Battery
	sleeper hal.Sleeper
	log     *zap.Logger

	session softtimer.Timer
	blink   softtimer.Timer
	percent int
	low     bool
	off     bool

	beforeOff []func()
	sleep     func(time.Duration)
}

// New returns a Controller. Initialize starts the session.
func New(cfg Config, hold, led hal.OutputPin, battery Battery, sleeper hal.Sleeper, clock softtimer.Clock, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		cfg:     cfg,
		hold:    hold,
		led:     led,
		battery: battery,
		sleeper: sleeper,
		log:     log.Named("power"),
		session: softtimer.New(clock),
		blink:   softtimer.New(clock),
		sleep:   time.Sleep,
	}
}

// Initialize latches the supply on, lights the LED and starts the session
// and blink timers. A failed battery reading is returned but does not stop
// the session from running.
func (c *Controller) Initialize() error {
	c.hold.High()
	c.led.High()
	c.off = false
	c.session.Start(c.cfg.Session)
	c.blink.Start(c.cfg.Blink)
	c.log.Info("session started", zap.Duration("length", c.cfg.Session))
	return c.measure()
}

// Tick powers off when the session has run out and updates the LED on each
// blink period: steady on while the battery is fine, toggling while low.
func (c *Controller) Tick() {
	if c.off {
		return
	}
	if c.session.Expired() {
		c.log.Info("session expired")
		c.PowerOff()
		return
	}
	if !c.blink.Expired() {
		return
	}
	c.blink.Repeat()

	if err := c.measure(); err != nil {
		c.log.Warn("battery measurement failed", zap.Error(err))
	}
	switch {
	case !c.low:
		c.led.High()
	case c.led.IsHigh():
		c.led.Low()
	default:
		c.led.High()
	}
}

func (c *Controller) measure() error {
	pct, err := c.battery.Percent()
	if err != nil {
		return err
	}
	wasLow := c.low
	c.percent = pct
	c.low = pct < c.cfg.LowPercent
	if c.low && !wasLow {
		c.log.Warn("battery low", zap.Int("percent", pct))
	}
	return nil
}

// BatteryPercent returns the last measured charge. It is not clamped.
func (c *Controller) BatteryPercent() int {
	return c.percent
}

// IsBatteryLow reports whether the last measurement was under the low
// threshold.
func (c *Controller) IsBatteryLow() bool {
	return c.low
}

// SessionRemaining returns the time left before the forced power-off.
func (c *Controller) SessionRemaining() time.Duration {
	return c.session.Remaining()
}

// OnPowerOff registers fn to run at the start of PowerOff, before the
// supply is released. Hooks run in registration order.
func (c *Controller) OnPowerOff(fn func()) {
	c.beforeOff = append(c.beforeOff, fn)
}

// PowerOff runs the OnPowerOff hooks and releases the hold pin. When an
// external supply keeps the board alive it enters low-power sleep instead.
// Off reports true afterwards.
func (c *Controller) PowerOff() {
	c.log.Info("powering off")
	for _, fn := range c.beforeOff {
		fn()
	}
	c.sleep(c.cfg.Settle)
	c.hold.Low()
	c.sleep(c.cfg.Settle)

	// Still running: externally powered.
	c.led.Low()
	c.log.Info("still powered, entering sleep")
	if err := c.sleeper.Sleep(); err != nil {
		c.log.Error("sleep failed", zap.Error(err))
	}
	c.off = true
}

// Off reports whether PowerOff has run.
func (c *Controller) Off() bool {
	return c.off
}
