package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"coopdoor/battery"
	"coopdoor/button"
	"coopdoor/console"
	"coopdoor/door"
	"coopdoor/motor"
	"coopdoor/mqtt"
	"coopdoor/nvstore"
	"coopdoor/power"
	"coopdoor/rtc"
	"coopdoor/softtimer"
	"coopdoor/timectl"
)

const inboxSize = 16

// App holds the application state and dependencies. Everything except the
// inbox is touched only from the control loop.
type App struct {
	cfg *Config
	log *zap.Logger
	hw  *hardware

	rtc     *rtc.DS1337
	time    *timectl.Scheduler
	store   *nvstore.Store
	battery *battery.Monitor
	bridge  *motor.Bridge
	motor   *motor.Actuator
	power   *power.Controller
	door    *door.Scheduler

	inbox   *console.Inbox
	console *console.Console
	node    *mqtt.Node
	buttons button.Source

	timeShow softtimer.Timer
	moving   bool
}

// NewApp builds the components in dependency order: bus and RTC, the
// settings, then scheduler, actuator and power controller, and last the
// control channels.
func NewApp(cfg *Config, hw *hardware, log *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, log: log, hw: hw}

	app.rtc = rtc.New(hw.bus, log)
	if !app.rtc.Present() {
		return nil, fmt.Errorf("rtc not found at 0x%02x", rtc.Address)
	}

	var err error
	app.store, err = nvstore.Open(cfg.Settings, log)
	if err != nil {
		return nil, err
	}

	app.time = timectl.New(app.rtc, hw.wall, log)
	if err := app.time.Initialize(app.store.Timezone()); err != nil {
		log.Warn("time init", zap.Error(err))
	}

	app.battery, err = battery.New(cfg.Battery, hw.adc, log)
	if err != nil {
		return nil, err
	}
	supply, err := app.battery.Millivolts()
	if err != nil {
		log.Warn("supply voltage unknown, using reference thresholds", zap.Error(err))
		supply = motor.ReferenceMillivolts
	}

	app.bridge = motor.NewBridge(hw.in1, hw.in2)
	app.motor = motor.New(cfg.Motor, app.bridge, hw.adc, hw.clock, log)
	app.motor.Initialize(supply)

	app.power = power.New(cfg.Power, hw.hold, hw.led, app.battery, hw.sleeper, hw.clock, log)
	app.power.OnPowerOff(app.haltMotor)
	if err := app.power.Initialize(); err != nil {
		log.Warn("power init", zap.Error(err))
	}

	app.door = door.New(app.time, app.motor, app.store, log)
	switch err := app.door.Rearm(); {
	case errors.Is(err, timectl.ErrTimeNotValid):
		log.Warn("configuration only until the clock is set")
	case err != nil:
		log.Error("arm alarms", zap.Error(err))
	}

	app.inbox = console.NewInbox(inboxSize, log)

	app.node, err = mqtt.NewNode(cfg.MQTT, cfg.ClientID, app.inbox, log)
	if err != nil {
		return nil, fmt.Errorf("init mqtt: %w", err)
	}

	app.console, err = console.New(cfg.Console, app.inbox, log)
	if err != nil {
		return nil, fmt.Errorf("init console: %w", err)
	}

	app.buttons, err = button.New(cfg.Button, hw.adc, hw.clock, log)
	if err != nil {
		app.console.Close()
		return nil, fmt.Errorf("init buttons: %w", err)
	}

	app.timeShow = softtimer.New(hw.clock)
	return app, nil
}

// Start launches the background readers and reports the initial state.
func (app *App) Start() {
	app.console.Start()
	app.node.Connect()
	app.node.PublishTime(app.time.HasValidTime())
	app.node.PublishBattery(app.power.BatteryPercent())
	app.timeShow.Start(app.cfg.TimeShow)
}

// Run steps the control loop until ctx is done or the power session ends.
func (app *App) Run(ctx context.Context) {
	ticker := time.NewTicker(app.cfg.LoopPeriod)
	defer ticker.Stop()

	for !app.power.Off() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.Step()
		}
	}
	app.log.Info("power session ended")
}

// Step runs one loop iteration. It never blocks.
func (app *App) Step() {
	for {
		cmd, ok := app.inbox.Next()
		if !ok {
			break
		}
		app.Execute(cmd)
	}

	if b, ok := app.buttons.Poll(); ok {
		app.door.Manual(b)
	}

	moving := app.motor.Tick()
	if app.moving && !moving {
		app.node.PublishDoor(doorStatus(app.motor.LastStop()))
	}
	app.moving = moving

	app.power.Tick()
	app.door.Poll()

	if app.timeShow.Expired() {
		app.timeShow.Repeat()
		app.log.Debug("local time",
			zap.String("now", app.time.Now().Format(time.ANSIC)),
			zap.String("tz", app.time.Timezone()),
			zap.Bool("valid", app.time.HasValidTime()))
	}
}

// haltMotor de-energizes the bridge before the supply is released, since
// the loop does not tick again after PowerOff.
func (app *App) haltMotor() {
	if app.motor.Halt() {
		app.node.PublishDoor(doorStatus(app.motor.LastStop()))
	}
	app.moving = false
}

// doorStatus maps a finished activation to the published door state.
func doorStatus(stop motor.Stop) string {
	switch stop.Reason {
	case motor.Stopped, motor.SenseFault:
		return mqtt.DoorStopped
	}
	if stop.Direction == motor.Raise {
		return mqtt.DoorLifted
	}
	return mqtt.DoorLowered
}

// Execute applies one command and answers on the console.
func (app *App) Execute(cmd console.Command) {
	app.log.Info("command", zap.Stringer("command", cmd))

	var err error
	switch cmd.Kind {
	case console.Open:
		app.door.Manual(door.Up)
	case console.Close:
		app.door.Manual(door.Down)
	case console.Stop:
		app.door.Manual(door.Standby)

	case console.SetTime:
		err = app.setTime(cmd.UTCSeconds, cmd.Timezone)
	case console.SetMode:
		err = app.store.SetDoorControlMode(cmd.Mode)
	case console.SetLocation:
		err = app.store.SetGeoLocation(cmd.Latitude, cmd.Longitude)
	case console.SetOpenTime:
		err = app.store.SetFixedOpenTime(cmd.Clock)
	case console.SetCloseTime:
		err = app.store.SetFixedCloseTime(cmd.Clock)
	case console.Apply:
		err = app.door.ConfigurationChanged()
		if errors.Is(err, timectl.ErrTimeNotValid) {
			err = fmt.Errorf("settings saved, alarms off: %w", err)
		}

	case console.Status:
		status := app.Status()
		app.log.Info("status", zap.String("status", status))
		app.console.Reply(status)
		app.node.PublishBattery(app.power.BatteryPercent())
		return
	case console.PowerOff:
		app.console.Reply("ok")
		app.power.PowerOff()
		return

	default:
		err = fmt.Errorf("unhandled command %s", cmd.Kind)
	}

	if err != nil {
		app.log.Warn("command failed", zap.Stringer("command", cmd), zap.Error(err))
		app.console.Reply("error: " + err.Error())
		return
	}
	app.console.Reply("ok")
}

// setTime sets the clock. An empty tz keeps the configured zone.
func (app *App) setTime(utcSeconds int64, tz string) error {
	if tz == "" {
		tz = app.store.Timezone()
	}
	err := app.time.UpdateClock(utcSeconds, tz)
	app.node.PublishTime(app.time.HasValidTime())
	if err != nil {
		return err
	}
	return app.store.SetTimezone(tz)
}

// Status describes the controller state on one line.
func (app *App) Status() string {
	var b strings.Builder

	fmt.Fprintf(&b, "motor=%s", app.motor.State())
	if stop := app.motor.LastStop(); stop.Reason != motor.NotStopped {
		fmt.Fprintf(&b, " last=%s/%s", stop.Direction, stop.Reason)
	}

	fmt.Fprintf(&b, " time=%s", app.time.Now().Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, " tz=%s valid=%t", app.time.Timezone(), app.time.HasValidTime())

	mode := app.store.DoorControlMode()
	fmt.Fprintf(&b, " mode=%s", mode)
	switch mode {
	case door.FixedTime:
		oh, om := app.store.FixedOpenTime()
		ch, cm := app.store.FixedCloseTime()
		fmt.Fprintf(&b, " open=%02d:%02d close=%02d:%02d", oh, om, ch, cm)
	case door.Sun:
		lat, lon := app.store.GeoLocation()
		fmt.Fprintf(&b, " location=%.4f,%.4f", lat, lon)
		if sun, err := app.time.SunTimes(lat, lon); err == nil {
			fmt.Fprintf(&b, " sunrise=%s sunset=%s", sun.Sunrise.Format("15:04"), sun.Sunset.Format("15:04"))
		}
	}

	if app.time.HasValidTime() {
		for _, slot := range []rtc.Slot{timectl.OpenSlot, timectl.CloseSlot} {
			h, m, enabled, err := app.time.Alarm(slot)
			if err == nil && enabled {
				fmt.Fprintf(&b, " %s=%02d:%02d", slot, h, m)
			}
		}
	}

	fmt.Fprintf(&b, " battery=%d%%", app.power.BatteryPercent())
	if app.power.IsBatteryLow() {
		b.WriteString(" low")
	}
	fmt.Fprintf(&b, " session=%s", app.power.SessionRemaining().Round(time.Second))
	return b.String()
}

// Close stops the control channels and de-energizes the motor.
func (app *App) Close() error {
	app.node.Disconnect()
	return errors.Join(
		app.console.Close(),
		app.buttons.Close(),
		app.bridge.Release(),
	)
}
