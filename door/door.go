// Package door decides when the door moves: on RTC alarms according to the
// configured mode, and immediately on manual input.
package door

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"coopdoor/timectl"
)

// Mode is the automatic door control mode.
type Mode int

const (
	Manual Mode = iota
	FixedTime
	Sun
)

// String returns the configuration string for m.
func (m Mode) String() string {
	switch m {
	case FixedTime:
		return "fixedTime"
	case Sun:
		return "sun"
	default:
		return "manual"
	}
}

// ParseMode accepts the configuration strings "manual", "fixedTime" and "sun".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "manual":
		return Manual, nil
	case "fixedTime":
		return FixedTime, nil
	case "sun":
		return Sun, nil
	}
	return Manual, fmt.Errorf("unknown door control mode %q", s)
}

// Button is a manual input.
type Button int

const (
	Up Button = iota + 1
	Standby
	Down
)

func (b Button) String() string {
	switch b {
	case Up:
		return "up"
	case Standby:
		return "standby"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("button(%d)", int(b))
	}
}

// Opener moves the door.
type Opener interface {
	OpenDoor()
	CloseDoor()
	Stop()
}

// Alarms programs and polls the daily open and close events.
type Alarms interface {
	HasValidTime() bool
	ArmOpenAtSunrise(lat, lon float64) error
	ArmCloseAtSunset(lat, lon float64) error
	ArmOpenAtFixedTime(hour, minute int) error
	ArmCloseAtFixedTime(hour, minute int) error
	DisableAlarms() error
	OpenFired() bool
	CloseFired() bool
}

// Settings is the persisted door configuration.
type Settings interface {
	DoorControlMode() Mode
	GeoLocation() (lat, lon float64)
	FixedOpenTime() (hour, minute int)
	FixedCloseTime() (hour, minute int)
	Save() error
}

// Scheduler ties alarms, settings and the door motor together.
type Scheduler struct {
	alarms   Alarms
	opener   Opener
	settings Settings
	log      *zap.Logger
}

// New returns a Scheduler.
func New(alarms Alarms, opener Opener, settings Settings, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		alarms:   alarms,
		opener:   opener,
		settings: settings,
		log:      log.Named("door"),
	}
}

// Poll handles pending alarms. The next event is armed before the door is
// commanded so that a crash while moving does not lose the schedule.
func (s *Scheduler) Poll() {
	if s.alarms.OpenFired() {
		if err := s.armClose(); err != nil {
			s.log.Error("re-arm close", zap.Error(err))
		}
		s.log.Info("opening on alarm")
		s.opener.OpenDoor()
	}
	if s.alarms.CloseFired() {
		if err := s.armOpen(); err != nil {
			s.log.Error("re-arm open", zap.Error(err))
		}
		s.log.Info("closing on alarm")
		s.opener.CloseDoor()
	}
}

// ConfigurationChanged persists the settings and re-arms both alarms for the
// new mode. Without valid time the alarms are disabled and
// timectl.ErrTimeNotValid is returned.
func (s *Scheduler) ConfigurationChanged() error {
	if err := s.settings.Save(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return s.Rearm()
}

// Rearm programs both alarms from the current settings.
func (s *Scheduler) Rearm() error {
	mode := s.settings.DoorControlMode()
	if !s.alarms.HasValidTime() {
		if err := s.alarms.DisableAlarms(); err != nil {
			return errors.Join(timectl.ErrTimeNotValid, err)
		}
		s.log.Warn("no valid time, alarms disabled", zap.Stringer("mode", mode))
		return timectl.ErrTimeNotValid
	}

	if mode == Manual {
		return s.alarms.DisableAlarms()
	}
	s.log.Info("arming alarms", zap.Stringer("mode", mode))
	return errors.Join(s.armOpen(), s.armClose())
}

func (s *Scheduler) armOpen() error {
	switch s.settings.DoorControlMode() {
	case FixedTime:
		h, m := s.settings.FixedOpenTime()
		return s.alarms.ArmOpenAtFixedTime(h, m)
	case Sun:
		lat, lon := s.settings.GeoLocation()
		return s.alarms.ArmOpenAtSunrise(lat, lon)
	}
	return nil
}

func (s *Scheduler) armClose() error {
	switch s.settings.DoorControlMode() {
	case FixedTime:
		h, m := s.settings.FixedCloseTime()
		return s.alarms.ArmCloseAtFixedTime(h, m)
	case Sun:
		lat, lon := s.settings.GeoLocation()
		return s.alarms.ArmCloseAtSunset(lat, lon)
	}
	return nil
}

// Manual drives the door from a button, leaving the alarms untouched.
func (s *Scheduler) Manual(b Button) {
	s.log.Info("manual", zap.Stringer("button", b))
	switch b {
	case Up:
		s.opener.OpenDoor()
	case Down:
		s.opener.CloseDoor()
	case Standby:
		s.opener.Stop()
	}
}
