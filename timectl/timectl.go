// Package timectl keeps the wall clock valid and programs the two daily RTC
// alarms that open and close the door.
//
// Alarms are stored on the RTC in UTC. Local times are converted with the
// timezone in effect when an alarm is armed, so daylight saving changes are
// picked up on the next re-arm.
package timectl

import (
	"errors"
	"fmt"
	"time"

	"github.com/btittelbach/astrotime"
	"go.uber.org/zap"

	"coopdoor/hal"
	"coopdoor/rtc"
)

var (
	// ErrTimeNotValid is returned by the arm operations until the clock has
	// been set from the RTC or an external update.
	ErrTimeNotValid = errors.New("time not valid")

	// ErrUnsupportedTimezone is returned for identifiers outside Zones().
	ErrUnsupportedTimezone = errors.New("unsupported timezone")

	// ErrNoSunEvent is returned when the sun does not rise or set on the
	// current day at the requested location.
	ErrNoSunEvent = errors.New("no sunrise or sunset today")
)

// Slots bound to door events.
const (
	OpenSlot  = rtc.Alarm1
	CloseSlot = rtc.Alarm2
)

// RTC is the persistent clock and alarm device.
type RTC interface {
	TimeValid() (bool, error)
	Time() (time.Time, error)
	SetTime(t time.Time) error
	EnableSquareWave(enable bool) error
	SetDailyAlarm(slot rtc.Slot, hour, minute int) error
	Alarm(slot rtc.Slot) (hour, minute int, enabled bool, err error)
	DisableAlarm(slot rtc.Slot) error
	AlarmTriggered(slot rtc.Slot) (bool, error)
	AcknowledgeAlarm(slot rtc.Slot) error
}

// Scheduler is the time and alarm controller.
type Scheduler struct {
	rtc  RTC
	wall hal.WallClock
	log  *zap.Logger

	valid bool
	tz    string
	loc   *time.Location

	// offset corrects wall when the process may not set the system clock.
	offset time.Duration
}

// New returns a Scheduler without valid time in UTC.
func New(r RTC, wall hal.WallClock, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		rtc:  r,
		wall: wall,
		log:  log.Named("timectl"),
		tz:   "UTC",
		loc:  time.UTC,
	}
}

// Initialize applies tz and takes the time from the RTC when its oscillator
// has run uninterrupted. The square-wave output is always switched off. An
// unsupported tz leaves the time invalid until the next clock update.
func (s *Scheduler) Initialize(tz string) error {
	var errs []error

	if err := s.rtc.EnableSquareWave(false); err != nil {
		errs = append(errs, fmt.Errorf("disable square wave: %w", err))
	}

	s.valid = false
	loc, err := loadZone(tz)
	if err != nil {
		// local alarm times would be converted with the wrong offset
		s.log.Warn("timezone unusable, waiting for clock update", zap.String("tz", tz))
		return errors.Join(append(errs, err)...)
	}
	s.tz, s.loc = tz, loc

	ok, err := s.rtc.TimeValid()
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("read rtc status: %w", err))
	case !ok:
		s.log.Warn("rtc time lost, waiting for clock update")
	default:
		t, err := s.rtc.Time()
		if err != nil {
			errs = append(errs, fmt.Errorf("read rtc time: %w", err))
			break
		}
		s.setWall(t)
		s.valid = true
		s.log.Info("time from rtc", zap.Time("utc", t), zap.String("tz", s.tz))
	}

	return errors.Join(errs...)
}

// HasValidTime reports whether the clock can be trusted.
func (s *Scheduler) HasValidTime() bool {
	return s.valid
}

// Timezone returns the applied timezone identifier.
func (s *Scheduler) Timezone() string {
	return s.tz
}

// Now returns the current time in the applied timezone.
func (s *Scheduler) Now() time.Time {
	return s.wall.Now().Add(s.offset).In(s.loc)
}

// UpdateClock sets the system clock and the RTC to utcSeconds and applies
// tz. An unsupported tz fails before anything is written.
func (s *Scheduler) UpdateClock(utcSeconds int64, tz string) error {
	loc, err := loadZone(tz)
	if err != nil {
		return err
	}

	t := time.Unix(utcSeconds, 0).UTC()
	s.setWall(t)
	if err := s.rtc.SetTime(t); err != nil {
		s.valid = false
		return fmt.Errorf("write rtc time: %w", err)
	}

	s.tz, s.loc = tz, loc
	s.valid = true
	s.log.Info("clock updated", zap.Time("utc", t), zap.String("tz", tz))
	return nil
}

func (s *Scheduler) setWall(t time.Time) {
	if err := s.wall.Set(t); err != nil {
		s.offset = t.Sub(s.wall.Now())
		s.log.Warn("cannot set system clock, keeping offset",
			zap.Error(err), zap.Duration("offset", s.offset))
		return
	}
	s.offset = 0
}

// ArmOpenAtFixedTime programs the open alarm for a local hour and minute.
func (s *Scheduler) ArmOpenAtFixedTime(hour, minute int) error {
	return s.armLocal(OpenSlot, hour, minute)
}

// ArmCloseAtFixedTime programs the close alarm for a local hour and minute.
func (s *Scheduler) ArmCloseAtFixedTime(hour, minute int) error {
	return s.armLocal(CloseSlot, hour, minute)
}

// ArmOpenAtSunrise programs the open alarm for today's sunrise.
func (s *Scheduler) ArmOpenAtSunrise(lat, lon float64) error {
	if !s.valid {
		return ErrTimeNotValid
	}
	sun, err := s.SunTimes(lat, lon)
	if err != nil {
		return err
	}
	h, m := roundToMinute(sun.Sunrise)
	return s.armLocal(OpenSlot, h, m)
}

// ArmCloseAtSunset programs the close alarm for today's sunset.
func (s *Scheduler) ArmCloseAtSunset(lat, lon float64) error {
	if !s.valid {
		return ErrTimeNotValid
	}
	sun, err := s.SunTimes(lat, lon)
	if err != nil {
		return err
	}
	h, m := roundToMinute(sun.Sunset)
	return s.armLocal(CloseSlot, h, m)
}

func (s *Scheduler) armLocal(slot rtc.Slot, hour, minute int) error {
	if !s.valid {
		return ErrTimeNotValid
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid alarm time %02d:%02d", hour, minute)
	}

	uh, um := s.LocalToUTC(hour, minute)
	if err := s.rtc.SetDailyAlarm(slot, uh, um); err != nil {
		return fmt.Errorf("arm %s: %w", slot, err)
	}
	s.log.Info("alarm armed",
		zap.Stringer("slot", slot),
		zap.String("local", fmt.Sprintf("%02d:%02d", hour, minute)),
		zap.String("utc", fmt.Sprintf("%02d:%02d", uh, um)))
	return nil
}

// DisableAlarms clears both alarm enables and any flag they left raised.
// It does not need valid time.
func (s *Scheduler) DisableAlarms() error {
	err := errors.Join(
		s.rtc.DisableAlarm(OpenSlot),
		s.rtc.DisableAlarm(CloseSlot),
	)
	if err != nil {
		return fmt.Errorf("disable alarms: %w", err)
	}
	s.log.Info("alarms disabled")
	return nil
}

// OpenFired consumes a pending open alarm.
func (s *Scheduler) OpenFired() bool {
	return s.consume(OpenSlot)
}

// CloseFired consumes a pending close alarm.
func (s *Scheduler) CloseFired() bool {
	return s.consume(CloseSlot)
}

// consume acknowledges a raised flag. The DS1337 keeps matching a disabled
// alarm and raising its flag, so a flag only counts while the slot is
// enabled.
func (s *Scheduler) consume(slot rtc.Slot) bool {
	fired, err := s.rtc.AlarmTriggered(slot)
	if err != nil {
		s.log.Error("read alarm flag", zap.Stringer("slot", slot), zap.Error(err))
		return false
	}
	if !fired {
		return false
	}
	_, _, enabled, err := s.rtc.Alarm(slot)
	if err != nil {
		s.log.Error("read alarm", zap.Stringer("slot", slot), zap.Error(err))
		return false
	}
	if err := s.rtc.AcknowledgeAlarm(slot); err != nil {
		s.log.Error("acknowledge alarm", zap.Stringer("slot", slot), zap.Error(err))
	}
	if !enabled {
		s.log.Debug("flag on disabled alarm ignored", zap.Stringer("slot", slot))
		return false
	}
	s.log.Info("alarm fired", zap.Stringer("slot", slot))
	return true
}

// Alarm reads back an alarm in local time.
func (s *Scheduler) Alarm(slot rtc.Slot) (hour, minute int, enabled bool, err error) {
	uh, um, enabled, err := s.rtc.Alarm(slot)
	if err != nil {
		return 0, 0, false, err
	}
	hour, minute = s.UTCToLocal(uh, um)
	return hour, minute, enabled, nil
}

// LocalToUTC converts a local time of day using today's offset.
func (s *Scheduler) LocalToUTC(hour, minute int) (int, int) {
	now := s.Now()
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, s.loc).UTC()
	return t.Hour(), t.Minute()
}

// UTCToLocal converts a UTC time of day using today's offset.
func (s *Scheduler) UTCToLocal(hour, minute int) (int, int) {
	now := s.Now().UTC()
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC).In(s.loc)
	return t.Hour(), t.Minute()
}

// SunTimes holds one day's solar events in local time.
type SunTimes struct {
	Sunrise time.Time
	Transit time.Time
	Sunset  time.Time
}

// SunTimes computes today's sunrise, transit and sunset at lat/lon
// (degrees, north and east positive).
func (s *Scheduler) SunTimes(lat, lon float64) (SunTimes, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return SunTimes{}, fmt.Errorf("invalid location %.4f,%.4f", lat, lon)
	}

	now := s.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	rise := astrotime.NextDawn(midnight, lat, lon, astrotime.SUNRISE).In(s.loc)
	set := astrotime.NextDusk(midnight, lat, lon, astrotime.SUNSET).In(s.loc)

	if rise.IsZero() || set.IsZero() || !sameDay(rise, midnight) || !sameDay(set, midnight) || !set.After(rise) {
		return SunTimes{}, ErrNoSunEvent
	}
	return SunTimes{
		Sunrise: rise,
		Transit: rise.Add(set.Sub(rise) / 2),
		Sunset:  set,
	}, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func roundToMinute(t time.Time) (hour, minute int) {
	r := t.Round(time.Minute)
	return r.Hour(), r.Minute()
}
