package door

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coopdoor/timectl"
)

// recorder collects every call from the fakes in order.
type recorder struct {
	calls []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

type fakeAlarms struct {
	rec       *recorder
	valid     bool
	openFire  bool
	closeFire bool
	armErr    error
}

func (a *fakeAlarms) HasValidTime() bool { return a.valid }

func (a *fakeAlarms) ArmOpenAtSunrise(lat, lon float64) error {
	a.rec.add("armOpenAtSunrise(%g,%g)", lat, lon)
	return a.armErr
}

func (a *fakeAlarms) ArmCloseAtSunset(lat, lon float64) error {
	a.rec.add("armCloseAtSunset(%g,%g)", lat, lon)
	return a.armErr
}

func (a *fakeAlarms) ArmOpenAtFixedTime(h, m int) error {
	a.rec.add("armOpenAtFixedTime(%d,%d)", h, m)
	return a.armErr
}

func (a *fakeAlarms) ArmCloseAtFixedTime(h, m int) error {
	a.rec.add("armCloseAtFixedTime(%d,%d)", h, m)
	return a.armErr
}

func (a *fakeAlarms) DisableAlarms() error {
	a.rec.add("disableAlarms")
	return nil
}

func (a *fakeAlarms) OpenFired() bool {
	f := a.openFire
	a.openFire = false
	return f
}

func (a *fakeAlarms) CloseFired() bool {
	f := a.closeFire
	a.closeFire = false
	return f
}

type fakeOpener struct{ rec *recorder }

func (o *fakeOpener) OpenDoor()  { o.rec.add("openDoor") }
func (o *fakeOpener) CloseDoor() { o.rec.add("closeDoor") }
func (o *fakeOpener) Stop()      { o.rec.add("stop") }

type fakeSettings struct {
	rec     *recorder
	mode    Mode
	saveErr error
}

func (s *fakeSettings) DoorControlMode() Mode              { return s.mode }
func (s *fakeSettings) GeoLocation() (float64, float64)    { return 50.5, 4.25 }
func (s *fakeSettings) FixedOpenTime() (hour, minute int)  { return 7, 30 }
func (s *fakeSettings) FixedCloseTime() (hour, minute int) { return 21, 0 }

func (s *fakeSettings) Save() error {
	s.rec.add("save")
	return s.saveErr
}

func newTestScheduler(mode Mode, valid bool) (*Scheduler, *fakeAlarms, *fakeSettings, *recorder) {
	rec := &recorder{}
	alarms := &fakeAlarms{rec: rec, valid: valid}
	settings := &fakeSettings{rec: rec, mode: mode}
	return New(alarms, &fakeOpener{rec: rec}, settings, zap.NewNop()), alarms, settings, rec
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{Manual, FixedTime, Sun} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("sunrise")
	assert.Error(t, err)
}

func TestOpenAlarm_RearmsCloseBeforeOpening(t *testing.T) {
	s, alarms, _, rec := newTestScheduler(Sun, true)
	alarms.openFire = true

	s.Poll()
	assert.Equal(t, []string{"armCloseAtSunset(50.5,4.25)", "openDoor"}, rec.calls)
}

func TestCloseAlarm_RearmsOpenBeforeClosing(t *testing.T) {
	s, alarms, _, rec := newTestScheduler(FixedTime, true)
	alarms.closeFire = true

	s.Poll()
	assert.Equal(t, []string{"armOpenAtFixedTime(7,30)", "closeDoor"}, rec.calls)
}

func TestAlarm_RearmFailureStillMovesDoor(t *testing.T) {
	s, alarms, _, rec := newTestScheduler(FixedTime, true)
	alarms.armErr = errors.New("nack")
	alarms.openFire = true

	s.Poll()
	assert.Equal(t, []string{"armCloseAtFixedTime(21,0)", "openDoor"}, rec.calls)
}

func TestPoll_NothingPending(t *testing.T) {
	s, _, _, rec := newTestScheduler(Sun, true)
	s.Poll()
	assert.Empty(t, rec.calls)
}

func TestConfigurationChanged(t *testing.T) {
	tests := []struct {
		mode Mode
		want []string
	}{
		{Manual, []string{"save", "disableAlarms"}},
		{FixedTime, []string{"save", "armOpenAtFixedTime(7,30)", "armCloseAtFixedTime(21,0)"}},
		{Sun, []string{"save", "armOpenAtSunrise(50.5,4.25)", "armCloseAtSunset(50.5,4.25)"}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			s, _, _, rec := newTestScheduler(tt.mode, true)
			require.NoError(t, s.ConfigurationChanged())
			assert.Equal(t, tt.want, rec.calls)
		})
	}
}

func TestConfigurationChanged_NoValidTime(t *testing.T) {
	s, _, _, rec := newTestScheduler(Sun, false)
	err := s.ConfigurationChanged()
	assert.ErrorIs(t, err, timectl.ErrTimeNotValid)
	assert.Equal(t, []string{"save", "disableAlarms"}, rec.calls)
}

func TestConfigurationChanged_SaveFails(t *testing.T) {
	s, _, settings, rec := newTestScheduler(Sun, true)
	settings.saveErr = errors.New("read-only fs")
	assert.Error(t, s.ConfigurationChanged())
	assert.Equal(t, []string{"save"}, rec.calls)
}

func TestManualOverrideLeavesAlarms(t *testing.T) {
	s, _, _, rec := newTestScheduler(Sun, true)
	s.Manual(Up)
	s.Manual(Standby)
	s.Manual(Down)
	assert.Equal(t, []string{"openDoor", "stop", "closeDoor"}, rec.calls)
}
