package power

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coopdoor/hal"
	"coopdoor/softtimer"
)

type fakeBattery struct {
	percent int
	err     error
	reads   int
}

func (b *fakeBattery) Percent() (int, error) {
	b.reads++
	return b.percent, b.err
}

type fakeSleeper struct {
	calls int
	err   error
}

func (s *fakeSleeper) Sleep() error {
	s.calls++
	return s.err
}

func testConfig() Config {
	return Config{
		Session:    180 * time.Second,
		Blink:      200 * time.Millisecond,
		LowPercent: 20,
		Settle:     100 * time.Millisecond,
	}
}

type rig struct {
	c       *Controller
	hold    *hal.Noop
	led     *hal.Noop
	battery *fakeBattery
	sleeper *fakeSleeper
	clock   *softtimer.Fake
	slept   time.Duration
}

func newRig(percent int) *rig {
	r := &rig{
		hold:    &hal.Noop{},
		led:     &hal.Noop{},
		battery: &fakeBattery{percent: percent},
		sleeper: &fakeSleeper{},
		clock:   softtimer.NewFake(),
	}
	r.c = New(testConfig(), r.hold, r.led, r.battery, r.sleeper, r.clock, zap.NewNop())
	r.c.sleep = func(d time.Duration) { r.slept += d }
	return r
}

func TestInitialize(t *testing.T) {
	r := newRig(80)
	require.NoError(t, r.c.Initialize())

	assert.True(t, r.hold.IsHigh())
	assert.True(t, r.led.IsHigh())
	assert.Equal(t, 80, r.c.BatteryPercent())
	assert.False(t, r.c.IsBatteryLow())
	assert.Equal(t, 180*time.Second, r.c.SessionRemaining())
}

func TestInitialize_BatteryError(t *testing.T) {
	r := newRig(0)
	r.battery.err = errors.New("adc")
	assert.Error(t, r.c.Initialize())
	assert.True(t, r.hold.IsHigh(), "supply must be held even without a reading")
}

func TestSessionExpiryPowersOff(t *testing.T) {
	r := newRig(80)
	require.NoError(t, r.c.Initialize())

	for i := 0; i < 899; i++ {
		r.clock.Advance(200 * time.Millisecond)
		r.c.Tick()
		require.False(t, r.c.Off(), "powered off early at tick %d", i)
	}
	r.clock.Advance(200 * time.Millisecond)
	r.c.Tick()

	assert.True(t, r.c.Off())
	assert.False(t, r.hold.IsHigh())
	assert.False(t, r.led.IsHigh())
	assert.Equal(t, 1, r.sleeper.calls)
	assert.Equal(t, 200*time.Millisecond, r.slept)

	// Further ticks do nothing.
	r.c.Tick()
	assert.Equal(t, 1, r.sleeper.calls)
}

func TestHealthyBatteryLeavesLEDAlone(t *testing.T) {
	r := newRig(80)
	require.NoError(t, r.c.Initialize())
	for i := 0; i < 10; i++ {
		r.clock.Advance(200 * time.Millisecond)
		r.c.Tick()
		assert.True(t, r.led.IsHigh())
	}
	assert.Equal(t, 11, r.battery.reads)
}

func TestLowBatteryBlinks(t *testing.T) {
	r := newRig(15)
	require.NoError(t, r.c.Initialize())
	assert.True(t, r.c.IsBatteryLow())

	var levels []bool
	for i := 0; i < 4; i++ {
		r.clock.Advance(200 * time.Millisecond)
		r.c.Tick()
		levels = append(levels, r.led.IsHigh())
	}
	assert.Equal(t, []bool{false, true, false, true}, levels)

	// No toggle between blink periods.
	r.clock.Advance(50 * time.Millisecond)
	r.c.Tick()
	assert.True(t, r.led.IsHigh())
}

func TestBatteryRecovers(t *testing.T) {
	r := newRig(10)
	require.NoError(t, r.c.Initialize())
	require.True(t, r.c.IsBatteryLow())

	// first blink tick turns the LED off
	r.clock.Advance(200 * time.Millisecond)
	r.c.Tick()
	require.False(t, r.led.IsHigh())

	r.battery.percent = 50
	r.clock.Advance(200 * time.Millisecond)
	r.c.Tick()
	assert.False(t, r.c.IsBatteryLow())
	assert.Equal(t, 50, r.c.BatteryPercent())
	assert.True(t, r.led.IsHigh(), "steady on once the battery recovers")

	r.clock.Advance(200 * time.Millisecond)
	r.c.Tick()
	assert.True(t, r.led.IsHigh())
}

func TestPowerOffRunsHooksFirst(t *testing.T) {
	r := newRig(80)
	require.NoError(t, r.c.Initialize())

	var order []string
	r.c.OnPowerOff(func() {
		order = append(order, "motor")
		assert.True(t, r.hold.IsHigh(), "hook must run while the supply is held")
		assert.Zero(t, r.sleeper.calls)
		assert.Zero(t, r.slept)
	})
	r.c.OnPowerOff(func() { order = append(order, "second") })

	r.c.PowerOff()
	assert.Equal(t, []string{"motor", "second"}, order)
	assert.True(t, r.c.Off())
	assert.Equal(t, 1, r.sleeper.calls)
}

func TestPowerOffSleepError(t *testing.T) {
	r := newRig(80)
	require.NoError(t, r.c.Initialize())
	r.sleeper.err = errors.New("EBUSY")
	r.c.PowerOff()
	assert.True(t, r.c.Off())
	assert.False(t, r.hold.IsHigh())
}
