package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coopdoor/console"
	"coopdoor/hal"
	"coopdoor/motor"
	"coopdoor/mqtt"
	"coopdoor/rtc"
	"coopdoor/softtimer"
)

// memBus is a DS1337 register file.
type memBus struct {
	regs    [16]byte
	written map[uint8]bool
}

func (b *memBus) ReadRegisters(addr, reg uint8, n int) ([]byte, error) {
	out := make([]byte, n)
	copy(out, b.regs[reg:int(reg)+n])
	return out, nil
}

func (b *memBus) WriteRegisters(addr, reg uint8, data []byte) error {
	for i := range data {
		b.written[reg+uint8(i)] = true
	}
	copy(b.regs[reg:], data)
	return nil
}

func (b *memBus) Detect(addr uint8) bool { return addr == rtc.Address }

type channelADC map[int]uint32

func (a channelADC) ReadMillivolts(channel int) (uint32, error) { return a[channel], nil }

type fakeWall struct{ now time.Time }

func (w *fakeWall) Now() time.Time { return w.now }

func (w *fakeWall) Set(t time.Time) error {
	w.now = t
	return nil
}

type countingSleeper struct{ n int }

func (s *countingSleeper) Sleep() error {
	s.n++
	return nil
}

type rig struct {
	app     *App
	bus     *memBus
	clock   *softtimer.Fake
	sleeper *countingSleeper
	hw      *hardware
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "coopdoor.yaml")
	yaml := "client_id: testcoop\n" +
		"settings: " + filepath.Join(dir, "settings.yaml") + "\n" +
		"power:\n  settle: 1ms\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

// newRig builds an App on fake hardware. A validTime RTC holds
// 2024-01-15 10:00:00 UTC.
func newRig(t *testing.T, validTime bool) *rig {
	t.Helper()
	bus := &memBus{written: map[uint8]bool{}}
	if validTime {
		copy(bus.regs[:7], []byte{0x00, 0x00, 0x10, 0x02, 0x15, 0x01, 0x24})
	} else {
		bus.regs[0x0F] = 0x80
	}

	clock := softtimer.NewFake()
	sleeper := &countingSleeper{}
	hw := &hardware{
		bus:     bus,
		adc:     channelADC{0: 2400}, // 4.8 V pack, 50 %
		wall:    &fakeWall{},
		sleeper: sleeper,
		clock:   clock,
		in1:     &hal.Noop{},
		in2:     &hal.Noop{},
		hold:    &hal.Noop{},
		led:     &hal.Noop{},
	}

	app, err := NewApp(testConfig(t), hw, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return &rig{app: app, bus: bus, clock: clock, sleeper: sleeper, hw: hw}
}

func TestNewApp_LostTimeDisablesAlarms(t *testing.T) {
	r := newRig(t, false)
	assert.False(t, r.app.time.HasValidTime())
	for reg := uint8(0x07); reg <= 0x0D; reg++ {
		assert.False(t, r.bus.written[reg], "alarm register 0x%02x written", reg)
	}
	for _, slot := range []rtc.Slot{rtc.Alarm1, rtc.Alarm2} {
		_, _, enabled, err := r.app.rtc.Alarm(slot)
		require.NoError(t, err)
		assert.False(t, enabled, "%s", slot)
	}
	assert.True(t, r.hw.hold.IsHigh(), "power held on")
}

func TestNewApp_RTCMissing(t *testing.T) {
	hw := &hardware{bus: &absentBus{}}
	_, err := NewApp(testConfig(t), hw, zap.NewNop())
	assert.Error(t, err)
}

type absentBus struct{ memBus }

func (absentBus) Detect(uint8) bool { return false }

func TestExecute_FixedTimeSchedule(t *testing.T) {
	r := newRig(t, true)
	require.True(t, r.app.time.HasValidTime())

	for _, cmd := range []console.Command{
		{Kind: console.SetMode, Mode: "fixedTime"},
		{Kind: console.SetOpenTime, Clock: "07:30"},
		{Kind: console.SetCloseTime, Clock: "21:00"},
		{Kind: console.Apply},
	} {
		r.app.Execute(cmd)
	}

	// Brussels is UTC+1 in January.
	h, m, enabled, err := r.app.rtc.Alarm(rtc.Alarm1)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, []int{6, 30}, []int{h, m})

	h, m, enabled, err = r.app.rtc.Alarm(rtc.Alarm2)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, []int{20, 0}, []int{h, m})

	assert.FileExists(t, r.app.cfg.Settings)
	assert.Contains(t, r.app.Status(), "open=07:30 close=21:00")
}

func TestExecute_InvalidSettingIsRejected(t *testing.T) {
	r := newRig(t, true)
	r.app.Execute(console.Command{Kind: console.SetOpenTime, Clock: "25:00"})
	h, m := r.app.store.FixedOpenTime()
	assert.Equal(t, []int{0, 0}, []int{h, m})
}

func TestStep_OpenAlarmDrivesMotor(t *testing.T) {
	r := newRig(t, true)
	r.app.Execute(console.Command{Kind: console.SetMode, Mode: "fixedTime"})
	r.app.Execute(console.Command{Kind: console.Apply})

	r.bus.regs[0x0F] |= 0x01 // A1F
	r.app.Step()
	assert.Zero(t, r.bus.regs[0x0F]&0x01, "alarm acknowledged")

	r.app.Step()
	assert.Equal(t, motor.DeadTime, r.app.motor.State())
	assert.False(t, r.hw.in1.IsHigh())
	assert.True(t, r.hw.in2.IsHigh())
}

func TestStep_CommandsFromInbox(t *testing.T) {
	r := newRig(t, false)
	require.True(t, r.app.inbox.Submit(console.Command{Kind: console.Close}))

	r.app.Step()
	assert.Equal(t, motor.DeadTime, r.app.motor.State())
	assert.Equal(t, motor.Lower, r.app.motor.Direction())
	assert.True(t, r.hw.in1.IsHigh())

	r.app.inbox.Submit(console.Command{Kind: console.Stop})
	r.app.Step()
	r.app.Step()
	assert.Equal(t, motor.Off, r.app.motor.State())
	assert.Equal(t, motor.Stopped, r.app.motor.LastStop().Reason)
	assert.False(t, r.hw.in1.IsHigh())
	assert.False(t, r.app.moving)
}

func TestExecute_SetTimeKeepsConfiguredZone(t *testing.T) {
	r := newRig(t, false)
	r.app.Execute(console.Command{Kind: console.SetTime, UTCSeconds: 1700000000})
	assert.True(t, r.app.time.HasValidTime())
	assert.Equal(t, "Europe/Brussels", r.app.time.Timezone())
	assert.Zero(t, r.bus.regs[0x0F]&0x80, "oscillator flag cleared")

	r.app.Execute(console.Command{Kind: console.SetTime, UTCSeconds: 1700000000, Timezone: "Mars/Olympus"})
	assert.Equal(t, "Europe/Brussels", r.app.store.Timezone())
}

func TestSessionExpiryEndsRun(t *testing.T) {
	r := newRig(t, false)
	r.clock.Advance(180 * time.Second)
	r.app.Step()

	assert.True(t, r.app.power.Off())
	assert.Equal(t, 1, r.sleeper.n)
	assert.False(t, r.hw.hold.IsHigh())

	done := make(chan struct{})
	go func() {
		r.app.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after power off")
	}
}

func TestSessionExpiryStopsRunningMotor(t *testing.T) {
	r := newRig(t, false)
	r.clock.Advance(170 * time.Second)
	r.app.Execute(console.Command{Kind: console.Open})
	r.app.Step()
	require.True(t, r.hw.in2.IsHigh())
	require.True(t, r.app.moving)

	r.clock.Advance(10 * time.Second)
	r.app.Step()

	assert.True(t, r.app.power.Off())
	assert.Equal(t, motor.Off, r.app.motor.State())
	assert.Equal(t, motor.Stopped, r.app.motor.LastStop().Reason)
	assert.False(t, r.hw.in1.IsHigh())
	assert.False(t, r.hw.in2.IsHigh(), "bridge must be off before sleeping")
	assert.False(t, r.app.moving)
}

func TestPowerOffCommandStopsMotor(t *testing.T) {
	r := newRig(t, false)
	r.app.Execute(console.Command{Kind: console.Close})
	r.app.Step()
	require.True(t, r.hw.in1.IsHigh())

	r.app.Execute(console.Command{Kind: console.PowerOff})
	assert.True(t, r.app.power.Off())
	assert.False(t, r.hw.in1.IsHigh())
	assert.Equal(t, motor.Off, r.app.motor.State())
}

func TestStep_DisabledAlarmFlagIgnored(t *testing.T) {
	r := newRig(t, true)
	r.app.Execute(console.Command{Kind: console.SetMode, Mode: "fixedTime"})
	r.app.Execute(console.Command{Kind: console.Apply})
	r.app.Execute(console.Command{Kind: console.SetMode, Mode: "manual"})
	r.app.Execute(console.Command{Kind: console.Apply})

	r.bus.regs[0x0F] |= 0x03 // both alarms match while disabled
	r.app.Step()
	r.app.Step()
	assert.Equal(t, motor.Off, r.app.motor.State())
	assert.False(t, r.hw.in1.IsHigh())
	assert.False(t, r.hw.in2.IsHigh())
	assert.Zero(t, r.bus.regs[0x0F]&0x03, "stale flags acknowledged")
}

func TestStatus(t *testing.T) {
	r := newRig(t, false)
	s := r.app.Status()
	assert.True(t, strings.HasPrefix(s, "motor=off"), s)
	assert.Contains(t, s, "mode=manual")
	assert.Contains(t, s, "valid=false")
	assert.Contains(t, s, "battery=50%")
}

func TestDoorStatus(t *testing.T) {
	tests := []struct {
		stop motor.Stop
		want string
	}{
		{motor.Stop{Direction: motor.Raise, Reason: motor.Overload}, mqtt.DoorLifted},
		{motor.Stop{Direction: motor.Raise, Reason: motor.LooseRope}, mqtt.DoorLifted},
		{motor.Stop{Direction: motor.Lower, Reason: motor.Timeout}, mqtt.DoorLowered},
		{motor.Stop{Direction: motor.Lower, Reason: motor.Stopped}, mqtt.DoorStopped},
		{motor.Stop{Direction: motor.Raise, Reason: motor.SenseFault}, mqtt.DoorStopped},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, doorStatus(tt.stop), "%v", tt.stop)
	}
}
