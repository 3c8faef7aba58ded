// Package motor drives the door winch through an H-bridge and supervises it
// purely from the current drawn. There are no position sensors: end of
// travel, slack rope, jams and a disconnected motor are all inferred from
// the filtered current.
package motor

import (
	"time"

	"go.uber.org/zap"

	"coopdoor/hal"
	"coopdoor/softtimer"
)

// Direction of travel.
type Direction int

const (
	None Direction = iota
	Raise
	Lower
)

func (d Direction) String() string {
	switch d {
	case Raise:
		return "raise"
	case Lower:
		return "lower"
	default:
		return "none"
	}
}

// State names the actuator states for status output.
type State int

const (
	Off State = iota
	StartRaise
	StartLower
	DeadTime
	Running
	RaisingUnderLoad
)

func (s State) String() string {
	switch s {
	case StartRaise:
		return "start-raise"
	case StartLower:
		return "start-lower"
	case DeadTime:
		return "dead-time"
	case Running:
		return "running"
	case RaisingUnderLoad:
		return "raising-under-load"
	default:
		return "off"
	}
}

// StopReason tells why the last activation ended.
type StopReason int

const (
	NotStopped StopReason = iota
	Timeout
	Overload
	NoCurrent
	LooseRope
	Stopped
	SenseFault
)

func (r StopReason) String() string {
	switch r {
	case Timeout:
		return "timeout"
	case Overload:
		return "overload"
	case NoCurrent:
		return "no-current"
	case LooseRope:
		return "loose-rope"
	case Stopped:
		return "stopped"
	case SenseFault:
		return "sense-fault"
	default:
		return "none"
	}
}

// Stop describes a finished activation.
type Stop struct {
	Direction Direction
	Reason    StopReason
	Milliamps float64 // filtered current at the time of the decision
}

// state is one variant of the actuator state machine. Each variant holds
// only the data that is meaningful while in it.
type state interface {
	name() State
}

type offState struct{}

type startState struct {
	dir Direction
}

type deadTimeState struct {
	dir    Direction
	settle softtimer.Timer
}

type runningState struct {
	dir     Direction
	timeout softtimer.Timer
}

// underLoadState is only reachable while raising.
type underLoadState struct {
	timeout   softtimer.Timer
	looseRope softtimer.Timer
}

func (offState) name() State       { return Off }
func (deadTimeState) name() State  { return DeadTime }
func (runningState) name() State   { return Running }
func (underLoadState) name() State { return RaisingUnderLoad }
func (s startState) name() State {
	if s.dir == Raise {
		return StartRaise
	}
	return StartLower
}

// Actuator is the motor state machine. All methods must be called from the
// control loop.
type Actuator struct {
	cfg     Config
	drive   Driver
	sampler *Sampler
	clock   softtimer.Clock
	log     *zap.Logger

	limits   Thresholds
	sampling softtimer.Timer
	state    state
	stopReq  bool
	last     Stop
}

// New returns an Actuator in Off. Initialize must be called before use.
func New(cfg Config, drive Driver, adc hal.ADC, clock softtimer.Clock, log *zap.Logger) *Actuator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Actuator{
		cfg:      cfg,
		drive:    drive,
		sampler:  NewSampler(adc, cfg.SenseChannel, cfg.FilterSize, cfg.MilliampsPerMillivolt),
		clock:    clock,
		log:      log.Named("motor"),
		limits:   cfg.baseThresholds(),
		sampling: softtimer.New(clock),
		state:    offState{},
	}
}

// Initialize de-energizes the motor and scales the current limits to the
// measured supply.
func (a *Actuator) Initialize(supplyMillivolts uint32) {
	a.drive.Drive(None)
	a.state = offState{}
	a.stopReq = false
	a.limits = ScaleThresholds(a.cfg.baseThresholds(), supplyMillivolts)
	a.log.Info("initialized",
		zap.Uint32("supply_mv", supplyMillivolts),
		zap.Float64("raising_underload_ma", a.limits.RaisingUnderload),
		zap.Float64("raising_overload_ma", a.limits.RaisingOverload),
		zap.Float64("lowering_overload_ma", a.limits.LoweringOverload),
		zap.Float64("no_current_ma", a.limits.NoCurrent))
}

// Thresholds returns the limits in effect.
func (a *Actuator) Thresholds() Thresholds {
	return a.limits
}

// OpenDoor requests a raise, restarting any activation in progress.
func (a *Actuator) OpenDoor() {
	a.request(Raise)
}

// CloseDoor requests a lower, restarting any activation in progress.
func (a *Actuator) CloseDoor() {
	a.request(Lower)
}

func (a *Actuator) request(dir Direction) {
	a.log.Info("request", zap.Stringer("direction", dir), zap.Stringer("from", a.State()))
	a.stopReq = false
	a.state = startState{dir: dir}
}

// Stop requests the motor off. It takes effect on the next Tick.
func (a *Actuator) Stop() {
	if _, off := a.state.(offState); off {
		return
	}
	a.stopReq = true
}

// Halt de-energizes the motor at once, for callers that cannot wait for the
// next Tick. It reports whether an activation was cut short.
func (a *Actuator) Halt() bool {
	a.stopReq = false
	if _, off := a.state.(offState); off {
		a.drive.Drive(None)
		return false
	}
	avg, _ := a.sampler.Average()
	a.halt(Stopped, avg)
	return true
}

// State returns the current state.
func (a *Actuator) State() State {
	return a.state.name()
}

// Direction returns the direction of the activation in progress, None when
// the motor is off.
func (a *Actuator) Direction() Direction {
	switch s := a.state.(type) {
	case startState:
		return s.dir
	case deadTimeState:
		return s.dir
	case runningState:
		return s.dir
	case underLoadState:
		return Raise
	default:
		return None
	}
}

// LastStop returns how the most recent activation ended.
func (a *Actuator) LastStop() Stop {
	return a.last
}

// Tick advances the state machine by at most one transition and reports
// whether the motor is still energized. It never blocks.
func (a *Actuator) Tick() bool {
	if a.stopReq {
		a.stopReq = false
		avg, _ := a.sampler.Average()
		a.halt(Stopped, avg)
		return false
	}

	switch s := a.state.(type) {
	case offState:
		return false

	case startState:
		a.drive.Drive(s.dir)
		a.sampler.Clear()
		settle := softtimer.New(a.clock)
		settle.Start(a.cfg.DeadTime)
		a.state = deadTimeState{dir: s.dir, settle: settle}
		return true

	case deadTimeState:
		if s.settle.Expired() {
			timeout := softtimer.New(a.clock)
			timeout.Start(a.cfg.RunTimeout)
			a.sampling.Start(a.cfg.SamplePeriod)
			a.state = runningState{dir: s.dir, timeout: timeout}
		}
		return true

	case runningState:
		return a.tickRunning(s)

	case underLoadState:
		return a.tickUnderLoad(s)
	}
	return false
}

func (a *Actuator) tickRunning(s runningState) bool {
	if s.timeout.Expired() {
		avg, _ := a.sampler.Average()
		a.halt(Timeout, avg)
		return false
	}

	avg, ok, err := a.sample()
	if err != nil {
		a.log.Error("current sense failed", zap.Error(err))
		a.halt(SenseFault, 0)
		return false
	}
	if !ok {
		return true
	}

	switch s.dir {
	case Raise:
		switch {
		case avg > a.limits.RaisingOverload:
			a.halt(Overload, avg)
			return false
		case avg < a.limits.NoCurrent:
			a.halt(NoCurrent, avg)
			return false
		case avg < a.limits.RaisingUnderload:
			looseRope := softtimer.New(a.clock)
			looseRope.Start(a.cfg.LooseRopeTimeout)
			a.log.Debug("raising under load", zap.Float64("ma", avg))
			a.state = underLoadState{timeout: s.timeout, looseRope: looseRope}
		}
	case Lower:
		switch {
		case avg > a.limits.LoweringOverload:
			a.halt(Overload, avg)
			return false
		case avg < a.limits.NoCurrent:
			a.halt(NoCurrent, avg)
			return false
		}
	}
	return true
}

func (a *Actuator) tickUnderLoad(s underLoadState) bool {
	if s.looseRope.Expired() {
		avg, _ := a.sampler.Average()
		a.halt(LooseRope, avg)
		return false
	}

	avg, ok, err := a.sample()
	if err != nil {
		a.log.Error("current sense failed", zap.Error(err))
		a.halt(SenseFault, 0)
		return false
	}
	if !ok {
		return true
	}

	switch {
	case avg < a.limits.NoCurrent:
		a.halt(NoCurrent, avg)
		return false
	case avg > a.limits.RaisingUnderload:
		s.timeout.Start(a.cfg.RunTimeout)
		a.log.Debug("rope loaded", zap.Float64("ma", avg))
		a.state = runningState{dir: Raise, timeout: s.timeout}
	}
	return true
}

// sample takes a reading when the sampling period has elapsed and returns
// the filtered current. ok is false when no new reading was due.
func (a *Actuator) sample() (avg float64, ok bool, err error) {
	if !a.sampling.Expired() {
		return 0, false, nil
	}
	a.sampling.Repeat()
	if err := a.sampler.Sample(); err != nil {
		return 0, false, err
	}
	avg, ok = a.sampler.Average()
	return avg, ok, nil
}

func (a *Actuator) halt(reason StopReason, milliamps float64) {
	dir := a.Direction()
	a.drive.Drive(None)
	a.sampling.Expire()
	a.state = offState{}
	a.last = Stop{Direction: dir, Reason: reason, Milliamps: milliamps}
	a.log.Info("stopped",
		zap.Stringer("direction", dir),
		zap.Stringer("reason", reason),
		zap.Float64("ma", milliamps))
}

// Demo raises the door, then lowers it, each to completion. It blocks and
// is meant for bring-up only.
func (a *Actuator) Demo(poll time.Duration) (raise, lower Stop) {
	a.OpenDoor()
	for a.Tick() {
		time.Sleep(poll)
	}
	raise = a.LastStop()

	a.CloseDoor()
	for a.Tick() {
		time.Sleep(poll)
	}
	return raise, a.LastStop()
}
