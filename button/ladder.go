package button

import (
	"time"

	"go.uber.org/zap"

	"coopdoor/door"
	"coopdoor/hal"
	"coopdoor/softtimer"
)

// LadderConfig describes buttons on a resistor ladder read by one ADC
// channel. A reading below DownMax is Down, below StandbyMax is Standby,
// below UpMax is Up, and anything higher is released.
type LadderConfig struct {
	Channel    int           `yaml:"channel" env-default:"2"`
	DownMax    uint32        `yaml:"down_max_mv" env-default:"1100"`
	StandbyMax uint32        `yaml:"standby_max_mv" env-default:"2000"`
	UpMax      uint32        `yaml:"up_max_mv" env-default:"2600"`
	Debounce   time.Duration `yaml:"debounce" env-default:"50ms"`
}

// Ladder polls a resistor ladder. A level must be stable for the debounce
// time before it counts.
type Ladder struct {
	cfg LadderConfig
	adc hal.ADC
	log *zap.Logger

	debounce softtimer.Timer
	bouncing door.Button
	stable   door.Button
}

// NewLadder returns a Ladder reading adc.
func NewLadder(cfg LadderConfig, adc hal.ADC, clock softtimer.Clock, log *zap.Logger) *Ladder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ladder{
		cfg:      cfg,
		adc:      adc,
		log:      log,
		debounce: softtimer.New(clock),
	}
}

// Classify maps a ladder voltage to a button; 0 means released.
func (l *Ladder) Classify(mv uint32) door.Button {
	switch {
	case mv < l.cfg.DownMax:
		return door.Down
	case mv < l.cfg.StandbyMax:
		return door.Standby
	case mv < l.cfg.UpMax:
		return door.Up
	default:
		return 0
	}
}

// Poll implements Source.Poll. It reports each debounced press once.
func (l *Ladder) Poll() (door.Button, bool) {
	mv, err := l.adc.ReadMillivolts(l.cfg.Channel)
	if err != nil {
		l.log.Debug("ladder read failed", zap.Error(err))
		return 0, false
	}

	b := l.Classify(mv)
	if b != l.bouncing {
		l.debounce.Start(l.cfg.Debounce)
	}
	l.bouncing = b

	if !l.debounce.Expired() || l.bouncing == l.stable {
		return 0, false
	}
	l.stable = l.bouncing
	if l.stable == 0 {
		return 0, false
	}
	return l.stable, true
}

// Close implements Source.Close.
func (l *Ladder) Close() error {
	return nil
}
