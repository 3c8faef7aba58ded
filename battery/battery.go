// Package battery estimates the pack voltage and remaining charge from a
// divided-down ADC channel.
package battery

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"coopdoor/hal"
)

const (
	// SampleCount readings are averaged per measurement.
	SampleCount = 10

	// CeilingMillivolts is where the ADC reference saturates; readings at or
	// above it are discarded.
	CeilingMillivolts = 3500

	maxRejects = 100
)

// ErrSaturated is returned when too many consecutive readings hit the ADC
// ceiling to form an average.
var ErrSaturated = errors.New("battery sense saturated")

// Chemistry selects the per-cell empty/full voltages.
type Chemistry int

const (
	Alkaline Chemistry = iota
	NiMH
)

func (c Chemistry) String() string {
	if c == NiMH {
		return "nimh"
	}
	return "alkaline"
}

// CellRange returns the empty and full cell voltage in mV.
func (c Chemistry) CellRange() (empty, full int) {
	if c == NiMH {
		return 1000, 1200
	}
	return 900, 1500
}

// ParseChemistry accepts "alkaline" or "nimh", case-insensitive.
func ParseChemistry(s string) (Chemistry, error) {
	switch strings.ToLower(s) {
	case "alkaline", "":
		return Alkaline, nil
	case "nimh":
		return NiMH, nil
	}
	return Alkaline, fmt.Errorf("unknown battery chemistry %q", s)
}

// Config describes the pack and its sense channel.
type Config struct {
	Channel      int     `yaml:"channel" env-default:"0"`
	DividerScale float64 `yaml:"divider_scale" env-default:"2"`
	Cells        int     `yaml:"cells" env-default:"4"`
	Chemistry    string  `yaml:"chemistry" env-default:"alkaline"`
}

// Monitor reads the pack voltage.
type Monitor struct {
	adc  hal.ADC
	cfg  Config
	chem Chemistry
	log  *zap.Logger
	last uint32
}

// New validates cfg and returns a Monitor.
func New(cfg Config, adc hal.ADC, log *zap.Logger) (*Monitor, error) {
	chem, err := ParseChemistry(cfg.Chemistry)
	if err != nil {
		return nil, err
	}
	if cfg.Cells < 1 {
		return nil, fmt.Errorf("battery cells must be at least 1, got %d", cfg.Cells)
	}
	if cfg.DividerScale <= 0 {
		cfg.DividerScale = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{adc: adc, cfg: cfg, chem: chem, log: log.Named("battery")}, nil
}

// Millivolts averages SampleCount unsaturated readings and returns the pack
// voltage.
func (m *Monitor) Millivolts() (uint32, error) {
	var sum uint64
	accepted, rejected := 0, 0
	for accepted < SampleCount {
		mv, err := m.adc.ReadMillivolts(m.cfg.Channel)
		if err != nil {
			return 0, fmt.Errorf("battery sense: %w", err)
		}
		if mv >= CeilingMillivolts {
			rejected++
			if rejected >= maxRejects {
				return 0, ErrSaturated
			}
			continue
		}
		sum += uint64(mv)
		accepted++
	}
	pack := uint32(float64(sum) * m.cfg.DividerScale / SampleCount)
	m.last = pack
	if rejected > 0 {
		m.log.Debug("rejected saturated readings", zap.Int("count", rejected))
	}
	return pack, nil
}

// Percent measures the pack and converts it to charge percent. The result
// is not clamped.
func (m *Monitor) Percent() (int, error) {
	mv, err := m.Millivolts()
	if err != nil {
		return 0, err
	}
	return Percent(m.chem, m.cfg.Cells, mv), nil
}

// Last returns the most recent successful pack measurement.
func (m *Monitor) Last() uint32 {
	return m.last
}

// Percent linearly maps the per-cell voltage between the chemistry's empty
// and full points. Values outside that range give results below 0 or above
// 100.
func Percent(chem Chemistry, cells int, packMillivolts uint32) int {
	if cells < 1 {
		cells = 1
	}
	cell := int(packMillivolts) / cells
	empty, full := chem.CellRange()
	return (cell - empty) * 100 / (full - empty)
}
