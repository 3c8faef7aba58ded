package motor

import "time"

// Config holds the H-bridge wiring and the supervision constants.
type Config struct {
	In1Pin *int `yaml:"in1_pin"` // H-bridge IN1, nil = not wired
	In2Pin *int `yaml:"in2_pin"` // H-bridge IN2

	SenseChannel          int           `yaml:"sense_channel" env-default:"1"`
	MilliampsPerMillivolt float64       `yaml:"milliamps_per_millivolt" env-default:"1"`
	SamplePeriod          time.Duration `yaml:"sample_period" env-default:"50ms"`
	FilterSize            int           `yaml:"filter_size" env-default:"20"`

	DeadTime         time.Duration `yaml:"dead_time" env-default:"500ms"`
	RunTimeout       time.Duration `yaml:"run_timeout" env-default:"25s"`
	LooseRopeTimeout time.Duration `yaml:"loose_rope_timeout" env-default:"5s"`

	// Base limits in mA at ReferenceMillivolts supply.
	RaisingUnderloadMA float64 `yaml:"raising_underload_ma" env-default:"200"`
	RaisingOverloadMA  float64 `yaml:"raising_overload_ma" env-default:"800"`
	LoweringOverloadMA float64 `yaml:"lowering_overload_ma" env-default:"500"`
	NoCurrentMA        float64 `yaml:"no_current_ma" env-default:"30"`
}

// DefaultConfig returns the values used when no configuration file sets them.
func DefaultConfig() Config {
	return Config{
		SenseChannel:          1,
		MilliampsPerMillivolt: 1,
		SamplePeriod:          50 * time.Millisecond,
		FilterSize:            20,
		DeadTime:              500 * time.Millisecond,
		RunTimeout:            25 * time.Second,
		LooseRopeTimeout:      5 * time.Second,
		RaisingUnderloadMA:    200,
		RaisingOverloadMA:     800,
		LoweringOverloadMA:    500,
		NoCurrentMA:           30,
	}
}

func (c Config) baseThresholds() Thresholds {
	return Thresholds{
		RaisingUnderload: c.RaisingUnderloadMA,
		RaisingOverload:  c.RaisingOverloadMA,
		LoweringOverload: c.LoweringOverloadMA,
		NoCurrent:        c.NoCurrentMA,
	}
}
