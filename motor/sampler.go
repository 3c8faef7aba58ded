package motor

import (
	"fmt"

	"coopdoor/hal"
)

// Sampler is a moving average over the last N current-sense readings.
type Sampler struct {
	adc     hal.ADC
	channel int
	scale   float64

	buf   []float64
	next  int
	count int
	sum   float64
}

// NewSampler averages size readings of channel, converted with
// milliampsPerMillivolt.
func NewSampler(adc hal.ADC, channel, size int, milliampsPerMillivolt float64) *Sampler {
	if size < 1 {
		size = 1
	}
	return &Sampler{
		adc:     adc,
		channel: channel,
		scale:   milliampsPerMillivolt,
		buf:     make([]float64, size),
	}
}

// Clear drops all readings.
func (s *Sampler) Clear() {
	s.next, s.count, s.sum = 0, 0, 0
}

// Add pushes one reading in mA, evicting the oldest when full.
func (s *Sampler) Add(milliamps float64) {
	if s.count == len(s.buf) {
		s.sum -= s.buf[s.next]
	} else {
		s.count++
	}
	s.buf[s.next] = milliamps
	s.sum += milliamps
	s.next = (s.next + 1) % len(s.buf)
}

// Sample reads the ADC once and adds the result.
func (s *Sampler) Sample() error {
	mv, err := s.adc.ReadMillivolts(s.channel)
	if err != nil {
		return fmt.Errorf("current sense: %w", err)
	}
	s.Add(float64(mv) * s.scale)
	return nil
}

// Average returns the mean of the held readings; false when empty.
func (s *Sampler) Average() (float64, bool) {
	if s.count == 0 {
		return 0, false
	}
	return s.sum / float64(s.count), true
}

// Full reports whether the window is completely populated.
func (s *Sampler) Full() bool {
	return s.count == len(s.buf)
}
