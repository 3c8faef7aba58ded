package hal

import (
	"fmt"
	"os"
)

const powerStatePath = "/sys/power/state"

// SysfsSleeper suspends the system through /sys/power/state.
type SysfsSleeper struct {
	Path  string
	State string
}

// NewSleeper returns a Sleeper for state ("mem", "freeze", ...). An empty
// state yields a sleeper that returns immediately.
func NewSleeper(state string) *SysfsSleeper {
	return &SysfsSleeper{Path: powerStatePath, State: state}
}

// Sleep implements Sleeper.Sleep. Returns after the system resumes.
func (s *SysfsSleeper) Sleep() error {
	if s.State == "" {
		return nil
	}
	if err := os.WriteFile(s.Path, []byte(s.State), 0); err != nil {
		return fmt.Errorf("suspend to %s: %w", s.State, err)
	}
	return nil
}
