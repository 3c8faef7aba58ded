//go:build linux

package hal

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// SystemClock implements WallClock on the kernel's realtime clock.
type SystemClock struct{}

// Now implements WallClock.Now.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Set implements WallClock.Set. Needs CAP_SYS_TIME.
func (SystemClock) Set(t time.Time) error {
	tv := unix.NsecToTimeval(t.UnixNano())
	if err := unix.Settimeofday(&tv); err != nil {
		return fmt.Errorf("settimeofday: %w", err)
	}
	return nil
}
