//go:build !linux

package hal

import "time"

// SystemClock reads the host clock; setting it is not supported here.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Set(t time.Time) error { return ErrNotSupported }
