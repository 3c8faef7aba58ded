//go:build !linux

package button

import (
	"go.uber.org/zap"

	"coopdoor/door"
	"coopdoor/hal"
)

// Evdev is a stub for non-linux platforms.
type Evdev struct {
	*queue
}

// NewEvdev returns hal.ErrNotSupported on non-linux platforms.
func NewEvdev(device string, keys map[int]door.Button, log *zap.Logger) (*Evdev, error) {
	return nil, hal.ErrNotSupported
}

func (e *Evdev) Close() error { return nil }
