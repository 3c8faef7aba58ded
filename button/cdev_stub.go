//go:build !linux

package button

import (
	"time"

	"go.uber.org/zap"

	"coopdoor/door"
	"coopdoor/hal"
)

// Cdev is a stub for non-linux platforms.
type Cdev struct {
	*queue
}

// NewCdev returns hal.ErrNotSupported on non-linux platforms.
func NewCdev(chip string, pins map[door.Button]*int, debounce time.Duration, log *zap.Logger) (*Cdev, error) {
	return nil, hal.ErrNotSupported
}

func (c *Cdev) Close() error { return nil }
