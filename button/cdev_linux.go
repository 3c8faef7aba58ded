//go:build linux

package button

import (
	"errors"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/zap"

	"coopdoor/door"
)

// Cdev reads one active-low GPIO line per button through the character
// device, using the kernel's debounce.
type Cdev struct {
	*queue
	lines []*gpiocdev.Line
}

// NewCdev requests a line for every configured pin.
func NewCdev(chip string, pins map[door.Button]*int, debounce time.Duration, log *zap.Logger) (*Cdev, error) {
	if chip == "" {
		chip = "gpiochip0"
	}
	c := &Cdev{queue: newQueue(log)}

	for b, pin := range pins {
		if pin == nil {
			continue
		}
		b := b
		line, err := gpiocdev.RequestLine(chip, *pin,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithDebounce(debounce),
			gpiocdev.WithConsumer("coopdoor"),
			gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
				c.push(b)
			}))
		if err != nil {
			c.Close()
			return nil, err
		}
		c.lines = append(c.lines, line)
		log.Info("button line", zap.Stringer("button", b), zap.Int("pin", *pin))
	}
	return c, nil
}

// Close implements Source.Close.
func (c *Cdev) Close() error {
	var errs []error
	for _, l := range c.lines {
		errs = append(errs, l.Close())
	}
	c.lines = nil
	return errors.Join(errs...)
}
