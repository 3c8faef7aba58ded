//go:build linux

package button

import (
	"context"
	"fmt"

	"github.com/kenshaw/evdev"
	"go.uber.org/zap"

	"coopdoor/door"
)

// Evdev reads buttons exposed by the gpio-keys driver as an input device.
type Evdev struct {
	*queue
	device *evdev.Evdev
	keys   map[int]door.Button
	cancel context.CancelFunc
}

// NewEvdev opens device and maps key codes to buttons.
func NewEvdev(device string, keys map[int]door.Button, log *zap.Logger) (*Evdev, error) {
	dev, err := evdev.OpenFile(device)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", device, err)
	}
	log.Info("button input device", zap.String("path", device), zap.String("name", dev.Name()))

	ctx, cancel := context.WithCancel(context.Background())
	e := &Evdev{
		queue:  newQueue(log),
		device: dev,
		keys:   keys,
		cancel: cancel,
	}
	go e.run(ctx)
	return e, nil
}

func (e *Evdev) run(ctx context.Context) {
	ch := e.device.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if event == nil {
				e.log.Warn("input device closed")
				return
			}
			key, ok := event.Type.(evdev.KeyType)
			if !ok || event.Value != 1 {
				continue
			}
			if b, ok := e.keys[int(key)]; ok {
				e.push(b)
			}
		}
	}
}

// Close implements Source.Close.
func (e *Evdev) Close() error {
	e.cancel()
	return e.device.Close()
}
