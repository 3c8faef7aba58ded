package timectl

import (
	"fmt"
	"sort"
	"sync"
	"time"
	_ "time/tzdata" // minimal images ship without /usr/share/zoneinfo
)

// zones accepted from the configuration and the remote control channel.
var zones = map[string]struct{}{
	"UTC":               {},
	"Europe/Amsterdam":  {},
	"Europe/Berlin":     {},
	"Europe/Brussels":   {},
	"Europe/Dublin":     {},
	"Europe/Lisbon":     {},
	"Europe/London":     {},
	"Europe/Luxembourg": {},
	"Europe/Madrid":     {},
	"Europe/Paris":      {},
	"Europe/Rome":       {},
	"Europe/Vienna":     {},
	"Europe/Zurich":     {},
}

var (
	locMu    sync.Mutex
	locCache = map[string]*time.Location{}
)

// Zones lists the supported timezone identifiers.
func Zones() []string {
	out := make([]string, 0, len(zones))
	for z := range zones {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether tz can be applied.
func Supported(tz string) bool {
	_, ok := zones[tz]
	return ok
}

func loadZone(tz string) (*time.Location, error) {
	if !Supported(tz) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTimezone, tz)
	}

	locMu.Lock()
	defer locMu.Unlock()
	if loc, ok := locCache[tz]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	locCache[tz] = loc
	return loc, nil
}
