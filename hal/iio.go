package hal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IIO implements ADC on a Linux industrial-I/O device directory, e.g. an
// ADS1115 bound to the ads1015 driver.
type IIO struct {
	dir string
}

// NewIIO returns an ADC reading from dir.
func NewIIO(dir string) (*IIO, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("iio device: %w", err)
	}
	return &IIO{dir: dir}, nil
}

// ReadMillivolts implements ADC.ReadMillivolts. The IIO scale is mV per LSB.
func (a *IIO) ReadMillivolts(channel int) (uint32, error) {
	raw, err := a.readFloat(fmt.Sprintf("in_voltage%d_raw", channel))
	if err != nil {
		return 0, err
	}

	scale, err := a.readFloat(fmt.Sprintf("in_voltage%d_scale", channel))
	if err != nil {
		scale, err = a.readFloat("in_voltage_scale")
		if err != nil {
			scale = 1
		}
	}

	mv := raw * scale
	if mv < 0 {
		return 0, nil
	}
	return uint32(mv + 0.5), nil
}

func (a *IIO) readFloat(name string) (float64, error) {
	b, err := os.ReadFile(filepath.Join(a.dir, name))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}
