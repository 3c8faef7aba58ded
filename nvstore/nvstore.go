// Package nvstore persists the user settings that survive power cycles:
// location, fixed open/close times, door control mode and timezone.
package nvstore

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"coopdoor/door"
	"coopdoor/timectl"
)

// DefaultTimezone is applied when the file names none.
const DefaultTimezone = "Europe/Brussels"

// Settings is the on-disk layout.
type Settings struct {
	Latitude    float64 `yaml:"latitude"`
	Longitude   float64 `yaml:"longitude"`
	OpenTime    string  `yaml:"open_time"`  // "HH:MM" local
	CloseTime   string  `yaml:"close_time"` // "HH:MM" local
	DoorControl string  `yaml:"door_control"`
	Timezone    string  `yaml:"timezone"`
}

func defaults() Settings {
	return Settings{
		OpenTime:    "00:00",
		CloseTime:   "00:00",
		DoorControl: door.Manual.String(),
		Timezone:    DefaultTimezone,
	}
}

// Store holds validated settings backed by a YAML file.
type Store struct {
	path string
	log  *zap.Logger
	s    Settings

	mode   door.Mode
	openH  int
	openM  int
	closeH int
	closeM int
}

// Open loads path. A missing file yields defaults; invalid entries are
// replaced by their defaults and logged.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	st := &Store{path: path, log: log.Named("nvstore")}
	st.apply(defaults())

	data, err := ioutil.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		st.log.Info("no settings file, using defaults", zap.String("path", path))
		return st, nil
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	st.load(loaded)
	return st, nil
}

func (st *Store) load(in Settings) {
	check := func(key string, err error) {
		if err != nil {
			st.log.Warn("invalid setting ignored", zap.String("key", key), zap.Error(err))
		}
	}
	check("location", st.SetGeoLocation(in.Latitude, in.Longitude))
	if in.OpenTime != "" {
		check("open_time", st.SetFixedOpenTime(in.OpenTime))
	}
	if in.CloseTime != "" {
		check("close_time", st.SetFixedCloseTime(in.CloseTime))
	}
	if in.DoorControl != "" {
		check("door_control", st.SetDoorControlMode(in.DoorControl))
	}
	if in.Timezone != "" {
		check("timezone", st.SetTimezone(in.Timezone))
	}
}

// apply installs already valid settings.
func (st *Store) apply(s Settings) {
	st.s = s
	st.mode, _ = door.ParseMode(s.DoorControl)
	st.openH, st.openM, _ = ParseClock(s.OpenTime)
	st.closeH, st.closeM, _ = ParseClock(s.CloseTime)
}

// Settings returns a copy of the current values.
func (st *Store) Settings() Settings {
	return st.s
}

// DoorControlMode implements door.Settings.
func (st *Store) DoorControlMode() door.Mode {
	return st.mode
}

// GeoLocation implements door.Settings.
func (st *Store) GeoLocation() (lat, lon float64) {
	return st.s.Latitude, st.s.Longitude
}

// FixedOpenTime implements door.Settings.
func (st *Store) FixedOpenTime() (hour, minute int) {
	return st.openH, st.openM
}

// FixedCloseTime implements door.Settings.
func (st *Store) FixedCloseTime() (hour, minute int) {
	return st.closeH, st.closeM
}

// Timezone returns the configured timezone identifier.
func (st *Store) Timezone() string {
	return st.s.Timezone
}

// SetGeoLocation stores a location in degrees, north and east positive.
func (st *Store) SetGeoLocation(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude out of range: %g", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude out of range: %g", lon)
	}
	st.s.Latitude, st.s.Longitude = lat, lon
	return nil
}

// SetFixedOpenTime stores the local opening time, "HH:MM".
func (st *Store) SetFixedOpenTime(hhmm string) error {
	h, m, err := ParseClock(hhmm)
	if err != nil {
		return err
	}
	st.s.OpenTime, st.openH, st.openM = hhmm, h, m
	return nil
}

// SetFixedCloseTime stores the local closing time, "HH:MM".
func (st *Store) SetFixedCloseTime(hhmm string) error {
	h, m, err := ParseClock(hhmm)
	if err != nil {
		return err
	}
	st.s.CloseTime, st.closeH, st.closeM = hhmm, h, m
	return nil
}

// SetDoorControlMode stores "manual", "fixedTime" or "sun".
func (st *Store) SetDoorControlMode(mode string) error {
	m, err := door.ParseMode(mode)
	if err != nil {
		return err
	}
	st.s.DoorControl, st.mode = mode, m
	return nil
}

// SetTimezone stores a supported timezone identifier.
func (st *Store) SetTimezone(tz string) error {
	if !timectl.Supported(tz) {
		return fmt.Errorf("%w: %q", timectl.ErrUnsupportedTimezone, tz)
	}
	st.s.Timezone = tz
	return nil
}

// Save writes the settings atomically.
func (st *Store) Save() error {
	data, err := yaml.Marshal(st.s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(st.path)
	tmp, err := ioutil.TempFile(dir, ".settings-*")
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), st.path); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	st.log.Info("settings saved", zap.String("path", st.path))
	return nil
}

// ParseClock parses a strict "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	if len(s) != 5 || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(s[:2])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(s[3:])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	if hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour out of range in %q", s)
	}
	if minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute out of range in %q", s)
	}
	return hour, minute, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
