// Package rtc drives the DS1337 / PT7C4337 real-time clock: BCD time of day
// in UTC, two daily alarms and the oscillator-stop flag.
package rtc

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coopdoor/hal"
)

// Address is the fixed I2C address of the DS1337.
const Address = 0x68

const (
	regSeconds    = 0x00
	regAlarm1Secs = 0x07
	regAlarm2Mins = 0x0B
	regControl    = 0x0E
	regStatus     = 0x0F
)

const (
	ctrlNotEOSC = 7
	ctrlINTCN   = 2
	ctrlA2IE    = 1
	ctrlA1IE    = 0

	statusOSF = 7
	statusA2F = 1
	statusA1F = 0

	hour12       = 6 // 12 hour mode, bit 5 is then PM
	hourPM       = 5
	monthCentury = 7

	alarmMask = 0x80 // AxMy bit in every alarm register
)

// Slot is one of the two alarm channels.
type Slot int

const (
	// Alarm1 opens the door.
	Alarm1 Slot = iota + 1
	// Alarm2 closes the door.
	Alarm2
)

func (s Slot) String() string {
	switch s {
	case Alarm1:
		return "alarm1"
	case Alarm2:
		return "alarm2"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// ErrBadSlot is returned for a Slot other than Alarm1 or Alarm2.
var ErrBadSlot = errors.New("invalid alarm slot")

// DS1337 is the RTC driver.
type DS1337 struct {
	bus hal.Bus
	log *zap.Logger
}

// New returns a driver on bus.
func New(bus hal.Bus, log *zap.Logger) *DS1337 {
	return &DS1337{bus: bus, log: log.Named("rtc")}
}

// Present reports whether the chip acknowledges its address.
func (d *DS1337) Present() bool {
	return d.bus.Detect(Address)
}

// TimeValid reports whether the oscillator ran without interruption since
// the time was last set.
func (d *DS1337) TimeValid() (bool, error) {
	status, err := d.readRegister(regStatus)
	if err != nil {
		return false, err
	}
	if bitSet(status, statusOSF) {
		d.log.Warn("oscillator stopped, time not valid")
		return false, nil
	}
	return true, nil
}

// Time reads the current UTC time.
func (d *DS1337) Time() (time.Time, error) {
	b, err := d.bus.ReadRegisters(Address, regSeconds, 7)
	if err != nil {
		return time.Time{}, fmt.Errorf("read time: %w", err)
	}
	year := 2000 + int(decodeBCD(b[6]))
	if bitSet(b[5], monthCentury) {
		year += 100
	}
	t := time.Date(
		year,
		time.Month(decodeBCD(b[5]&0x1F)),
		int(decodeBCD(b[4]&0x3F)),
		decodeHour(b[2]),
		int(decodeBCD(b[1]&0x7F)),
		int(decodeBCD(b[0]&0x7F)),
		0, time.UTC)
	return t, nil
}

// decodeHour converts an hours register in either 12 or 24 hour mode.
func decodeHour(b byte) int {
	if !bitSet(b, hour12) {
		return int(decodeBCD(b & 0x3F))
	}
	h := int(decodeBCD(b&0x1F)) % 12
	if bitSet(b, hourPM) {
		h += 12
	}
	return h
}

// SetTime writes t (converted to UTC) and clears the oscillator-stop flag.
func (d *DS1337) SetTime(t time.Time) error {
	t = t.UTC()
	if t.Year() < 2000 || t.Year() > 2099 {
		return fmt.Errorf("set time: year %d out of range", t.Year())
	}

	if err := d.setRegisterBit(regControl, ctrlNotEOSC, true); err != nil {
		return fmt.Errorf("stop oscillator: %w", err)
	}

	data := []byte{
		encodeBCD(uint8(t.Second())),
		encodeBCD(uint8(t.Minute())),
		encodeBCD(uint8(t.Hour())),
		encodeBCD(uint8(t.Weekday()) + 1),
		encodeBCD(uint8(t.Day())),
		encodeBCD(uint8(t.Month())),
		encodeBCD(uint8(t.Year() % 100)),
	}
	if err := d.bus.WriteRegisters(Address, regSeconds, data); err != nil {
		return fmt.Errorf("write time: %w", err)
	}

	if err := d.setRegisterBit(regControl, ctrlNotEOSC, false); err != nil {
		return fmt.Errorf("start oscillator: %w", err)
	}
	if err := d.setRegisterBit(regStatus, statusOSF, false); err != nil {
		return fmt.Errorf("clear OSF: %w", err)
	}
	d.log.Info("time set", zap.Time("utc", t))
	return nil
}

// EnableSquareWave switches the SQW/INTB output between the square wave and
// the alarm interrupt.
func (d *DS1337) EnableSquareWave(enable bool) error {
	return d.setRegisterBit(regControl, ctrlINTCN, !enable)
}

// SetDailyAlarm programs slot to fire once a day at hour:minute UTC and
// enables its interrupt.
func (d *DS1337) SetDailyAlarm(slot Slot, hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("alarm %02d:%02d out of range", hour, minute)
	}

	var (
		reg  uint8
		data []byte
		ie   uint8
	)
	switch slot {
	case Alarm1:
		// seconds, minutes, hours match; day/date ignored
		reg, ie = regAlarm1Secs, ctrlA1IE
		data = []byte{encodeBCD(0), encodeBCD(uint8(minute)), encodeBCD(uint8(hour)), alarmMask | 1}
	case Alarm2:
		reg, ie = regAlarm2Mins, ctrlA2IE
		data = []byte{encodeBCD(uint8(minute)), encodeBCD(uint8(hour)), alarmMask | 1}
	default:
		return ErrBadSlot
	}

	if err := d.bus.WriteRegisters(Address, reg, data); err != nil {
		return fmt.Errorf("write %s: %w", slot, err)
	}
	if err := d.setRegisterBit(regControl, ie, true); err != nil {
		return fmt.Errorf("enable %s: %w", slot, err)
	}
	d.log.Debug("alarm programmed", zap.Stringer("slot", slot), zap.Int("hour", hour), zap.Int("minute", minute))
	return nil
}

// Alarm reads back the UTC hour and minute of slot and whether its
// interrupt is enabled.
func (d *DS1337) Alarm(slot Slot) (hour, minute int, enabled bool, err error) {
	var (
		b  []byte
		ie uint8
	)
	switch slot {
	case Alarm1:
		b, err = d.bus.ReadRegisters(Address, regAlarm1Secs+1, 2)
		ie = ctrlA1IE
	case Alarm2:
		b, err = d.bus.ReadRegisters(Address, regAlarm2Mins, 2)
		ie = ctrlA2IE
	default:
		return 0, 0, false, ErrBadSlot
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("read %s: %w", slot, err)
	}
	ctrl, err := d.readRegister(regControl)
	if err != nil {
		return 0, 0, false, err
	}
	return decodeHour(b[1]), int(decodeBCD(b[0] & 0x7F)), bitSet(ctrl, ie), nil
}

// DisableAlarm clears the interrupt enable of slot and its pending flag.
// The match logic keeps running, so the flag can rise again later.
func (d *DS1337) DisableAlarm(slot Slot) error {
	var ie uint8
	switch slot {
	case Alarm1:
		ie = ctrlA1IE
	case Alarm2:
		ie = ctrlA2IE
	default:
		return ErrBadSlot
	}
	if err := d.setRegisterBit(regControl, ie, false); err != nil {
		return err
	}
	return d.AcknowledgeAlarm(slot)
}

// AlarmTriggered reads the alarm flag of slot.
func (d *DS1337) AlarmTriggered(slot Slot) (bool, error) {
	bit, err := flagBit(slot)
	if err != nil {
		return false, err
	}
	status, err := d.readRegister(regStatus)
	if err != nil {
		return false, err
	}
	return bitSet(status, bit), nil
}

// AcknowledgeAlarm clears the alarm flag of slot.
func (d *DS1337) AcknowledgeAlarm(slot Slot) error {
	bit, err := flagBit(slot)
	if err != nil {
		return err
	}
	return d.setRegisterBit(regStatus, bit, false)
}

func flagBit(slot Slot) (uint8, error) {
	switch slot {
	case Alarm1:
		return statusA1F, nil
	case Alarm2:
		return statusA2F, nil
	default:
		return 0, ErrBadSlot
	}
}

func (d *DS1337) readRegister(reg uint8) (uint8, error) {
	b, err := d.bus.ReadRegisters(Address, reg, 1)
	if err != nil {
		return 0, fmt.Errorf("read register 0x%02x: %w", reg, err)
	}
	return b[0], nil
}

func (d *DS1337) setRegisterBit(reg, bit uint8, value bool) error {
	v, err := d.readRegister(reg)
	if err != nil {
		return err
	}
	if value {
		v |= 1 << bit
	} else {
		v &^= 1 << bit
	}
	return d.bus.WriteRegisters(Address, reg, []byte{v})
}

func bitSet(v, bit uint8) bool {
	return v&(1<<bit) != 0
}

func decodeBCD(b uint8) uint8 {
	return (b>>4)*10 + b&0x0F
}

func encodeBCD(v uint8) uint8 {
	return (v/10)<<4 | v%10
}
