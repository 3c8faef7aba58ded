package console

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the command verb.
type Kind int

const (
	Open Kind = iota + 1
	Close
	Stop
	SetTime
	SetMode
	SetLocation
	SetOpenTime
	SetCloseTime
	Apply
	Status
	PowerOff
)

var kindNames = map[Kind]string{
	Open:         "open",
	Close:        "close",
	Stop:         "stop",
	SetTime:      "time",
	SetMode:      "mode",
	SetLocation:  "location",
	SetOpenTime:  "opentime",
	SetCloseTime: "closetime",
	Apply:        "apply",
	Status:       "status",
	PowerOff:     "poweroff",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Command is one request for the control loop. Only the fields used by
// Kind are set.
type Command struct {
	Kind Kind

	UTCSeconds int64  // SetTime
	Timezone   string // SetTime
	Mode       string // SetMode
	Latitude   float64
	Longitude  float64
	Clock      string // SetOpenTime, SetCloseTime: "HH:MM"
}

func (c Command) String() string {
	switch c.Kind {
	case SetTime:
		return fmt.Sprintf("time %d %s", c.UTCSeconds, c.Timezone)
	case SetMode:
		return "mode " + c.Mode
	case SetLocation:
		return fmt.Sprintf("location %g %g", c.Latitude, c.Longitude)
	case SetOpenTime, SetCloseTime:
		return c.Kind.String() + " " + c.Clock
	default:
		return c.Kind.String()
	}
}

// Parse parses a command line.
// Command format:
//
//	open | close | stop            - move or stop the door
//	time <utc-seconds> <timezone>  - set the clock
//	mode <manual|fixedTime|sun>    - door control mode
//	location <lat> <lon>           - degrees, north and east positive
//	opentime HH:MM                 - fixed opening time, local
//	closetime HH:MM                - fixed closing time, local
//	apply                          - save settings and re-arm alarms
//	status                         - report state
//	poweroff                       - end the session now
//
// Values are only checked for syntax here; range checks belong to the
// settings store.
func Parse(line string) (Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	need := func(n int, usage string) error {
		if len(args) != n {
			return fmt.Errorf("%s: usage: %s", cmd, usage)
		}
		return nil
	}

	switch cmd {
	case "open", "up":
		return Command{Kind: Open}, nil
	case "close", "down":
		return Command{Kind: Close}, nil
	case "stop", "standby":
		return Command{Kind: Stop}, nil
	case "apply":
		return Command{Kind: Apply}, nil
	case "status":
		return Command{Kind: Status}, nil
	case "poweroff":
		return Command{Kind: PowerOff}, nil

	case "time":
		if err := need(2, "time <utc-seconds> <timezone>"); err != nil {
			return Command{}, err
		}
		utc, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || utc < 0 {
			return Command{}, fmt.Errorf("invalid utc seconds: %s", args[0])
		}
		return Command{Kind: SetTime, UTCSeconds: utc, Timezone: args[1]}, nil

	case "mode":
		if err := need(1, "mode <manual|fixedTime|sun>"); err != nil {
			return Command{}, err
		}
		return Command{Kind: SetMode, Mode: args[0]}, nil

	case "location":
		if err := need(2, "location <lat> <lon>"); err != nil {
			return Command{}, err
		}
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return Command{}, fmt.Errorf("invalid latitude: %s", args[0])
		}
		lon, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return Command{}, fmt.Errorf("invalid longitude: %s", args[1])
		}
		return Command{Kind: SetLocation, Latitude: lat, Longitude: lon}, nil

	case "opentime", "closetime":
		if err := need(1, cmd+" HH:MM"); err != nil {
			return Command{}, err
		}
		kind := SetOpenTime
		if cmd == "closetime" {
			kind = SetCloseTime
		}
		return Command{Kind: kind, Clock: args[0]}, nil

	default:
		return Command{}, fmt.Errorf("unknown command: %s", cmd)
	}
}
