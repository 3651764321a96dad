// Package protocol implements the pure, stateless GRBL line classifier:
// status reports, probe reports and alarm codes in, structured values
// out. It never touches the Transport or CommandQueue directly.
package protocol

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mastercactapus/gcnc/coord"
)

// MachineState is the tagged variant of GRBL's reported machine status.
// ParseStatus decodes it from status reports; machine.Controller also
// sets its own copy directly on connect, alarm lines and disconnect.
type MachineState int

const (
	StateUnknown MachineState = iota
	StateIdle
	StateRun
	StateHold
	StateAlarm
	StateHome
	StateCheck
	StateDoor
	StateSleep
	StateDisconnected
)

func (s MachineState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRun:
		return "Run"
	case StateHold:
		return "Hold"
	case StateAlarm:
		return "Alarm"
	case StateHome:
		return "Home"
	case StateCheck:
		return "Check"
	case StateDoor:
		return "Door"
	case StateSleep:
		return "Sleep"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

func parseMachineState(s string) MachineState {
	switch {
	case strings.HasPrefix(s, "Idle"):
		return StateIdle
	case strings.HasPrefix(s, "Run"):
		return StateRun
	case strings.HasPrefix(s, "Hold"):
		return StateHold
	case strings.HasPrefix(s, "Alarm"):
		return StateAlarm
	case strings.HasPrefix(s, "Home"):
		return StateHome
	case strings.HasPrefix(s, "Check"):
		return StateCheck
	case strings.HasPrefix(s, "Door"):
		return StateDoor
	case strings.HasPrefix(s, "Sleep"):
		return StateSleep
	default:
		return StateUnknown
	}
}

// Status is a decoded `<STATE|MPos:x,y,z|...>` report. Feed is left at
// its zero value when neither an `F:` nor `FS:` tail field is present.
type Status struct {
	State MachineState
	Raw   string
	MPos  coord.Point
	WPos  coord.Point
	WCO   coord.Point
	Feed  float64
	Speed float64
}

// ParseStatus decodes a status report line. Per the resolved Open
// Question, any suffix after the mandatory MPos triple is accepted —
// both the `|F:f>` and `|FS:f,s>` tail shapes, and any field this parser
// doesn't recognize, are tolerated rather than rejected.
func ParseStatus(line string) (*Status, error) {
	data := strings.TrimSpace(line)
	if !strings.HasPrefix(data, "<") {
		return nil, errors.New("protocol: not a status report")
	}
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")

	parts := strings.Split(data, "|")
	if len(parts) == 0 {
		return nil, errors.New("protocol: empty status report")
	}

	st := &Status{Raw: line, State: parseMachineState(parts[0])}

	var haveMPos bool
	for _, field := range parts[1:] {
		kv := strings.SplitN(field, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], kv[1]

		var err error
		switch key {
		case "MPos":
			st.MPos, err = parseCoords(val)
			haveMPos = true
		case "WPos":
			st.WPos, err = parseCoords(val)
		case "WCO":
			st.WCO, err = parseCoords(val)
		case "F":
			st.Feed, err = strconv.ParseFloat(val, 64)
		case "FS":
			st.Feed, st.Speed, err = parseFeedSpeed(val)
		default:
			// unrecognized field, tolerated per the accept-any-suffix rule
		}
		if err != nil {
			return nil, err
		}
	}

	if !haveMPos {
		return nil, errors.New("protocol: status report missing MPos")
	}

	return st, nil
}

func parseCoords(data string) (coord.Point, error) {
	var p coord.Point
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return p, errors.New("protocol: expected 3 coordinate components")
	}
	var err error
	if p.X, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return p, err
	}
	if p.Y, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return p, err
	}
	if p.Z, err = strconv.ParseFloat(parts[2], 64); err != nil {
		return p, err
	}
	return p, nil
}

func parseFeedSpeed(data string) (feed, speed float64, err error) {
	parts := strings.SplitN(data, ",", 2)
	feed, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, err
	}
	if len(parts) == 2 {
		speed, err = strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, 0, err
		}
	}
	return feed, speed, nil
}
