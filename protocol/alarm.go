package protocol

import (
	"errors"
	"strconv"
	"strings"
)

// Alarm is a decoded `ALARM:<n>` line.
type Alarm struct {
	Code    int
	Message string
}

var alarmMessages = map[int]string{
	1: "Hard limit triggered.",
	2: "Travel exceeded during a jog or G-code motion.",
	3: "Reset while in motion; position lost.",
	4: "Probe not in expected initial state.",
	5: "Probe did not contact the workpiece.",
	6: "Homing failed to clear the limit switch.",
	7: "Safety door was opened during a motion.",
	8: "Homing failed to clear the limit switch on retract.",
	9: "Homing failed to find the limit switch.",
}

// ParseAlarm decodes an `ALARM:<n>` line. n outside 1..9 is still
// returned with a generic message, since GRBL forks occasionally add
// codes this host doesn't have a fixed string for.
func ParseAlarm(line string) (*Alarm, error) {
	data := strings.TrimSpace(line)
	if !strings.HasPrefix(data, "ALARM:") {
		return nil, errors.New("protocol: not an alarm line")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(data, "ALARM:"))
	if err != nil {
		return nil, err
	}
	msg, ok := alarmMessages[n]
	if !ok {
		msg = "Unrecognized alarm code."
	}
	return &Alarm{Code: n, Message: msg}, nil
}
