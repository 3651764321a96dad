package protocol

import (
	"errors"
	"strings"

	"github.com/mastercactapus/gcnc/coord"
)

// ProbeReport is a decoded `[PRB:x,y,z:contact]` line.
type ProbeReport struct {
	Point   coord.Point
	Contact bool
}

// ParseProbeReport decodes a probe report line. Grounded on the
// teacher's bracket-and-colon stripping in parseProbe.
func ParseProbeReport(line string) (*ProbeReport, error) {
	data := strings.TrimSpace(line)
	data = strings.TrimPrefix(data, "[")
	data = strings.TrimSuffix(data, "]")

	parts := strings.Split(data, ":")
	if len(parts) < 3 || parts[0] != "PRB" {
		return nil, errors.New("protocol: not a probe report")
	}

	p, err := parseCoords(parts[1])
	if err != nil {
		return nil, err
	}

	return &ProbeReport{Point: p, Contact: parts[2] == "1"}, nil
}

// Classify reports what kind of line was received: "status", "probe",
// "ok", "error", "alarm", or "" for anything opaque. It never returns an
// error — an unparsable line is simply opaque, never fatal, per the
// codec's contract.
func Classify(line string) string {
	s := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(s, "<"):
		return "status"
	case strings.Contains(s, "[PRB"):
		return "probe"
	case strings.HasPrefix(s, "ALARM"):
		return "alarm"
	case strings.HasPrefix(s, "error"):
		return "error"
	case s == "ok" || strings.Contains(s, "ok"):
		return "ok"
	default:
		return ""
	}
}
