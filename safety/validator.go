// Package safety implements the SafetyValidator: a pure function that
// gates every outgoing line against soft limits, feed caps and the
// unsafe-but-legal command policy before it ever reaches the
// CommandQueue.
package safety

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mastercactapus/gcnc/coord"
)

// Verdict is the tagged result of Validate: exactly one of Valid, a
// Warn (accepted, but the caller should surface the message), or an
// Invalid (rejected).
type Verdict struct {
	Kind    VerdictKind
	Message string
}

type VerdictKind int

const (
	Valid VerdictKind = iota
	Warn
	Invalid
)

func (v Verdict) Accepted() bool { return v.Kind != Invalid }

var (
	rxWord        = regexp.MustCompile(`[A-Za-z][0-9.+-]+`)
	unsafePrefixes = []string{"M3", "M4", "M5", "M7", "M8", "M9", "G38.2", "G38.3", "G38.4", "G38.5"}
)

// Validator applies the five ordered rules from the spec to a single
// outgoing line, given the current soft/speed limits and machine
// position (needed to project a jog's always-relative delta).
type Validator struct {
	Limits      coord.SoftLimits
	Speed       coord.SpeedLimits
	CurrentMPos coord.Point
}

// New constructs a Validator with the given limits.
func New(limits coord.SoftLimits, speed coord.SpeedLimits) *Validator {
	return &Validator{Limits: limits, Speed: speed}
}

// Validate applies the ordered rule set to line and returns a Verdict.
// It is a pure function of the Validator's current fields — it never
// mutates anything and never blocks.
func (v *Validator) Validate(line string) Verdict {
	trimmed := strings.TrimSpace(line)

	// Rule 1: non-empty after trim.
	if trimmed == "" {
		return Verdict{Kind: Invalid, Message: "empty command"}
	}

	upper := strings.ToUpper(trimmed)

	// Rule 2: unsafe-but-legal prefixes are warned, not blocked.
	for _, prefix := range unsafePrefixes {
		if strings.HasPrefix(upper, prefix) {
			return Verdict{Kind: Warn, Message: "unsafe-but-legal command: " + trimmed}
		}
	}

	fields := parseFields(upper)

	// Rule 3: G0/G1/G2/G3 — coordinate and feed caps.
	if isMotionPrefix(upper, "G0") || isMotionPrefix(upper, "G1") ||
		isMotionPrefix(upper, "G2") || isMotionPrefix(upper, "G3") {
		return v.checkMotion(fields, trimmed)
	}

	// Rule 4: $J= jogging — feed cap, and relative-projected bounds.
	if strings.HasPrefix(upper, "$J=") {
		return v.checkJog(fields, trimmed)
	}

	// Rule 5: anything else is accepted.
	return Verdict{Kind: Valid}
}

func isMotionPrefix(upper, code string) bool {
	if !strings.HasPrefix(upper, code) {
		return false
	}
	if len(upper) == len(code) {
		return true
	}
	next := upper[len(code)]
	return next < '0' || next > '9'
}

func parseFields(upper string) map[byte]float64 {
	out := make(map[byte]float64)
	for _, w := range rxWord.FindAllString(upper, -1) {
		val, err := strconv.ParseFloat(w[1:], 64)
		if err != nil {
			continue
		}
		out[w[0]] = val
	}
	return out
}

func (v *Validator) checkMotion(fields map[byte]float64, raw string) Verdict {
	proj := v.CurrentMPos
	var any bool
	if x, ok := fields['X']; ok {
		proj.X = x
		any = true
	}
	if y, ok := fields['Y']; ok {
		proj.Y = y
		any = true
	}
	if z, ok := fields['Z']; ok {
		proj.Z = z
		any = true
	}

	if any {
		if violations := v.Limits.Violations(proj); len(violations) > 0 {
			return Verdict{Kind: Invalid, Message: fmt.Sprintf("%q exceeds soft limits on axis %v", raw, violations)}
		}
	}

	if f, ok := fields['F']; ok && v.Speed.MaxFeedRate > 0 && f > v.Speed.MaxFeedRate {
		return Verdict{Kind: Invalid, Message: fmt.Sprintf("%q feed rate %.3f exceeds max feed rate %.3f", raw, f, v.Speed.MaxFeedRate)}
	}

	return Verdict{Kind: Valid}
}

func (v *Validator) checkJog(fields map[byte]float64, raw string) Verdict {
	if f, ok := fields['F']; ok && v.Speed.MaxJogRate > 0 && f > v.Speed.MaxJogRate {
		return Verdict{Kind: Invalid, Message: fmt.Sprintf("%q feed rate %.3f exceeds max jog rate %.3f", raw, f, v.Speed.MaxJogRate)}
	}

	proj := v.CurrentMPos
	if x, ok := fields['X']; ok {
		proj.X += x
	}
	if y, ok := fields['Y']; ok {
		proj.Y += y
	}
	if z, ok := fields['Z']; ok {
		proj.Z += z
	}

	if violations := v.Limits.Violations(proj); len(violations) > 0 {
		return Verdict{Kind: Invalid, Message: fmt.Sprintf("%q exits soft limits on axis %v", raw, violations)}
	}

	return Verdict{Kind: Valid}
}
