package gcode

import (
	"fmt"

	"github.com/mastercactapus/gcnc/coord"
)

// CheckSafety scans a parsed program against a set of soft/speed limits and
// reports issues a job should be rejected for, separately from warnings a
// job can still proceed with. It does not mutate blocks.
func CheckSafety(blocks []Block, limits coord.SoftLimits, speed coord.SpeedLimits) (issues, warnings []string) {
	var cursor coord.Point
	var relative bool

	for _, b := range blocks {
		if mg, ok := b.ModalGroups[ModalGroupDistanceMode]; ok {
			relative = mg == 91
		}

		if !b.Valid {
			continue
		}

		if b.FeedRate != nil && speed.MaxFeedRate > 0 && *b.FeedRate > speed.MaxFeedRate {
			issues = append(issues, fmt.Sprintf("line %d: feed rate %.3f exceeds max feed rate %.3f",
				b.LineNumber, *b.FeedRate, speed.MaxFeedRate))
		}

		if !b.IsMotion() {
			continue
		}

		next := advance(cursor, b.Coordinates, relative)
		if violations := limits.Violations(next); len(violations) > 0 {
			issues = append(issues, fmt.Sprintf("line %d: travel to %+v exceeds soft limits on axis %v",
				b.LineNumber, next, violations))
		}

		if b.GCode != nil && *b.GCode == 0 && next.Z < cursor.Z {
			warnings = append(warnings, fmt.Sprintf("line %d: rapid (G0) move descends in Z", b.LineNumber))
		}

		cursor = next
	}

	var sawSpindleOn bool
	for _, b := range blocks {
		if b.IsMotion() && !sawSpindleOn {
			warnings = append(warnings, fmt.Sprintf("line %d: motion before spindle is started", b.LineNumber))
		}
		if b.MCode != nil {
			switch *b.MCode {
			case 3, 4:
				sawSpindleOn = true
			}
		}
	}

	return issues, warnings
}
