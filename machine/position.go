package machine

import (
	"math"

	"github.com/mastercactapus/gcnc/coord"
)

// positionMismatchTolerance is the divergence, on any axis, that marks
// expected and last-known position as having lost steps.
const positionMismatchTolerance = 0.1

// positionTracker holds the two positions the data model calls out:
// lastKnown (from the most recent status report) and expected (modelled
// forward from every command the Controller has sent). It also tracks
// distance-mode (G90/G91) since that decides whether a motion command's
// coordinates replace or add to expected.
type positionTracker struct {
	lastKnown coord.Point
	expected  coord.Point
	relative  bool
}

// applyCommand advances expected according to the spec's absolute-
// replace / incremental-add / jog-always-additive rule. A `$J=` line is
// always additive regardless of the tracked distance mode; G90/G91
// update the tracked mode; any line carrying X/Y/Z words then replaces
// or adds to those axes per the tracked mode, whatever its G-code; a
// line without them leaves expected untouched.
func (t *positionTracker) applyCommand(line string, coords map[byte]float64) {
	switch {
	case len(line) >= 3 && line[:3] == "$J=":
		t.add(coords)
		return
	}

	if g, ok := coords['G']; ok {
		switch g {
		case 90:
			t.relative = false
		case 91:
			t.relative = true
		}
	}

	if len(coords) == 0 {
		return
	}
	if t.relative {
		t.add(coords)
	} else {
		t.replace(coords)
	}
}

func (t *positionTracker) add(coords map[byte]float64) {
	if v, ok := coords['X']; ok {
		t.expected.X += v
	}
	if v, ok := coords['Y']; ok {
		t.expected.Y += v
	}
	if v, ok := coords['Z']; ok {
		t.expected.Z += v
	}
}

func (t *positionTracker) replace(coords map[byte]float64) {
	if v, ok := coords['X']; ok {
		t.expected.X = v
	}
	if v, ok := coords['Y']; ok {
		t.expected.Y = v
	}
	if v, ok := coords['Z']; ok {
		t.expected.Z = v
	}
}

// setLastKnown records the position carried by the most recent status
// report.
func (t *positionTracker) setLastKnown(p coord.Point) {
	t.lastKnown = p
}

// mismatch reports whether expected and lastKnown have diverged beyond
// positionMismatchTolerance on any axis — the step-loss signal.
func (t *positionTracker) mismatch() bool {
	return math.Abs(t.expected.X-t.lastKnown.X) > positionMismatchTolerance ||
		math.Abs(t.expected.Y-t.lastKnown.Y) > positionMismatchTolerance ||
		math.Abs(t.expected.Z-t.lastKnown.Z) > positionMismatchTolerance
}
