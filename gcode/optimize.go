package gcode

// Optimize coalesces consecutive G0/G1 blocks that share the same motion
// code, feed rate, spindle speed and modal groups, merging their
// coordinate overrides in order into a single block. This collapses long
// runs of incremental jogs or probing steps into one line without
// changing the final cursor position. Distance mode (G90/G91) is tracked
// across the whole program the same sticky way Parse and CheckSafety
// track it, since a run's blocks may inherit it from an earlier line
// rather than restating it: in G91 a later block's coordinates are
// deltas to sum, not an absolute position to overwrite.
func Optimize(blocks []Block) []Block {
	out := make([]Block, 0, len(blocks))

	var relative bool
	var run []Block
	var runRelative []bool
	flush := func() {
		if len(run) == 0 {
			return
		}
		if len(run) == 1 {
			out = append(out, run[0])
		} else {
			out = append(out, mergeRun(run, runRelative))
		}
		run = nil
		runRelative = nil
	}

	for _, b := range blocks {
		if mg, ok := b.ModalGroups[ModalGroupDistanceMode]; ok {
			relative = mg == 91
		}

		if !b.Valid || !isLinearMotion(b) {
			flush()
			out = append(out, b)
			continue
		}

		if len(run) > 0 && !coalescable(run[len(run)-1], b) {
			flush()
		}
		run = append(run, b)
		runRelative = append(runRelative, relative)
	}
	flush()

	return out
}

func isLinearMotion(b Block) bool {
	return b.GCode != nil && (*b.GCode == 0 || *b.GCode == 1)
}

func coalescable(a, b Block) bool {
	if *a.GCode != *b.GCode {
		return false
	}
	if !sameOptionalFloat(a.FeedRate, b.FeedRate) {
		return false
	}
	if !sameOptionalFloat(a.SpindleSpeed, b.SpindleSpeed) {
		return false
	}
	return sameModalGroups(a.ModalGroups, b.ModalGroups)
}

func sameOptionalFloat(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return true // unspecified on one side carries the other's modal value forward
	}
	return *a == *b
}

func sameModalGroups(a, b map[ModalGroup]float64) bool {
	for mg, v := range a {
		if mg == ModalGroupMotion {
			continue
		}
		if bv, ok := b[mg]; ok && bv != v {
			return false
		}
	}
	return true
}

// mergeRun folds a run of coalescable blocks into one. In absolute mode
// (G90) each block's coordinate overrides the one before it, so only the
// final override survives. In relative mode (G91) each block's
// coordinate is a delta, so the merged block must carry the sum of every
// block's delta rather than just the last one — otherwise the merged
// block would land somewhere other than replaying the run would.
// relative[i] is the distance mode in effect for run[i].
func mergeRun(run []Block, relative []bool) Block {
	merged := run[0]
	merged.Raw = ""
	for i, b := range run {
		if i > 0 {
			mergeCoordinate(&merged.Coordinates.X, b.Coordinates.X, relative[i])
			mergeCoordinate(&merged.Coordinates.Y, b.Coordinates.Y, relative[i])
			mergeCoordinate(&merged.Coordinates.Z, b.Coordinates.Z, relative[i])
			mergeCoordinate(&merged.Coordinates.A, b.Coordinates.A, relative[i])
			mergeCoordinate(&merged.Coordinates.B, b.Coordinates.B, relative[i])
			mergeCoordinate(&merged.Coordinates.C, b.Coordinates.C, relative[i])
			if b.FeedRate != nil {
				merged.FeedRate = b.FeedRate
			}
			if b.SpindleSpeed != nil {
				merged.SpindleSpeed = b.SpindleSpeed
			}
		}
		if b.Raw != "" {
			if merged.Raw != "" {
				merged.Raw += "\n"
			}
			merged.Raw += b.Raw
		}
	}
	return merged
}

func mergeCoordinate(dst **float64, src *float64, relative bool) {
	if src == nil {
		return
	}
	if relative && *dst != nil {
		sum := **dst + *src
		*dst = &sum
		return
	}
	*dst = src
}
