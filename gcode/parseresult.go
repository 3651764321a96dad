package gcode

import "github.com/mastercactapus/gcnc/coord"

// ParseIssue is a single error or warning tied to a source line.
type ParseIssue struct {
	LineNumber int
	Message    string
}

func (i ParseIssue) Error() string { return i.Message }

// BoundingBox is the axis-aligned hull over modelled cursor positions as
// motion blocks execute in order.
type BoundingBox struct {
	Min, Max coord.Point

	seeded bool
}

// Size returns Max-Min on each axis.
func (b BoundingBox) Size() coord.Point {
	return b.Max.Sub(b.Min)
}

func (b *BoundingBox) expand(p coord.Point) {
	if !b.seeded {
		b.Min, b.Max = p, p
		b.seeded = true
		return
	}
	b.Min.X = minF(b.Min.X, p.X)
	b.Min.Y = minF(b.Min.Y, p.Y)
	b.Min.Z = minF(b.Min.Z, p.Z)
	b.Max.X = maxF(b.Max.X, p.X)
	b.Max.Y = maxF(b.Max.Y, p.Y)
	b.Max.Z = maxF(b.Max.Z, p.Z)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ParseResult is the output of parsing an entire program.
type ParseResult struct {
	Blocks           []Block
	Errors           []ParseIssue
	Warnings         []string
	BoundingBox      BoundingBox
	EstimatedSeconds float64
}
