package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptimize_CoalescesRun(t *testing.T) {
	res, err := Parse("G1 F500 X1\nG1 X2\nG1 X3 Y1\n")
	assert.NoError(t, err)
	assert.Len(t, res.Blocks, 3)

	out := Optimize(res.Blocks)
	assert.Len(t, out, 1)
	assert.Equal(t, 3.0, *out[0].Coordinates.X)
	assert.Equal(t, 1.0, *out[0].Coordinates.Y)
	assert.Equal(t, 500.0, *out[0].FeedRate)
}

func TestOptimize_BreaksOnFeedChange(t *testing.T) {
	res, err := Parse("G1 F500 X1\nG1 F600 X2\n")
	assert.NoError(t, err)

	out := Optimize(res.Blocks)
	assert.Len(t, out, 2)
}

func TestOptimize_BreaksOnMotionCodeChange(t *testing.T) {
	res, err := Parse("G0 X1\nG1 F500 X2\n")
	assert.NoError(t, err)

	out := Optimize(res.Blocks)
	assert.Len(t, out, 2)
}

func TestOptimize_LeavesNonMotionUntouched(t *testing.T) {
	res, err := Parse("G1 F500 X1\nM3 S1000\nG1 X2\n")
	assert.NoError(t, err)

	out := Optimize(res.Blocks)
	assert.Len(t, out, 3)
}

func TestOptimize_InvalidBlockPassesThrough(t *testing.T) {
	res, err := Parse("G1 F500 X1\nG1 F0 X2\n")
	assert.NoError(t, err)

	out := Optimize(res.Blocks)
	assert.Len(t, out, 2)
	assert.False(t, out[1].Valid)
}
