package safety

import (
	"testing"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/stretchr/testify/assert"
)

func testValidator() *Validator {
	return New(coord.DefaultSoftLimits(), coord.DefaultSpeedLimits())
}

func TestValidate_EmptyRejected(t *testing.T) {
	v := testValidator()
	got := v.Validate("   ")
	assert.Equal(t, Invalid, got.Kind)
}

func TestValidate_SpindleOnWarns(t *testing.T) {
	v := testValidator()
	got := v.Validate("M3 S1000")
	assert.Equal(t, Warn, got.Kind)
}

func TestValidate_ProbeWarns(t *testing.T) {
	v := testValidator()
	got := v.Validate("G38.2 Z-10 F50")
	assert.Equal(t, Warn, got.Kind)
}

func TestValidate_MotionWithinLimits(t *testing.T) {
	v := testValidator()
	got := v.Validate("G1 X10 Y10 F100")
	assert.Equal(t, Valid, got.Kind)
}

func TestValidate_MotionExceedsSoftLimit(t *testing.T) {
	v := testValidator()
	got := v.Validate("G1 X500 F100")
	assert.Equal(t, Invalid, got.Kind)
}

func TestValidate_MotionExceedsFeedCap(t *testing.T) {
	v := testValidator()
	got := v.Validate("G1 X10 F9000")
	assert.Equal(t, Invalid, got.Kind)
}

func TestValidate_G0DoesNotRequireCoordinates(t *testing.T) {
	v := testValidator()
	got := v.Validate("G0")
	assert.Equal(t, Valid, got.Kind)
}

func TestValidate_JogWithinLimits(t *testing.T) {
	v := testValidator()
	v.CurrentMPos = coord.Point{X: 10, Y: 10, Z: 10}
	got := v.Validate("$J=G91 X5 F200")
	assert.Equal(t, Valid, got.Kind)
}

func TestValidate_JogExceedsLimitFromCurrentPosition(t *testing.T) {
	v := testValidator()
	v.CurrentMPos = coord.Point{X: 295, Y: 10, Z: 10}
	got := v.Validate("$J=G91 X10 F200")
	assert.Equal(t, Invalid, got.Kind)
}

func TestValidate_JogExceedsJogRate(t *testing.T) {
	v := testValidator()
	got := v.Validate("$J=G91 X1 F9000")
	assert.Equal(t, Invalid, got.Kind)
}

func TestValidate_UnrelatedCommandAccepted(t *testing.T) {
	v := testValidator()
	got := v.Validate("$$")
	assert.Equal(t, Valid, got.Kind)
}

func TestValidate_G2NotConfusedWithG20(t *testing.T) {
	v := testValidator()
	got := v.Validate("G20")
	assert.Equal(t, Valid, got.Kind)
}
