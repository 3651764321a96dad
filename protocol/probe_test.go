package protocol

import (
	"testing"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/stretchr/testify/assert"
)

func TestParseProbeReport(t *testing.T) {
	prb, err := ParseProbeReport("[PRB:0.000,0.000,-1.234:1]")
	assert.NoError(t, err)
	assert.Equal(t, coord.Point{X: 0, Y: 0, Z: -1.234}, prb.Point)
	assert.True(t, prb.Contact)
}

func TestParseProbeReport_NoContact(t *testing.T) {
	prb, err := ParseProbeReport("[PRB:1,2,3:0]")
	assert.NoError(t, err)
	assert.False(t, prb.Contact)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "status", Classify("<Idle|MPos:0,0,0>"))
	assert.Equal(t, "probe", Classify("[PRB:0,0,0:1]"))
	assert.Equal(t, "alarm", Classify("ALARM:1"))
	assert.Equal(t, "error", Classify("error:9"))
	assert.Equal(t, "ok", Classify("ok"))
	assert.Equal(t, "", Classify("Grbl 1.1h"))
}
