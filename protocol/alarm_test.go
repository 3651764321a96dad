package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAlarm_HardLimit(t *testing.T) {
	a, err := ParseAlarm("ALARM:1")
	assert.NoError(t, err)
	assert.Equal(t, 1, a.Code)
	assert.Equal(t, "Hard limit triggered.", a.Message)
}

func TestParseAlarm_UnknownCode(t *testing.T) {
	a, err := ParseAlarm("ALARM:42")
	assert.NoError(t, err)
	assert.Equal(t, "Unrecognized alarm code.", a.Message)
}

func TestParseAlarm_NotAnAlarmLine(t *testing.T) {
	_, err := ParseAlarm("ok")
	assert.Error(t, err)
}
