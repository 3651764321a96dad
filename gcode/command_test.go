package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommand_String(t *testing.T) {
	c := Command{{W: 'G', Arg: 1}, {W: 'X', Arg: 10.5}}
	assert.Equal(t, "G1X10.5", c.String())
}

func TestCommand_Arg(t *testing.T) {
	c := Command{{W: 'G', Arg: 1}, {W: 'X', Arg: 10}}

	ok, v := c.Arg('X')
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)

	ok, _ = c.Arg('Z')
	assert.False(t, ok)
}

func TestCommand_SetArg(t *testing.T) {
	c := Command{{W: 'G', Arg: 1}, {W: 'X', Arg: 10}}
	c.SetArg('X', 20)
	assert.Equal(t, "G1X20", c.String())
}

func TestCommand_Args(t *testing.T) {
	c := Command{{W: 'G', Arg: 1}, {W: 'X', Arg: 10}, {W: 'Y', Arg: 5}}
	assert.Equal(t, Command{{W: 'X', Arg: 10}, {W: 'Y', Arg: 5}}, c.Args())
}

func TestCommand_HasModal(t *testing.T) {
	assert.True(t, Command{{W: 'G', Arg: 1}}.HasModal())
	assert.False(t, Command{{W: 'X', Arg: 1}}.HasModal())
}

func TestCommand_Validate(t *testing.T) {
	assert.NoError(t, Command{{W: 'G', Arg: 1}, {W: 'X', Arg: 1}}.Validate())
	assert.Error(t, Command{{W: 'X', Arg: 1}, {W: 'X', Arg: 2}}.Validate())
	assert.Error(t, Command{{W: 'G', Arg: 0}, {W: 'G', Arg: 1}}.Validate())

	var bad Word
	bad.W = '!'
	assert.Error(t, Command{bad}.Validate())
}
