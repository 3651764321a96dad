package gcode

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandsReader(t *testing.T) {
	cmds := []Command{
		{{W: 'G', Arg: 1}, {W: 'G', Arg: 2}},

		{{W: 'M', Arg: 2}},
	}

	gr := &CommandsReader{Commands: cmds}

	c, err := gr.Read()
	assert.NoError(t, err)
	assert.Equal(t, Command{{W: 'G', Arg: 1}, {W: 'G', Arg: 2}}, c)

	c, err = gr.Read()
	assert.NoError(t, err)
	assert.Equal(t, Command{{W: 'M', Arg: 2}}, c)

	c, err = gr.Read()
	assert.Error(t, err)
	assert.Equal(t, io.EOF, err)
	assert.Nil(t, c)
}
