package gcode

import "io"

// Reader yields wire-level Commands one at a time, akin to a line reader.
type Reader interface {
	Read() (Command, error)
}

// CommandsReader replays a fixed slice of Commands, returning io.EOF once
// exhausted. Used to turn an in-memory program (or a sequencer's generated
// move) into something a Buffer can stream.
type CommandsReader struct {
	Commands []Command
	n        int
}

func (b *CommandsReader) Read() (Command, error) {
	if b.n == len(b.Commands) {
		return nil, io.EOF
	}

	b.n++
	return b.Commands[b.n-1], nil
}
