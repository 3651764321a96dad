package gcode

import (
	"bytes"
	"io"
)

// ParseCommands tokenizes raw text into wire-level Commands, without any of
// the Block-level classification (see Parse for that). Used for building
// literal command sequences in tests; sequencers assemble their gcode
// directly from Command/Word literals and do not call it.
func ParseCommands(data string) ([]Command, error) {
	r := NewTokenParser(bytes.NewBufferString(data))
	var out []Command
	for {
		cmd, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

func MustParseCommands(data string) []Command {
	c, err := ParseCommands(data)
	if err != nil {
		panic(err)
	}
	return c
}
