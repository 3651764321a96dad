package gcode

import "errors"

// Command is a wire-level line: an ordered list of words ready to be
// rendered and sent to the controller, or as read off the wire before
// higher-level classification. Sequencers and the job preamble assemble
// Commands directly; the parser additionally classifies lines into the
// richer Block type (see block.go) for pre-flight analysis.
type Command []Word

func (b Command) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

func (b Command) SetArg(w byte, val float64) {
	for i, g := range b {
		if g.W == w {
			b[i].Arg = val
			return
		}
	}
}

// Args returns the non-modal words of the command (axis coordinates,
// parameters) in order.
func (b Command) Args() Command {
	res := make(Command, 0, len(b))
	for _, g := range b {
		if g.ModalGroup() == ModalGroupNone {
			res = append(res, g)
		}
	}
	return res
}

func (b Command) Clone() Command {
	c := make(Command, len(b))
	copy(c, b)
	return c
}

func (b Command) HasModal() bool {
	for _, g := range b {
		if g.ModalGroup() != ModalGroupNone {
			return true
		}
	}
	return false
}

// Validate checks structural well-formedness: no invalid words, no word
// repeated within a block (other than G, which may legitimately combine
// with e.g. G53), and no two words from the same modal group.
func (b Command) Validate() error {
	var checkWord [256]bool
	var checkModal [256]bool

	var m ModalGroup
	for _, g := range b {
		if !g.IsValid() {
			return errors.New("invalid word in block")
		}
		if g.W != 'G' && checkWord[g.W] {
			return errors.New("word was repeated in a block")
		}
		checkWord[g.W] = true
		m = g.ModalGroup()
		if m != ModalGroupNone && checkModal[m] {
			return errors.New("multiple words from same modal group")
		}
		checkModal[m] = true
	}

	return nil
}

func (b Command) String() string {
	s := ""
	for _, w := range b {
		s += w.String()
	}
	return s
}
