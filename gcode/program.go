package gcode

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mastercactapus/gcnc/coord"
)

var (
	rxComment  = regexp.MustCompile(`\([^)]*\)`)
	rxProgWord = regexp.MustCompile(`[A-Za-z][0-9.+-]+`)
)

// Parse tokenizes and classifies an entire program, producing a Block per
// source line plus the program-level analysis (bounding box, time
// estimate, warnings). It never returns a non-nil error for malformed
// input; malformed lines are instead recorded in ParseResult.Errors and
// skipped, so a single bad line never aborts analysis of the rest of a
// job.
func Parse(program string) (*ParseResult, error) {
	res := &ParseResult{}

	var relative bool
	var feed float64
	var cursor coord.Point
	var sawSpindleOn, sawMotion, sawToolChange, sawInches, sawIncremental bool

	lines := strings.Split(program, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		line := rxComment.ReplaceAllString(raw, "")
		line = strings.SplitN(line, ";", 2)[0]
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		words, err := tokenizeLine(line)
		if err != nil {
			res.Errors = append(res.Errors, ParseIssue{LineNumber: lineNo, Message: err.Error()})
			continue
		}

		block := Block{
			LineNumber:  lineNo,
			Raw:         raw,
			ModalGroups: map[ModalGroup]float64{},
			Valid:       true,
		}

		for _, w := range words {
			switch {
			case w.W == 'G':
				mg := w.ModalGroup()
				block.ModalGroups[mg] = w.Arg
				if mg == ModalGroupMotion {
					arg := w.Arg
					block.GCode = &arg
				}
			case w.W == 'M':
				mg := w.ModalGroup()
				block.ModalGroups[mg] = w.Arg
				arg := w.Arg
				block.MCode = &arg
			case w.W == 'X':
				block.Coordinates.X = f64p(w.Arg)
			case w.W == 'Y':
				block.Coordinates.Y = f64p(w.Arg)
			case w.W == 'Z':
				block.Coordinates.Z = f64p(w.Arg)
			case w.W == 'A':
				block.Coordinates.A = f64p(w.Arg)
			case w.W == 'B':
				block.Coordinates.B = f64p(w.Arg)
			case w.W == 'C':
				block.Coordinates.C = f64p(w.Arg)
			case w.W == 'F':
				block.FeedRate = f64p(w.Arg)
			case w.W == 'S':
				block.SpindleSpeed = f64p(w.Arg)
			case w.W == 'T':
				block.ToolNumber = intp(int(w.Arg))
			case w.W == 'I' || w.W == 'J' || w.W == 'K' || w.W == 'P' || w.W == 'Q' || w.W == 'R':
				if block.Parameters == nil {
					block.Parameters = map[byte]float64{}
				}
				block.Parameters[w.W] = w.Arg
			}
		}

		validateBlock(&block, res)

		if mg, ok := block.ModalGroups[ModalGroupDistanceMode]; ok {
			relative = mg == 91
			if relative {
				sawIncremental = true
			}
		}
		if mg, ok := block.ModalGroups[ModalGroupUnits]; ok && mg == 20 {
			sawInches = true
		}
		if block.FeedRate != nil {
			feed = *block.FeedRate
		}
		if block.MCode != nil {
			switch *block.MCode {
			case 3, 4:
				sawSpindleOn = true
			case 6:
				sawToolChange = true
			}
		}

		var travelled float64
		if block.IsMotion() {
			sawMotion = true
			next := advance(cursor, block.Coordinates, relative)
			res.BoundingBox.expand(cursor)
			res.BoundingBox.expand(next)
			d := next.Sub(cursor)
			travelled = math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
			cursor = next
		}

		res.EstimatedSeconds += estimateBlockSeconds(block, feed, travelled)
		res.Blocks = append(res.Blocks, block)
	}

	if sawInches {
		res.Warnings = append(res.Warnings, "program uses inches (G20)")
	}
	if sawIncremental {
		res.Warnings = append(res.Warnings, "program uses incremental distance mode (G91)")
	}
	if sawMotion && !sawSpindleOn {
		res.Warnings = append(res.Warnings, "program contains motion with no spindle-on command")
	}
	if sawToolChange {
		res.Warnings = append(res.Warnings, "program contains a tool change (M6)")
	}

	return res, nil
}

// ParseLine strips comments from a single source line and tokenizes what
// remains into a wire-level Command, the same preprocessing Parse applies
// per-line before classifying it into a Block. Used by callers (the job
// runner's mesh-leveling pipeline) that need the Command form of an
// already-parsed Block's source line rather than Parse's own Block form.
func ParseLine(raw string) (Command, error) {
	line := rxComment.ReplaceAllString(raw, "")
	line = strings.SplitN(line, ";", 2)[0]
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("blank line")
	}
	return tokenizeLine(line)
}

func tokenizeLine(line string) (Command, error) {
	line = strings.ToUpper(strings.ReplaceAll(line, " ", ""))
	matches := rxProgWord.FindAllString(line, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no words found in line")
	}
	out := make(Command, 0, len(matches))
	for _, m := range matches {
		letter := m[0]
		val, err := strconv.ParseFloat(m[1:], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid word %q: %w", m, err)
		}
		out = append(out, Word{W: byte(letter), Arg: val})
	}
	return out, nil
}

func advance(cur coord.Point, c Coordinates, relative bool) coord.Point {
	next := cur
	apply := func(dst *float64, word *float64) {
		if word == nil {
			return
		}
		if relative {
			*dst += *word
		} else {
			*dst = *word
		}
	}
	apply(&next.X, c.X)
	apply(&next.Y, c.Y)
	apply(&next.Z, c.Z)
	return next
}

func validateBlock(b *Block, res *ParseResult) {
	fail := func(msg string) {
		b.Valid = false
		res.Errors = append(res.Errors, ParseIssue{LineNumber: b.LineNumber, Message: msg})
	}

	if b.GCode == nil {
		return
	}

	switch *b.GCode {
	case 0, 1:
		if !b.Coordinates.HasAny() {
			fail("G0/G1 requires at least one coordinate")
		}
		if *b.GCode == 1 && b.FeedRate != nil && *b.FeedRate == 0 {
			fail("feed rate of 0 on G1")
		}
	case 2, 3:
		if !b.Coordinates.HasXY() {
			fail("G2/G3 requires endpoint coordinates")
		}
		_, hasI := b.Parameters['I']
		_, hasJ := b.Parameters['J']
		_, hasR := b.Parameters['R']
		if !hasI && !hasJ && !hasR {
			fail("G2/G3 requires I, J or R")
		}
	case 38.2:
		if b.Coordinates.Z == nil {
			fail("G38.2 requires Z")
		}
		if b.FeedRate == nil {
			fail("G38.2 requires F")
		}
	}
}

// estimateBlockSeconds returns the time cost attributed to a single block:
// a fixed per-block overhead, plus motion time at the current feed rate,
// plus fixed spindle/tool-change costs.
func estimateBlockSeconds(b Block, feed, travelled float64) float64 {
	const blockOverhead = 0.050

	total := blockOverhead

	if b.IsMotion() && b.Valid && feed > 0 {
		switch *b.GCode {
		case 0, 1:
			total += travelled / feed * 60
		case 2, 3:
			if radius, ok := arcRadius(b.Parameters); ok {
				arcLen := (math.Pi / 2) * radius
				total += arcLen / feed * 60
			}
		}
	}

	if b.MCode != nil {
		switch *b.MCode {
		case 3, 4:
			total += 2
		case 5:
			total += 1
		case 6:
			total += 10
		}
	}

	return total
}

func arcRadius(params map[byte]float64) (float64, bool) {
	if r, ok := params['R']; ok {
		return math.Abs(r), true
	}
	i, iok := params['I']
	j, jok := params['J']
	if iok || jok {
		return math.Sqrt(i*i + j*j), true
	}
	return 0, false
}
