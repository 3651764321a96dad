package sequencer

import (
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/mastercactapus/gcnc/machine"
	"github.com/mastercactapus/gcnc/transport"
	"github.com/stretchr/testify/require"
)

// scriptedStream answers every line with "ok", and a status query with
// a fixed Idle report at a configurable MPos, so sequencer pre-flight
// and wait-for-idle loops resolve immediately.
type scriptedStream struct {
	pr  *io.PipeReader
	pw  *io.PipeWriter
	pos coord.Point
}

func newScriptedStream(pos coord.Point) *scriptedStream {
	pr, pw := io.Pipe()
	return &scriptedStream{pr: pr, pw: pw, pos: pos}
}

func (s *scriptedStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *scriptedStream) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	go func() {
		switch line {
		case "?":
			s.pw.Write([]byte("<Idle|MPos:" + formatCoord(s.pos) + "|F:0>\r\n"))
		case "":
		default:
			s.pw.Write([]byte("ok\r\n"))
		}
	}()
	return len(p), nil
}

func (s *scriptedStream) Close() error { return s.pw.Close() }

func formatCoord(p coord.Point) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	return f(p.X) + "," + f(p.Y) + "," + f(p.Z)
}

type fixedDialer struct{ rw transport.ReadWriteCloser }

func (d *fixedDialer) Dial() (transport.ReadWriteCloser, error) { return d.rw, nil }

func newTestController(t *testing.T, pos coord.Point) *machine.Controller {
	t.Helper()
	c := machine.New(&fixedDialer{rw: newScriptedStream(pos)}, coord.DefaultSoftLimits(), coord.DefaultSpeedLimits())
	require.NoError(t, c.Connect())
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestHoming_Success(t *testing.T) {
	c := newTestController(t, coord.Point{})
	h := NewHoming(c, 100)
	result := h.Home(nil)
	require.True(t, result.Success)
	require.Nil(t, result.Error)
}

func TestJogging_RejectsOutsideSoftLimits(t *testing.T) {
	c := newTestController(t, coord.Point{X: 295})
	// seed expected position near the edge of the envelope
	_, err := c.Send("G0 X295 F100", time.Second)
	require.NoError(t, err)

	j := NewJogging(c, coord.DefaultSoftLimits())
	result := j.Jog(map[byte]float64{'X': 10}, 100)
	require.Error(t, result.Error)
}

func TestJogging_SingleOutstandingEnforced(t *testing.T) {
	c := newTestController(t, coord.Point{})
	j := NewJogging(c, coord.DefaultSoftLimits())
	j.inFlight = true
	result := j.Jog(map[byte]float64{'X': 1}, 100)
	require.Error(t, result.Error)
}

func TestProbing_RejectsNonNegativeZDistance(t *testing.T) {
	c := newTestController(t, coord.Point{})
	p := NewProbing(c, coord.DefaultSoftLimits(), func() bool { return true })
	result := p.Probe('Z', 50, 10)
	require.Error(t, result.Error)
}

func TestProbing_GridRejectsNonPositiveDimensions(t *testing.T) {
	c := newTestController(t, coord.Point{})
	p := NewProbing(c, coord.DefaultSoftLimits(), func() bool { return true })
	result := p.ProbeGrid(0, 10, 5, 100)
	require.Error(t, result.Error)
}

func TestGridPoints_CentredAtOrigin(t *testing.T) {
	pts := gridPoints(10, 10, 5)
	require.Len(t, pts, 9)
	require.Equal(t, gridPoint{X: -5, Y: -5}, pts[0])
}
