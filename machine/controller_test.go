package machine

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/mastercactapus/gcnc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoStream is a fake duplex stream standing in for a GRBL device: it
// answers `?` with a canned status report and anything else with `ok`.
type echoStream struct {
	pr *io.PipeReader
	pw *io.PipeWriter
}

func newEchoStream() *echoStream {
	pr, pw := io.Pipe()
	return &echoStream{pr: pr, pw: pw}
}

func (s *echoStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *echoStream) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	go func() {
		switch line {
		case "?":
			s.pw.Write([]byte("<Idle|MPos:1.000,2.000,3.000|F:100>\r\n"))
		case "":
		default:
			s.pw.Write([]byte("ok\r\n"))
		}
	}()
	return len(p), nil
}

func (s *echoStream) Close() error { return s.pw.Close() }

type fixedDialer struct{ rw transport.ReadWriteCloser }

func (d *fixedDialer) Dial() (transport.ReadWriteCloser, error) { return d.rw, nil }

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c := New(&fixedDialer{rw: newEchoStream()}, coord.DefaultSoftLimits(), coord.DefaultSpeedLimits())
	require.NoError(t, c.Connect())
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestController_SendResolvesAndUpdatesExpectedPosition(t *testing.T) {
	c := newTestController(t)

	_, err := c.Send("G0 X10 Y5 F100", time.Second)
	assert.NoError(t, err)

	expected, _ := c.Position()
	assert.Equal(t, coord.Point{X: 10, Y: 5, Z: 0}, expected)
}

func TestController_SendIncrementalAdds(t *testing.T) {
	c := newTestController(t)

	_, err := c.Send("G91", time.Second)
	require.NoError(t, err)
	_, err = c.Send("G1 X5 F100", time.Second)
	require.NoError(t, err)
	_, err = c.Send("G1 X5 F100", time.Second)
	require.NoError(t, err)

	expected, _ := c.Position()
	assert.Equal(t, 10.0, expected.X)
}

func TestController_SendRejectsUnsafeMotion(t *testing.T) {
	c := newTestController(t)

	_, err := c.Send("G0 X5000 F100", time.Second)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, ErrorSafetyViolation, merr.Kind())
}

func TestController_GetStatusDecodesReply(t *testing.T) {
	c := newTestController(t)

	st, err := c.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, coord.Point{X: 1, Y: 2, Z: 3}, st.MPos)

	_, lastKnown := c.Position()
	assert.Equal(t, coord.Point{X: 1, Y: 2, Z: 3}, lastKnown)
}

func TestController_CheckPositionMismatch(t *testing.T) {
	c := newTestController(t)

	_, err := c.Send("G0 X50 F100", time.Second)
	require.NoError(t, err)

	_, err = c.GetStatus()
	require.NoError(t, err)

	assert.True(t, c.CheckPositionMismatch())
}

func TestController_JournalRecordsCommands(t *testing.T) {
	c := newTestController(t)

	_, err := c.Send("G0 X1 F100", time.Second)
	require.NoError(t, err)

	entries := c.Journal()
	require.Len(t, entries, 1)
	assert.Equal(t, "G0 X1 F100", entries[0].Command)
}
