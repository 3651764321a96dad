package transport

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// memStream is an in-memory ReadWriteCloser used to drive Link in tests
// without a real serial port or socket.
type memStream struct {
	r      io.Reader
	w      io.Writer
	closed chan struct{}
}

func (m *memStream) Read(p []byte) (int, error)  { return m.r.Read(p) }
func (m *memStream) Write(p []byte) (int, error) { return m.w.Write(p) }
func (m *memStream) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

type fixedDialer struct{ rw ReadWriteCloser }

func (d *fixedDialer) Dial() (ReadWriteCloser, error) { return d.rw, nil }

func TestLink_ReadsLines(t *testing.T) {
	pr, pw := io.Pipe()
	stream := &memStream{r: pr, w: io.Discard, closed: make(chan struct{})}

	link := NewLink(&fixedDialer{rw: stream})
	assert.NoError(t, link.Open())
	defer link.Close()

	go pw.Write([]byte("ok\r\n"))

	select {
	case line := <-link.Lines():
		assert.Equal(t, "ok", line)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for line")
	}
}

func TestLink_IsConnectedAfterOpen(t *testing.T) {
	pr, _ := io.Pipe()
	stream := &memStream{r: pr, w: io.Discard, closed: make(chan struct{})}

	link := NewLink(&fixedDialer{rw: stream})
	assert.NoError(t, link.Open())
	defer link.Close()

	assert.True(t, link.IsConnected())
}

func TestLink_Send(t *testing.T) {
	pr, pw := io.Pipe()
	_ = pw
	stream := &memStream{r: pr, w: new(discardCountWriter), closed: make(chan struct{})}

	link := NewLink(&fixedDialer{rw: stream})
	assert.NoError(t, link.Open())
	defer link.Close()

	assert.NoError(t, link.Send([]byte("?")))
}

type discardCountWriter struct{ n int }

func (w *discardCountWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}
