package job

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/mastercactapus/gcnc/machine"
	"github.com/mastercactapus/gcnc/transport"
	"github.com/stretchr/testify/require"
)

// scriptedStream answers every line "ok" by default, except lines
// listed in fail (answered "error:1" every time), and a status query
// with a fixed Idle report, so Runner's preflight/waitForIdle-style
// polling resolves immediately.
type scriptedStream struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mx   sync.Mutex
	fail map[string]bool
}

func newScriptedStream() *scriptedStream {
	pr, pw := io.Pipe()
	return &scriptedStream{pr: pr, pw: pw, fail: map[string]bool{}}
}

func (s *scriptedStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *scriptedStream) failOn(line string) {
	s.mx.Lock()
	s.fail[line] = true
	s.mx.Unlock()
}

func (s *scriptedStream) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	go func() {
		switch line {
		case "?":
			s.pw.Write([]byte("<Idle|MPos:0.000,0.000,0.000|F:0>\r\n"))
		case "":
		default:
			s.mx.Lock()
			shouldFail := s.fail[line]
			s.mx.Unlock()
			if shouldFail {
				s.pw.Write([]byte("error:1\r\n"))
			} else {
				s.pw.Write([]byte("ok\r\n"))
			}
		}
	}()
	return len(p), nil
}

func (s *scriptedStream) Close() error { return s.pw.Close() }

type fixedDialer struct{ rw transport.ReadWriteCloser }

func (d *fixedDialer) Dial() (transport.ReadWriteCloser, error) { return d.rw, nil }

func newTestRunner(t *testing.T) (*Runner, *scriptedStream) {
	t.Helper()
	stream := newScriptedStream()
	ctrl := machine.New(&fixedDialer{rw: stream}, coord.DefaultSoftLimits(), coord.DefaultSpeedLimits())
	require.NoError(t, ctrl.Connect())
	t.Cleanup(func() { _ = ctrl.Disconnect() })
	return NewRunner(ctrl, nil, coord.DefaultSoftLimits()), stream
}

// waitForTerminal polls JobHistory until id's entry reaches a terminal
// Status. A job already present in history (e.g. a pre-seeded crash-
// recovery fixture) is not enough on its own — finish() mutates the
// same Job in place, so presence alone can observe it mid-run.
func waitForTerminal(t *testing.T, r *Runner, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, j := range r.JobHistory() {
			if j.ID == id && j.Status.Terminal() {
				return j
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return nil
}

func TestLoadJob_QueuesReady(t *testing.T) {
	r, _ := newTestRunner(t)
	j, err := r.LoadJob("test", "G0 X10\nG0 Y10\n", Options{})
	require.NoError(t, err)
	require.Equal(t, StatusReady, j.Status)
	require.Len(t, j.Blocks, 2)
	require.Len(t, r.JobQueue(), 1)
}

func TestStartJob_RunsToCompletion(t *testing.T) {
	r, _ := newTestRunner(t)
	j, err := r.LoadJob("test", "G0 X10\nG0 Y10\nG0 Z5\n", Options{})
	require.NoError(t, err)

	require.NoError(t, r.StartJob(j.ID))
	done := waitForTerminal(t, r, j.ID)

	require.Equal(t, StatusCompleted, done.Status)
	require.Equal(t, 3, done.ExecutionResult.BlocksExecuted)
	require.Equal(t, 0, done.ExecutionResult.BlocksSkipped)
	require.Empty(t, r.JobQueue())
	require.Nil(t, r.CurrentJob())
}

func TestStartJob_RejectsSecondConcurrentJob(t *testing.T) {
	r, _ := newTestRunner(t)
	j1, err := r.LoadJob("first", "G0 X10\nG0 Y10\n", Options{})
	require.NoError(t, err)
	j2, err := r.LoadJob("second", "G0 X1\n", Options{})
	require.NoError(t, err)

	require.NoError(t, r.StartJob(j1.ID))
	// pause immediately so j1 stays non-terminal regardless of how fast
	// the scripted stream answers, keeping this assertion deterministic.
	require.NoError(t, r.PauseJob())

	err = r.StartJob(j2.ID)
	require.Error(t, err)

	require.NoError(t, r.ResumeJob())
	waitForTerminal(t, r, j1.ID)
}

func TestPauseResumeJob(t *testing.T) {
	r, _ := newTestRunner(t)
	j, err := r.LoadJob("test", "G0 X10\nG0 Y10\n", Options{})
	require.NoError(t, err)

	require.NoError(t, r.StartJob(j.ID))
	require.NoError(t, r.PauseJob())
	require.Equal(t, StatusPaused, r.CurrentJob().Status)

	require.NoError(t, r.ResumeJob())
	waitForTerminal(t, r, j.ID)
}

func TestStopJob(t *testing.T) {
	r, _ := newTestRunner(t)
	j, err := r.LoadJob("test", "G0 X10\nG0 Y10\n", Options{})
	require.NoError(t, err)

	require.NoError(t, r.StartJob(j.ID))
	require.NoError(t, r.StopJob(false))

	done := waitForTerminal(t, r, j.ID)
	require.Equal(t, StatusStopped, done.Status)
}

func TestSendBlock_SkipsFailedBlockWhenNotStopOnError(t *testing.T) {
	r, stream := newTestRunner(t)
	stream.failOn("G0 X10")

	j, err := r.LoadJob("test", "G0 X10\nG0 Y10\n", Options{StopOnError: false})
	require.NoError(t, err)

	require.NoError(t, r.StartJob(j.ID))
	done := waitForTerminal(t, r, j.ID)

	require.Equal(t, StatusCompleted, done.Status)
	require.Equal(t, 1, done.ExecutionResult.BlocksSkipped)
}

func TestSendBlock_StopsOnErrorWhenConfigured(t *testing.T) {
	r, stream := newTestRunner(t)
	stream.failOn("G0 X10")

	j, err := r.LoadJob("test", "G0 X10\nG0 Y10\n", Options{StopOnError: true})
	require.NoError(t, err)

	require.NoError(t, r.StartJob(j.ID))
	done := waitForTerminal(t, r, j.ID)

	require.Equal(t, StatusFailed, done.Status)
	require.Equal(t, 0, done.ExecutionResult.BlocksExecuted)
}

func TestSendBlock_RetryOnErrorLeavesHappyPathUnretried(t *testing.T) {
	// the scripted stream always answers a given line the same way, so
	// this only exercises that RetryOnError bookkeeping doesn't perturb
	// the happy path — a line that actually flips from error to ok
	// mid-retry needs a stateful responder, not covered here.
	r, _ := newTestRunner(t)

	j, err := r.LoadJob("test", "G0 X10\n", Options{RetryOnError: true, RetryCount: 2})
	require.NoError(t, err)

	require.NoError(t, r.StartJob(j.ID))
	done := waitForTerminal(t, r, j.ID)

	require.Equal(t, StatusCompleted, done.Status)
	require.Equal(t, 0, done.ExecutionResult.BlocksRetried)
}

type fakeStorage struct {
	mx    sync.Mutex
	saved map[string]State
}

func newFakeStorage() *fakeStorage { return &fakeStorage{saved: map[string]State{}} }

func (f *fakeStorage) SaveAutosave(s State) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.saved[s.JobID] = s
	return nil
}

func (f *fakeStorage) SaveCrashRecovery(s State) error { return f.SaveAutosave(s) }

func (f *fakeStorage) LoadAutosave(jobID string) (*State, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	s, ok := f.saved[jobID]
	if !ok {
		return nil, errors.New("fakeStorage: no autosave for " + jobID)
	}
	return &s, nil
}

func TestResumeAfterCrash_RestartsFromCheckpoint(t *testing.T) {
	storage := newFakeStorage()
	stream := newScriptedStream()
	ctrl := machine.New(&fixedDialer{rw: stream}, coord.DefaultSoftLimits(), coord.DefaultSpeedLimits())
	require.NoError(t, ctrl.Connect())
	t.Cleanup(func() { _ = ctrl.Disconnect() })

	r := NewRunner(ctrl, storage, coord.DefaultSoftLimits())
	j, err := r.LoadJob("test", "G0 X1\nG0 X2\nG0 X3\nG0 X4\n", Options{})
	require.NoError(t, err)

	// simulate a prior run that got halfway and crashed: seed history
	// and an autosave checkpoint directly rather than racing the real
	// autosave ticker (60s) in a test.
	j.Status = StatusFailed
	j.blocksExecuted = 2
	j.ProgressPercent = 50
	r.mx.Lock()
	r.history = append(r.history, j)
	r.mx.Unlock()

	require.NoError(t, storage.SaveAutosave(State{
		JobID:           j.ID,
		ProgressPercent: 50,
	}))

	require.NoError(t, r.ResumeAfterCrash(j.ID))
	done := waitForTerminal(t, r, j.ID)
	require.Equal(t, StatusCompleted, done.Status)
}
