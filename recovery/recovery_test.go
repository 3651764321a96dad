package recovery

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/mastercactapus/gcnc/machine"
	"github.com/mastercactapus/gcnc/transport"
	"github.com/stretchr/testify/require"
)

// scriptedStream answers every line "ok" and a status query with a
// fixed Idle report; tests push unsolicited ALARM/status lines
// directly through pw to drive the Controller's derived state, the
// same technique sequencer's tests use for pre-flight checks.
type scriptedStream struct {
	pr *io.PipeReader
	pw *io.PipeWriter
}

func newScriptedStream() *scriptedStream {
	pr, pw := io.Pipe()
	return &scriptedStream{pr: pr, pw: pw}
}

func (s *scriptedStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *scriptedStream) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	go func() {
		switch line {
		case "?":
			s.pw.Write([]byte("<Idle|MPos:0.000,0.000,0.000|F:0>\r\n"))
		case "":
		default:
			s.pw.Write([]byte("ok\r\n"))
		}
	}()
	return len(p), nil
}

func (s *scriptedStream) Close() error { return s.pw.Close() }

type fixedDialer struct{ rw transport.ReadWriteCloser }

func (d *fixedDialer) Dial() (transport.ReadWriteCloser, error) { return d.rw, nil }

func newTestController(t *testing.T) (*machine.Controller, *scriptedStream) {
	t.Helper()
	stream := newScriptedStream()
	ctrl := machine.New(&fixedDialer{rw: stream}, coord.DefaultSoftLimits(), coord.DefaultSpeedLimits())
	require.NoError(t, ctrl.Connect())
	t.Cleanup(func() { _ = ctrl.Disconnect() })
	return ctrl, stream
}

func waitForState(t *testing.T, ctrl *machine.Controller, want machine.MachineState) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("controller never reached state %v", want)
}

func TestDiagnose_Normal(t *testing.T) {
	ctrl, _ := newTestController(t)
	s := NewSupervisor(ctrl)
	d := s.Diagnose()
	require.Equal(t, SeverityNormal, d.Severity)
}

func TestDiagnose_Disconnected(t *testing.T) {
	ctrl, _ := newTestController(t)
	require.NoError(t, ctrl.Disconnect())

	s := NewSupervisor(ctrl)
	d := s.Diagnose()
	require.Equal(t, SeverityHigh, d.Severity)
	require.Equal(t, machine.StateDisconnected, d.State)
}

func TestDiagnose_AlarmLimit(t *testing.T) {
	ctrl, stream := newTestController(t)
	_, _ = stream.pw.Write([]byte("ALARM:1\r\n"))
	waitForState(t, ctrl, machine.StateAlarm)

	s := NewSupervisor(ctrl)
	d := s.Diagnose()
	require.Equal(t, SeverityMedium, d.Severity)
	require.Len(t, d.Steps, 2)
}

func TestDiagnose_AlarmGeneric(t *testing.T) {
	ctrl, stream := newTestController(t)
	_, _ = stream.pw.Write([]byte("ALARM:3\r\n"))
	waitForState(t, ctrl, machine.StateAlarm)

	s := NewSupervisor(ctrl)
	d := s.Diagnose()
	require.Equal(t, SeverityHigh, d.Severity)
}

func TestExecuteRecovery_SucceedsOnceMachineReturnsToNormal(t *testing.T) {
	// ALARM:5 (probe fail) maps to probeFailSteps, whose only action is
	// $X — unlike limitSteps' raise-Z, it never moves the expected
	// position, so it can't trip CheckPositionMismatch in the
	// post-script re-diagnosis below.
	ctrl, stream := newTestController(t)
	_, _ = stream.pw.Write([]byte("ALARM:5\r\n"))
	waitForState(t, ctrl, machine.StateAlarm)

	s := NewSupervisor(ctrl)
	d := s.Diagnose()

	// simulate the device actually clearing before the post-script
	// re-diagnosis: push an Idle status report ahead of running the
	// script so ExecuteRecovery's redo-diagnose sees a Normal machine.
	_, _ = stream.pw.Write([]byte("<Idle|MPos:0.000,0.000,0.000|F:0>\r\n"))
	waitForState(t, ctrl, machine.StateIdle)

	err := s.ExecuteRecovery(d, func(RecoveryStep) bool { return true })
	require.NoError(t, err)
}

func TestExecuteRecovery_DeclinedConfirmationFails(t *testing.T) {
	ctrl, stream := newTestController(t)
	_, _ = stream.pw.Write([]byte("ALARM:5\r\n"))
	waitForState(t, ctrl, machine.StateAlarm)

	s := NewSupervisor(ctrl)
	d := s.Diagnose()

	err := s.ExecuteRecovery(d, func(RecoveryStep) bool { return false })
	require.Error(t, err)
}

func TestExecuteRecovery_StillAlarmedAfterScriptFails(t *testing.T) {
	ctrl, stream := newTestController(t)
	_, _ = stream.pw.Write([]byte("ALARM:5\r\n"))
	waitForState(t, ctrl, machine.StateAlarm)

	s := NewSupervisor(ctrl)
	d := s.Diagnose()

	// no follow-up status report this time: the machine is still
	// reporting Alarm once the script finishes, so recovery must fail.
	err := s.ExecuteRecovery(d, func(RecoveryStep) bool { return true })
	require.Error(t, err)
}

func TestHistory_BoundedAt50(t *testing.T) {
	ctrl, _ := newTestController(t)
	s := NewSupervisor(ctrl)

	for i := 0; i < historyCapacity+5; i++ {
		s.mx.Lock()
		s.history = append(s.history, RecoveryDiagnosis{Severity: SeverityHigh})
		if len(s.history) > historyCapacity {
			s.history = s.history[len(s.history)-historyCapacity:]
		}
		s.mx.Unlock()
	}
	require.Len(t, s.History(), historyCapacity)
}
