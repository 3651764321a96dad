// Package recovery implements the RecoverySupervisor: a periodic
// self-diagnosis that maps a broken invariant (disconnected, alarmed,
// step loss) to a severity-tagged RecoveryDiagnosis carrying a scripted
// RecoveryStep list, and an executor that runs those steps honoring
// per-step confirmation gating. Grounded in shape on machine/machine.go's
// hold()-and-recover pattern and the recovery calls scattered through
// toolchange.go/probe.go ($X clear-alarm, raise-Z-then-retry) — the
// teacher never consolidated these into one supervisor; this package is
// new functionality built from that shape.
package recovery

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mastercactapus/gcnc/machine"
	"github.com/mastercactapus/gcnc/protocol"
)

const (
	pollInterval    = 30 * time.Second
	historyCapacity = 50
	raiseZAmount    = 10.0
)

// Severity is the RecoveryDiagnosis's tagged urgency. SeverityNormal
// means no action is needed and is never placed in history.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "Normal"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// RecoveryStep is one scripted remediation action. ConfirmationRequired
// steps pause execution until the caller-supplied acknowledger returns.
type RecoveryStep struct {
	ID                   string
	Description          string
	Action               func(ctrl *machine.Controller) error
	ConfirmationRequired bool
}

// RecoveryDiagnosis is the result of one self-check pass.
type RecoveryDiagnosis struct {
	State              machine.MachineState
	Severity           Severity
	ProbableCause      string
	AffectedAxes       []string
	RecommendedActions []string
	Steps              []RecoveryStep
	DiagnosedAt        time.Time
}

// Acknowledger is consulted before running a ConfirmationRequired step;
// returning false aborts the recovery script.
type Acknowledger func(step RecoveryStep) bool

// Supervisor polls a *machine.Controller every 30s while connected,
// running Diagnose and, for a Critical diagnosis, ExecuteRecovery
// automatically (§7: "automatic recovery is invoked for critical
// severity only"). Non-critical diagnoses publish EventRecoveryNeeded
// and wait for an explicit AutoRecover call.
type Supervisor struct {
	ctrl *machine.Controller

	mx      sync.Mutex
	history []RecoveryDiagnosis
	cancel  func()
}

func NewSupervisor(ctrl *machine.Controller) *Supervisor {
	return &Supervisor{ctrl: ctrl}
}

// Start begins the 30s poll loop. Idempotent: a second Start before
// Stop is a no-op.
func (s *Supervisor) Start() {
	s.mx.Lock()
	if s.cancel != nil {
		s.mx.Unlock()
		return
	}
	stop := make(chan struct{})
	s.cancel = sync.OnceFunc(func() { close(stop) })
	s.mx.Unlock()

	go func() {
		t := time.NewTicker(pollInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				s.poll()
			}
		}
	}()
}

// Stop cancels the poll loop. Idempotent.
func (s *Supervisor) Stop() {
	s.mx.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mx.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Supervisor) poll() {
	if !s.ctrl.IsConnected() {
		return
	}
	d := s.Diagnose()
	if d.Severity == SeverityNormal {
		return
	}

	s.mx.Lock()
	s.history = append(s.history, d)
	if len(s.history) > historyCapacity {
		s.history = s.history[len(s.history)-historyCapacity:]
	}
	s.mx.Unlock()

	if d.Severity == SeverityCritical {
		_ = s.ExecuteRecovery(d, func(RecoveryStep) bool { return true })
		return
	}
	s.ctrl.Publish(machine.EventRecoveryNeeded, d)
}

// Diagnose runs the ordered self-check: (1) disconnected ->
// ConnectionLost/high; (2) Alarm -> lookup by code; (3) position
// mismatch -> StepLossDetected/high; (4) otherwise Normal.
func (s *Supervisor) Diagnose() RecoveryDiagnosis {
	now := time.Now()

	if !s.ctrl.IsConnected() {
		return RecoveryDiagnosis{
			State:              machine.StateDisconnected,
			Severity:           SeverityHigh,
			ProbableCause:      "connection lost",
			RecommendedActions: []string{"reconnect the transport"},
			Steps:              reconnectSteps(),
			DiagnosedAt:        now,
		}
	}

	if s.ctrl.State() == machine.StateAlarm {
		return diagnoseAlarm(s.ctrl.LastAlarm(), now)
	}

	if s.ctrl.CheckPositionMismatch() {
		return RecoveryDiagnosis{
			State:              machine.StateIdle,
			Severity:           SeverityHigh,
			ProbableCause:      "expected and last-known position diverged beyond tolerance",
			AffectedAxes:       []string{"X", "Y", "Z"},
			RecommendedActions: []string{"re-home before resuming motion"},
			Steps:              stepLossSteps(),
			DiagnosedAt:        now,
		}
	}

	return RecoveryDiagnosis{State: s.ctrl.State(), Severity: SeverityNormal, DiagnosedAt: now}
}

// diagnoseAlarm maps a GRBL alarm code to a cause/severity/script.
// Codes follow grbl 1.1's ALARM table: 1-2 hard/soft limit, 4-5
// probe fail; anything else, the homing failures 6, 8 and 9 included,
// is treated as generic.
func diagnoseAlarm(alarm *protocol.Alarm, now time.Time) RecoveryDiagnosis {
	code := 0
	if alarm != nil {
		code = alarm.Code
	}
	switch code {
	case 1, 2:
		return RecoveryDiagnosis{
			State:              machine.StateAlarm,
			Severity:           SeverityMedium,
			ProbableCause:      fmt.Sprintf("hard/soft limit triggered (ALARM:%d)", code),
			AffectedAxes:       []string{"X", "Y", "Z"},
			RecommendedActions: []string{"raise Z", "clear alarm", "re-home"},
			Steps:              limitSteps(),
			DiagnosedAt:        now,
		}
	case 4, 5:
		return RecoveryDiagnosis{
			State:              machine.StateAlarm,
			Severity:           SeverityMedium,
			ProbableCause:      fmt.Sprintf("probe failure (ALARM:%d)", code),
			RecommendedActions: []string{"clear alarm", "retry the operation"},
			Steps:              probeFailSteps(),
			DiagnosedAt:        now,
		}
	default:
		return RecoveryDiagnosis{
			State:              machine.StateAlarm,
			Severity:           SeverityHigh,
			ProbableCause:      fmt.Sprintf("alarm (ALARM:%d)", code),
			RecommendedActions: []string{"clear alarm", "inspect machine before resuming"},
			Steps:              genericAlarmSteps(),
			DiagnosedAt:        now,
		}
	}
}

// ExecuteRecovery runs d's steps in order, consulting ack before any
// ConfirmationRequired step. It stops and returns an error on the first
// step failure or declined confirmation, otherwise re-diagnoses and
// fails if the machine is still not Normal.
func (s *Supervisor) ExecuteRecovery(d RecoveryDiagnosis, ack Acknowledger) error {
	s.ctrl.Publish(machine.EventRecoveryStarted, d)

	for _, step := range d.Steps {
		if step.ConfirmationRequired && (ack == nil || !ack(step)) {
			err := fmt.Errorf("recovery: step %q declined", step.ID)
			s.ctrl.Publish(machine.EventRecoveryFailed, err)
			return err
		}
		if err := step.Action(s.ctrl); err != nil {
			s.ctrl.Publish(machine.EventRecoveryFailed, err)
			return fmt.Errorf("recovery: step %q failed: %w", step.ID, err)
		}
	}

	redo := s.Diagnose()
	if redo.Severity != SeverityNormal {
		err := errors.New("recovery: machine still not Normal after recovery script")
		s.ctrl.Publish(machine.EventRecoveryFailed, err)
		return err
	}
	s.ctrl.Publish(machine.EventRecoveryCompleted, d)
	return nil
}

// History returns the bounded 50-entry deque of past non-Normal
// diagnoses, oldest first.
func (s *Supervisor) History() []RecoveryDiagnosis {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]RecoveryDiagnosis, len(s.history))
	copy(out, s.history)
	return out
}
