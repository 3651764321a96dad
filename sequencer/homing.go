// Package sequencer implements the scripted multi-step procedures that
// ride on top of the Controller: homing, jogging, and single/grid
// probing. Each sequencer holds a back-reference to a *machine.Controller
// for sending commands and reading state, never for ownership — the
// Controller is wired to call back into these via the narrow
// Homer/Jogger/Prober interfaces it declares, set up by the composition
// root.
package sequencer

import (
	"errors"
	"time"

	"github.com/mastercactapus/gcnc/gcode"
	"github.com/mastercactapus/gcnc/machine"
)

const (
	stepRetryBase = time.Second
	stepRetryCap  = 10 * time.Second
	stepRetries   = 3
	homingTimeout = 60 * time.Second
)

// Homing is grounded in shape on machine/toolchange.go's multi-step
// hold/probe/recover pattern — the closest teacher analogue to a
// scripted procedure with critical/retryable steps and a recovery
// sub-routine.
type Homing struct {
	ctrl   *machine.Controller
	zMax   float64
	origin bool
}

// NewHoming constructs a Homing sequencer. zMax is the Z soft-limit
// maximum used to compute the safe-raise height in step 2.
func NewHoming(ctrl *machine.Controller, zMax float64) *Homing {
	return &Homing{ctrl: ctrl, zMax: zMax}
}

type homingStep struct {
	name      string
	critical  bool
	retryable bool
	run       func() error
}

// Home runs the 6-step homing script. axes, if non-empty, restricts
// homing to the named axes ("X", "Y", "Z") via $HX/$HY/$HZ instead of
// the unqualified $H.
func (h *Homing) Home(axes []string) machine.HomingResult {
	var completed []string

	steps := h.steps(axes)
	for _, step := range steps {
		err := h.runStep(step)
		if err == nil {
			completed = append(completed, step.name)
			h.ctrl.Publish(machine.EventHomingStep, step.name)
			continue
		}
		if !step.critical {
			completed = append(completed, step.name+" (failed, non-critical)")
			h.ctrl.Publish(machine.EventHomingStep, step.name+" (failed, non-critical)")
			continue
		}
		h.recover()
		result := machine.HomingResult{Success: false, Steps: completed, Error: err}
		h.ctrl.Publish(machine.EventHomingCompleted, result)
		return result
	}

	result := machine.HomingResult{Success: true, Steps: completed}
	h.ctrl.Publish(machine.EventHomingCompleted, result)
	return result
}

func (h *Homing) steps(axes []string) []homingStep {
	return []homingStep{
		{name: "pre-flight", critical: true, run: h.preflight},
		{name: "raise-z", critical: true, retryable: true, run: h.raiseZ},
		{name: "home-command", critical: true, run: func() error { return h.sendHomeCommand(axes) }},
		{name: "wait-for-idle", critical: true, run: h.waitForIdle},
		{name: "return-to-origin", critical: false, retryable: true, run: h.returnToOrigin},
		{name: "verify-position", critical: false, run: h.verifyPosition},
	}
}

func (h *Homing) runStep(step homingStep) error {
	if !step.retryable {
		return step.run()
	}
	delay := stepRetryBase
	var err error
	for attempt := 0; attempt < stepRetries; attempt++ {
		if err = step.run(); err == nil {
			return nil
		}
		time.Sleep(delay)
		delay *= 2
		if delay > stepRetryCap {
			delay = stepRetryCap
		}
	}
	return err
}

func (h *Homing) preflight() error {
	if !h.ctrl.IsConnected() {
		return errors.New("homing: not connected")
	}
	if h.ctrl.State() == machine.StateAlarm {
		return errors.New("homing: machine in alarm")
	}
	return nil
}

func (h *Homing) raiseZ() error {
	line := gcode.Command{{W: 'G', Arg: 0}, {W: 'Z', Arg: h.zMax - 10}}.String()
	_, err := h.ctrl.Send(line, 10*time.Second)
	return err
}

func (h *Homing) sendHomeCommand(axes []string) error {
	if len(axes) == 0 {
		_, err := h.ctrl.Send("$H", homingTimeout)
		return err
	}
	for _, axis := range axes {
		if _, err := h.ctrl.Send("$H"+axis, homingTimeout); err != nil {
			return err
		}
	}
	return nil
}

func (h *Homing) waitForIdle() error {
	deadline := time.Now().Add(homingTimeout)
	for time.Now().Before(deadline) {
		st, err := h.ctrl.GetStatus()
		if err == nil && st != nil {
			switch st.State {
			case machine.StateIdle:
				return nil
			case machine.StateAlarm:
				return errors.New("homing: alarm during homing")
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	return errors.New("homing: timed out waiting for Idle")
}

func (h *Homing) returnToOrigin() error {
	line := gcode.Command{{W: 'G', Arg: 0}, {W: 'X', Arg: 0}, {W: 'Y', Arg: 0}}.String()
	_, err := h.ctrl.Send(line, 10*time.Second)
	return err
}

func (h *Homing) verifyPosition() error {
	expected, lastKnown := h.ctrl.Position()
	_ = expected
	if lastKnown.DistanceXY(0, 0) > 0.1 {
		return errors.New("homing: position not within tolerance of origin")
	}
	return nil
}

// recover runs the safe-recovery sub-routine: raise Z, clear alarm.
func (h *Homing) recover() {
	_, _ = h.ctrl.Send(gcode.Command{{W: 'G', Arg: 0}, {W: 'Z', Arg: h.zMax - 10}}.String(), 10*time.Second)
	_, _ = h.ctrl.Send("$X", 5*time.Second)
}
