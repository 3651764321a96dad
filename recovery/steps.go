package recovery

import (
	"time"

	"github.com/mastercactapus/gcnc/gcode"
	"github.com/mastercactapus/gcnc/machine"
)

const sendTimeout = 10 * time.Second

func raiseZ(ctrl *machine.Controller) error {
	line := gcode.Command{{W: 'G', Arg: 91}, {W: 'G', Arg: 0}, {W: 'Z', Arg: raiseZAmount}, {W: 'G', Arg: 90}}.String()
	_, err := ctrl.Send(line, sendTimeout)
	return err
}

func clearAlarm(ctrl *machine.Controller) error {
	_, err := ctrl.Send("$X", sendTimeout)
	return err
}

// limitSteps: raise Z off the triggered limit switch, then clear the
// alarm. Re-homing is left to the operator (RecommendedActions says
// so) since it requires a confirmed, attended run.
func limitSteps() []RecoveryStep {
	return []RecoveryStep{
		{ID: "raise-z", Description: "raise Z off the limit switch", Action: raiseZ},
		{ID: "clear-alarm", Description: "clear the alarm ($X)", Action: clearAlarm, ConfirmationRequired: true},
	}
}

// probeFailSteps: homing/probe alarms don't imply a physical hazard in
// the way a limit trip does, so clearing is the whole script.
func probeFailSteps() []RecoveryStep {
	return []RecoveryStep{
		{ID: "clear-alarm", Description: "clear the alarm ($X)", Action: clearAlarm, ConfirmationRequired: true},
	}
}

// genericAlarmSteps requires confirmation before even clearing, since
// the cause is unclassified and may indicate a real fault.
func genericAlarmSteps() []RecoveryStep {
	return []RecoveryStep{
		{ID: "clear-alarm", Description: "clear the alarm ($X) after inspecting the machine", Action: clearAlarm, ConfirmationRequired: true},
	}
}

// stepLossSteps: position divergence can't be corrected automatically
// without trusting a displaced machine, so this only raises Z for the
// operator to re-home; the actual $H is left to HomingSequencer.
func stepLossSteps() []RecoveryStep {
	return []RecoveryStep{
		{ID: "raise-z", Description: "raise Z before re-homing", Action: raiseZ, ConfirmationRequired: true},
	}
}

// reconnectSteps: ConnectionLost has nothing for the CommandQueue to
// send — reconnection itself is the Controller's job (Connect), not a
// gcode line — so this script is descriptive only, driving the
// embedding application's own reconnect UI rather than the queue.
func reconnectSteps() []RecoveryStep {
	return []RecoveryStep{
		{ID: "reconnect", Description: "reconnect the transport", Action: func(*machine.Controller) error { return nil }, ConfirmationRequired: true},
	}
}
