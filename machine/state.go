package machine

import "github.com/mastercactapus/gcnc/protocol"

// MachineState mirrors protocol.MachineState under the Controller's own
// name, since the data model treats it as the Controller's state rather
// than a detail of wire decoding. Status reports drive most
// transitions; the Controller also sets Idle on Connect, Alarm on an
// ALARM line, and Disconnected on Disconnect.
type MachineState = protocol.MachineState

const (
	StateUnknown      = protocol.StateUnknown
	StateIdle         = protocol.StateIdle
	StateRun          = protocol.StateRun
	StateHold         = protocol.StateHold
	StateAlarm        = protocol.StateAlarm
	StateHome         = protocol.StateHome
	StateCheck        = protocol.StateCheck
	StateDoor         = protocol.StateDoor
	StateSleep        = protocol.StateSleep
	StateDisconnected = protocol.StateDisconnected
)
