package machine

import "sync"

// EventKind tags the payload carried on an Event, covering every event
// named in the Controller's contract.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventStatus
	EventStatusUpdate
	EventAlarm
	EventWarning
	EventJobProgress
	EventJobComplete
	EventEmergencyStop
	EventFeedHold
	EventSoftReset
	EventProbeStarted
	EventProbeCompleted
	EventProbeFailed
	EventGridProbeProgress
	EventHomingStep
	EventHomingCompleted
	EventRecoveryNeeded
	EventRecoveryStarted
	EventRecoveryCompleted
	EventRecoveryFailed
	EventError
)

// Event is a single notification delivered to subscribers in the order
// its originating line (or internal transition) occurred. Payload holds
// whatever value is natural for Kind (a *protocol.Status for
// EventStatus, a *machine.Error for EventError, and so on); subscribers
// type-assert it.
type Event struct {
	Kind    EventKind
	Payload interface{}
}

// eventBus fans a single Publish out to every current subscriber,
// matching the teacher's `range m.State()`-and-republish idiom
// (machine/machine.go's holdMessage channel, cmd/gcnc/api.go's
// `for state := range m.State()`) generalized from one hardcoded event
// shape to the full event taxonomy in spec §4.6.
type eventBus struct {
	mx   sync.Mutex
	subs map[int]chan Event
	next int
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan Event)}
}

// Subscribe returns a buffered channel of future events and a cancel
// func that unsubscribes it. Slow subscribers drop events rather than
// block publication — the event feed is best-effort, matching the
// Controller's own non-blocking status-poll philosophy.
func (b *eventBus) Subscribe() (<-chan Event, func()) {
	b.mx.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch
	b.mx.Unlock()

	cancel := func() {
		b.mx.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mx.Unlock()
	}
	return ch, cancel
}

func (b *eventBus) publish(ev Event) {
	b.mx.Lock()
	defer b.mx.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
