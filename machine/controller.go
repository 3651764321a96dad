// Package machine implements the Controller facade: the single owner of
// the Transport, CommandQueue and SafetyValidator, and the source of
// truth for MachineState, position accounting, and the event stream
// every other package and the embedding application subscribes to.
package machine

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/mastercactapus/gcnc/protocol"
	"github.com/mastercactapus/gcnc/queue"
	"github.com/mastercactapus/gcnc/safety"
	"github.com/mastercactapus/gcnc/transport"
)

const defaultStatusPollInterval = 250 * time.Millisecond

// Controller owns the transport, queue and validator, and is the only
// writer of MachineState, the expected/last-known position pair, and
// the command journal — matching the ownership rules the data model
// lays out. Sequencers hold a *Controller back-reference for sending
// commands and reading state, never for ownership.
type Controller struct {
	link      *transport.Link
	queue     *queue.CommandQueue
	validator *safety.Validator
	events    *eventBus
	journal   *journal

	mx         sync.Mutex
	state      MachineState
	lastAlarm  *protocol.Alarm
	pos        positionTracker
	lastStatus *protocol.Status

	pollCancel context.CancelFunc
	pollMx     sync.Mutex

	currentJob jobStopper

	homer  Homer
	jogger Jogger
	prober Prober
}

// jobStopper is the narrow surface the Controller needs from whatever
// JobRunner is currently streaming a program, so stop_job can reach it
// without machine importing job (which would cycle, since job imports
// machine).
type jobStopper interface {
	MarkStopped()
}

// New constructs a disconnected Controller around the given dialer and
// limits. Call Connect to open the link.
func New(dialer transport.Dialer, limits coord.SoftLimits, speed coord.SpeedLimits) *Controller {
	return &Controller{
		link:      transport.NewLink(dialer),
		validator: safety.New(limits, speed),
		events:    newEventBus(),
		journal:   newJournal(),
		state:     StateDisconnected,
	}
}

// Events returns a channel of future events and a cancel func that
// unsubscribes it.
func (c *Controller) Events() (<-chan Event, func()) { return c.events.Subscribe() }

// Publish broadcasts an event to subscribers. Sequencer and job hold a
// Controller reference but not the event bus itself; they use Publish
// to emit the parts of the event taxonomy that originate in their own
// scripted procedures (homingStep, probeStarted, jobProgress, ...)
// rather than from a decoded line.
func (c *Controller) Publish(kind EventKind, payload interface{}) {
	c.events.publish(Event{Kind: kind, Payload: payload})
}

// Connect opens the transport and starts the line-processing loop.
func (c *Controller) Connect() error {
	if err := c.link.Open(); err != nil {
		return newError(ErrorConnectionFailed, "connect", err)
	}
	relay := make(chan string, 16)
	go c.relayLines(relay)
	c.queue = queue.New(c.link, relay, c.classify)
	go c.errorLoop()
	c.setState(StateIdle)
	c.events.publish(Event{Kind: EventConnected})
	return nil
}

// relayLines applies status/alarm/probe lines to the Controller's own
// state as they arrive — independent of whether a command happens to
// be in flight — then forwards every line on to the CommandQueue,
// which only consults its Classifier while it has something dispatched.
// Unsolicited alarms (the device can raise one at any time) would
// otherwise be silently dropped while the queue is idle.
func (c *Controller) relayLines(out chan<- string) {
	defer close(out)
	for line := range c.link.Lines() {
		switch protocol.Classify(line) {
		case "status":
			if st, err := protocol.ParseStatus(line); err == nil {
				c.applyStatus(st)
			}
		case "alarm":
			if al, err := protocol.ParseAlarm(line); err == nil {
				c.mx.Lock()
				c.lastAlarm = al
				c.mx.Unlock()
				c.setState(StateAlarm)
				c.events.publish(Event{Kind: EventAlarm, Payload: al})
			}
		}
		out <- line
	}
}

// Disconnect closes the transport. Idempotent.
func (c *Controller) Disconnect() error {
	c.StopStatusPolling()
	if c.queue != nil {
		c.queue.Close()
	}
	err := c.link.Close()
	c.setState(StateDisconnected)
	c.events.publish(Event{Kind: EventDisconnected})
	return err
}

// IsConnected reports whether the transport believes it holds a usable
// link (connected and not of Poor quality).
func (c *Controller) IsConnected() bool { return c.link.IsConnected() }

func (c *Controller) errorLoop() {
	for err := range c.link.Errors() {
		c.events.publish(Event{Kind: EventError, Payload: newError(ErrorConnectionFailed, "transport", err)})
	}
}

// classify adapts protocol's pure line classification into the shape
// queue.CommandQueue's Classifier expects. State side effects (applying
// a decoded status/alarm/probe report) already happened in relayLines;
// this function only decides whether line terminates the in-flight
// command and whether it signals failure.
func (c *Controller) classify(line string, wasStatus, wasProbe bool) (terminal bool, isError bool) {
	switch protocol.Classify(line) {
	case "status":
		return wasStatus, false
	case "probe":
		return wasProbe, false
	case "alarm":
		return false, false
	case "error":
		return true, true
	case "ok":
		return true, false
	default:
		return false, false
	}
}

func (c *Controller) applyStatus(st *protocol.Status) {
	c.mx.Lock()
	c.lastStatus = st
	c.pos.setLastKnown(st.MPos)
	c.state = st.State
	c.mx.Unlock()
	c.events.publish(Event{Kind: EventStatus, Payload: st})
	c.events.publish(Event{Kind: EventStatusUpdate, Payload: st.Raw})
}

func (c *Controller) setState(s MachineState) {
	c.mx.Lock()
	c.state = s
	c.mx.Unlock()
}

// State returns the Controller's current MachineState.
func (c *Controller) State() MachineState {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.state
}

// LastAlarm returns the most recently observed alarm, or nil if none
// has been seen.
func (c *Controller) LastAlarm() *protocol.Alarm {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.lastAlarm
}

// LastStatus returns the most recently decoded status report, or nil if
// none has been seen yet, without issuing a new `?` query.
func (c *Controller) LastStatus() *protocol.Status {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.lastStatus
}

// Position returns the expected and last-known positions.
func (c *Controller) Position() (expected, lastKnown coord.Point) {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.pos.expected, c.pos.lastKnown
}

// CheckPositionMismatch reports whether expected and last-known
// position have diverged beyond tolerance on any axis.
func (c *Controller) CheckPositionMismatch() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.pos.mismatch()
}

// Journal returns the retained command journal entries.
func (c *Controller) Journal() []JournalEntry { return c.journal.Entries() }

// Send validates, tracks modal state, updates expected position, journals,
// and dispatches line via the CommandQueue with the given timeout (zero
// selects the queue's default).
func (c *Controller) Send(line string, timeout time.Duration) (queue.Result, error) {
	verdict := c.validator.Validate(line)
	switch verdict.Kind {
	case safety.Invalid:
		return queue.Result{}, newError(ErrorSafetyViolation, verdict.Message, nil)
	case safety.Warn:
		c.events.publish(Event{Kind: EventWarning, Payload: verdict.Message})
	}

	fields := parseWordFields(line)
	c.mx.Lock()
	prevExpected := c.pos.expected
	c.pos.applyCommand(strings.ToUpper(strings.TrimSpace(line)), fields)
	c.validator.CurrentMPos = c.pos.expected
	delta := c.pos.expected.Sub(prevExpected)
	c.mx.Unlock()

	var deltaPtr *coord.Point
	if delta != (coord.Point{}) {
		deltaPtr = &delta
	}
	c.journal.record(JournalEntry{Command: line, Timestamp: time.Now(), ExpectedPositionDelta: deltaPtr})

	if c.queue == nil {
		return queue.Result{}, newError(ErrorMachineNotReady, "not connected", nil)
	}
	res := c.queue.Execute(context.Background(), line+"\n", timeout)
	if res.Err != nil {
		return res, newError(classifyQueueErr(res.Err), "send", res.Err)
	}
	return res, nil
}

func classifyQueueErr(err error) ErrorKind {
	switch err {
	case context.DeadlineExceeded:
		return ErrorCommandTimeout
	case queue.ErrCancelled:
		return ErrorCancelled
	case queue.ErrQueueFull:
		return ErrorBufferOverflow
	default:
		return ErrorHardwareError
	}
}

// GetStatus sends `?` and decodes the reply. `?` is a realtime control
// byte (like `!`/`~`/0x18) and bypasses the CommandQueue entirely,
// matching the spec's real-time-byte exception.
func (c *Controller) GetStatus() (*protocol.Status, error) {
	ch, cancel := c.events.Subscribe()
	defer cancel()

	if err := c.link.Send([]byte("?")); err != nil {
		return nil, newError(ErrorConnectionFailed, "status query", err)
	}

	timeout := time.NewTimer(2 * time.Second)
	defer timeout.Stop()
	for {
		select {
		case ev := <-ch:
			if ev.Kind == EventStatus {
				return ev.Payload.(*protocol.Status), nil
			}
		case <-timeout.C:
			c.mx.Lock()
			st := c.lastStatus
			c.mx.Unlock()
			if st != nil {
				return st, nil
			}
			return nil, newError(ErrorCommandTimeout, "status query timed out", nil)
		}
	}
}

// StartStatusPolling begins a best-effort recurring `?` at the given
// interval (zero selects the default 250 ms). Polling errors are
// silently swallowed, matching the spec's "best-effort" contract.
func (c *Controller) StartStatusPolling(interval time.Duration) {
	if interval <= 0 {
		interval = defaultStatusPollInterval
	}
	c.pollMx.Lock()
	defer c.pollMx.Unlock()
	if c.pollCancel != nil {
		c.pollCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.pollCancel = cancel
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = c.GetStatus()
			}
		}
	}()
}

// StopStatusPolling halts any recurring poll started by
// StartStatusPolling. Idempotent.
func (c *Controller) StopStatusPolling() {
	c.pollMx.Lock()
	defer c.pollMx.Unlock()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
}

// EmergencyStop writes the soft-reset byte directly (bypassing the
// queue, per the real-time-byte exception), clears the queue, and
// never returns an error — the spec requires this path to never throw.
func (c *Controller) EmergencyStop() {
	_ = c.link.Send([]byte{0x18})
	if c.queue != nil {
		c.queue.Clear()
	}
	if c.currentJob != nil {
		c.currentJob.MarkStopped()
	}
	c.events.publish(Event{Kind: EventEmergencyStop})
}

// FeedHold writes `!` directly.
func (c *Controller) FeedHold() error {
	err := c.link.Send([]byte{'!'})
	c.events.publish(Event{Kind: EventFeedHold})
	return err
}

// Resume writes `~` (cycle start / resume) directly, the realtime
// counterpart to FeedHold used by the JobRunner's resume_job.
func (c *Controller) Resume() error {
	return c.link.Send([]byte{'~'})
}

// SoftReset writes the soft-reset byte, waits 1s, then clears the queue.
func (c *Controller) SoftReset() error {
	err := c.link.Send([]byte{0x18})
	time.Sleep(time.Second)
	if c.queue != nil {
		c.queue.Clear()
	}
	c.events.publish(Event{Kind: EventSoftReset})
	return err
}

// StopJob performs feed-hold + soft-reset (or an emergency-stop) and
// marks any running job Stopped.
func (c *Controller) StopJob(emergency bool) error {
	if emergency {
		c.EmergencyStop()
		return nil
	}
	if err := c.FeedHold(); err != nil {
		return err
	}
	if err := c.SoftReset(); err != nil {
		return err
	}
	if c.currentJob != nil {
		c.currentJob.MarkStopped()
	}
	return nil
}

// SetCurrentJob registers the job currently streaming, so
// EmergencyStop/StopJob can mark it Stopped without machine importing
// job.
func (c *Controller) SetCurrentJob(j jobStopper) {
	c.mx.Lock()
	c.currentJob = j
	c.mx.Unlock()
}

// parseWordFields extracts G/X/Y/Z words from a line into a map, used
// by position accounting to know which coordinates (and distance-mode
// switches) a line carries.
func parseWordFields(line string) map[byte]float64 {
	out := make(map[byte]float64)
	upper := strings.ToUpper(strings.TrimSpace(line))
	var letter byte
	var numStart int
	flush := func(end int) {
		if letter == 0 {
			return
		}
		if v, err := parseFloatLenient(strings.TrimSpace(upper[numStart:end])); err == nil {
			out[letter] = v
		}
	}
	for i := 0; i < len(upper); i++ {
		ch := upper[i]
		if ch >= 'A' && ch <= 'Z' {
			flush(i)
			letter = ch
			numStart = i + 1
		}
	}
	flush(len(upper))
	return out
}

func parseFloatLenient(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
