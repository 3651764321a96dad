// Package queue implements the CommandQueue: a FIFO of outgoing GRBL
// lines with the at-most-one-in-flight discipline, response-line
// accumulation, retry with backoff, and atomic cancellation. It is the
// single point through which every non-realtime command reaches the
// Transport, so it is what gives the host its ordering guarantee.
package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	maxQueueLength  = 50
	defaultAttempts = 3
	retryBase       = 100 * time.Millisecond
	retryCap        = 5 * time.Second
)

// ErrQueueFull is returned by Execute when the queue is already at
// capacity.
var ErrQueueFull = errors.New("queue: capacity exceeded")

// ErrCancelled is delivered to every waiting and dispatched command when
// Clear is called.
var ErrCancelled = errors.New("queue: cancelled")

// Sender writes a line (already newline-terminated by the caller) to the
// transport. The queue never appends its own framing.
type Sender interface {
	Send(p []byte) error
}

// command is one FIFO entry: the line to send, its retry budget, and the
// channel its caller is waiting on.
type command struct {
	line        string
	timeout     time.Duration
	maxAttempts int
	attempt     int

	resultCh chan Result
	cancelled bool
}

// Result is what Execute resolves with: the accumulated response lines
// and a terminal classification.
type Result struct {
	Lines []string
	Err   error
}

// Classifier tells the queue which accumulated line, if any, terminates
// the in-flight command's wait. It mirrors ProtocolCodec's line
// classification without the queue needing to import it directly,
// keeping queue decoupled from protocol.
type Classifier func(line string, wasStatusQuery, wasProbeQuery bool) (terminal bool, isError bool)

// CommandQueue is the FIFO described in spec §4.2. A single goroutine
// (started by New) owns dispatch, preserving strict FIFO order and the
// at-most-one-in-flight invariant without any additional locking on the
// hot path.
type CommandQueue struct {
	sender     Sender
	classify   Classifier
	lines      <-chan string

	mx           sync.Mutex
	pending      []*command
	current      *command
	buf          []string
	retryPending bool

	enqueueCh chan *command
	wakeCh    chan struct{}
	clearCh   chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
}

// New constructs a CommandQueue. lines must deliver every line the
// Transport reads, in order; classify decides which line resolves the
// in-flight command.
func New(sender Sender, lines <-chan string, classify Classifier) *CommandQueue {
	q := &CommandQueue{
		sender:    sender,
		classify:  classify,
		lines:     lines,
		enqueueCh: make(chan *command),
		wakeCh:    make(chan struct{}, 1),
		clearCh:   make(chan struct{}),
		closeCh:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Execute enqueues line and blocks until it resolves (ok, error, status/
// probe report, timeout-exhausted, or cancellation). It returns
// ErrQueueFull synchronously without enqueuing anything if the queue is
// already saturated.
func (q *CommandQueue) Execute(ctx context.Context, line string, timeout time.Duration) Result {
	if q.Len() >= maxQueueLength {
		return Result{Err: ErrQueueFull}
	}

	cmd := &command{
		line:        line,
		timeout:     timeout,
		maxAttempts: defaultAttempts,
		resultCh:    make(chan Result, 1),
	}

	select {
	case q.enqueueCh <- cmd:
	case <-q.closeCh:
		return Result{Err: ErrCancelled}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}

	select {
	case res := <-cmd.resultCh:
		return res
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// Clear rejects every waiting and dispatched command with ErrCancelled.
// Per invariant (iii), the cancellation is observable before the next
// command is dispatched.
func (q *CommandQueue) Clear() {
	select {
	case q.clearCh <- struct{}{}:
	case <-q.closeCh:
	}
}

// Close stops the queue's dispatch loop. Idempotent.
func (q *CommandQueue) Close() {
	q.closeOnce.Do(func() { close(q.closeCh) })
}

// Len reports the number of commands waiting or in flight.
func (q *CommandQueue) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	n := len(q.pending)
	if q.current != nil {
		n++
	}
	return n
}

func (q *CommandQueue) run() {
	var timeoutCh <-chan time.Time
	var timer *time.Timer

	resetTimer := func(d time.Duration) {
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(d)
		timeoutCh = timer.C
	}

	dispatchNext := func() {
		q.mx.Lock()
		if q.current != nil || q.retryPending || len(q.pending) == 0 {
			q.mx.Unlock()
			return
		}
		cmd := q.pending[0]
		q.pending = q.pending[1:]
		q.current = cmd
		q.buf = nil
		q.mx.Unlock()

		cmd.attempt++

		err := q.sender.Send([]byte(cmd.line))
		if err != nil {
			q.resolveCurrent(Result{Err: err})
			return
		}
		to := cmd.timeout
		if to <= 0 {
			to = 10 * time.Second
		}
		resetTimer(to)
	}

	for {
		select {
		case <-q.closeCh:
			q.rejectAll(ErrCancelled)
			return

		case <-q.clearCh:
			q.rejectAll(ErrCancelled)
			if timer != nil {
				timer.Stop()
				timeoutCh = nil
			}

		case cmd := <-q.enqueueCh:
			q.mx.Lock()
			q.pending = append(q.pending, cmd)
			q.mx.Unlock()
			dispatchNext()

		case <-q.wakeCh:
			dispatchNext()

		case line, ok := <-q.lines:
			if !ok {
				continue
			}
			q.mx.Lock()
			cur := q.current
			if cur != nil {
				q.buf = append(q.buf, line)
			}
			q.mx.Unlock()
			if cur == nil {
				continue
			}

			wasStatus := cur.line == "?"
			wasProbe := strings.HasPrefix(cur.line, "G38.")
			terminal, isErr := q.classify(line, wasStatus, wasProbe)
			if !terminal {
				continue
			}
			if timer != nil {
				timer.Stop()
				timeoutCh = nil
			}

			q.mx.Lock()
			lines := append([]string(nil), q.buf...)
			q.mx.Unlock()

			if isErr {
				q.retryOrFail(cur, lines, errors.New("queue: device reported an error"))
			} else {
				q.resolveCurrent(Result{Lines: lines})
			}
			dispatchNext()

		case <-timeoutCh:
			timeoutCh = nil
			q.mx.Lock()
			cur := q.current
			q.mx.Unlock()
			if cur == nil {
				continue
			}
			q.retryOrFail(cur, nil, context.DeadlineExceeded)
			dispatchNext()
		}
	}
}

func (q *CommandQueue) retryOrFail(cmd *command, lines []string, cause error) {
	if cmd.attempt >= cmd.maxAttempts {
		q.resolveCurrent(Result{Lines: lines, Err: cause})
		return
	}

	delay := retryBase * time.Duration(1<<uint(cmd.attempt))
	if delay > retryCap {
		delay = retryCap
	}

	// retryPending holds dispatchNext off until cmd is actually back at
	// the front of pending — otherwise a command already waiting behind
	// it would get dispatched (and could resolve) before this retry's
	// backoff elapses, breaking the FIFO-position guarantee (spec §5).
	q.mx.Lock()
	q.current = nil
	q.retryPending = true
	q.mx.Unlock()

	go func() {
		select {
		case <-time.After(delay):
		case <-q.closeCh:
			return
		}
		q.mx.Lock()
		q.pending = append([]*command{cmd}, q.pending...)
		q.retryPending = false
		q.mx.Unlock()
		select {
		case q.wakeCh <- struct{}{}:
		default:
		}
	}()
}

func (q *CommandQueue) resolveCurrent(res Result) {
	q.mx.Lock()
	cur := q.current
	q.current = nil
	q.buf = nil
	q.mx.Unlock()

	if cur != nil && !cur.cancelled {
		cur.resultCh <- res
	}
}

func (q *CommandQueue) rejectAll(err error) {
	q.mx.Lock()
	all := q.pending
	cur := q.current
	q.pending = nil
	q.current = nil
	q.buf = nil
	q.mx.Unlock()

	for _, cmd := range all {
		cmd.cancelled = true
		cmd.resultCh <- Result{Err: err}
	}
	if cur != nil {
		cur.cancelled = true
		cur.resultCh <- Result{Err: err}
	}
}
