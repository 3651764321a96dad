package sequencer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/mastercactapus/gcnc/machine"
)

const maxJogFeed = 5000.0

// Jogging enforces the single-outstanding-jog invariant with a
// mutex-guarded flag (the resolved Open Question: weak, single-process
// enforcement, matching the level machine/machine.go applies to its own
// single-in-flight invariant). Grounded on machine/probe.go's
// pre-flight-then-runBlocks-then-classify shape.
type Jogging struct {
	ctrl   *machine.Controller
	limits coord.SoftLimits

	mx       sync.Mutex
	inFlight bool
}

func NewJogging(ctrl *machine.Controller, limits coord.SoftLimits) *Jogging {
	return &Jogging{ctrl: ctrl, limits: limits}
}

// Jog builds and sends a single `$J=G91 ...` relative jog, enforcing
// pre-flight checks and a timeout scaled to the requested travel.
func (j *Jogging) Jog(axes map[byte]float64, feed float64) machine.JogResult {
	if !j.tryAcquire() {
		return machine.JogResult{Error: errors.New("jog: another jog is already in progress")}
	}
	defer j.release()

	if err := j.preflight(axes, feed); err != nil {
		return machine.JogResult{Error: err}
	}

	line := buildJogLine(axes, feed)
	timeout := jogTimeout(axes, feed)

	_, err := j.ctrl.Send(line, timeout)
	if err == nil {
		return machine.JogResult{Success: true}
	}

	j.recover(classifyJogFailure(err))
	return machine.JogResult{Error: err}
}

func (j *Jogging) tryAcquire() bool {
	j.mx.Lock()
	defer j.mx.Unlock()
	if j.inFlight {
		return false
	}
	j.inFlight = true
	return true
}

func (j *Jogging) release() {
	j.mx.Lock()
	j.inFlight = false
	j.mx.Unlock()
}

func (j *Jogging) preflight(axes map[byte]float64, feed float64) error {
	if !j.ctrl.IsConnected() {
		return errors.New("jog: not connected")
	}
	if j.ctrl.State() != machine.StateIdle {
		return errors.New("jog: machine not idle")
	}
	if feed > maxJogFeed {
		return fmt.Errorf("jog: feed %.0f exceeds max jog rate %.0f", feed, maxJogFeed)
	}

	expected, _ := j.ctrl.Position()
	proj := expected
	if v, ok := axes['X']; ok {
		proj.X += v
	}
	if v, ok := axes['Y']; ok {
		proj.Y += v
	}
	if v, ok := axes['Z']; ok {
		proj.Z += v
	}
	if violations := j.limits.Violations(proj); len(violations) > 0 {
		return fmt.Errorf("jog: projected position %+v exits soft limits on axis %v", proj, violations)
	}
	return nil
}

func buildJogLine(axes map[byte]float64, feed float64) string {
	var b strings.Builder
	b.WriteString("$J=G91")
	for _, w := range []byte{'X', 'Y', 'Z'} {
		if v, ok := axes[w]; ok {
			fmt.Fprintf(&b, " %c%s", w, formatJogValue(v))
		}
	}
	fmt.Fprintf(&b, " F%s", formatJogValue(feed))
	return b.String()
}

func formatJogValue(v float64) string {
	return fmt.Sprintf("%g", v)
}

// jogTimeout is 1.5x the naive travel-time-at-feed, floored at 10s, per
// the spec's `max_axis_distance / feed * 60 * 1500ms` formula.
func jogTimeout(axes map[byte]float64, feed float64) time.Duration {
	var maxDist float64
	for _, v := range axes {
		if d := abs(v); d > maxDist {
			maxDist = d
		}
	}
	if feed <= 0 {
		return 10 * time.Second
	}
	ms := maxDist / feed * 60 * 1500
	to := time.Duration(ms) * time.Millisecond
	if to < 10*time.Second {
		return 10 * time.Second
	}
	return to
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

type jogFailureKind int

const (
	jogFailureGeneric jogFailureKind = iota
	jogFailureLimit
	jogFailureAlarm
)

func classifyJogFailure(err error) jogFailureKind {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "limit"):
		return jogFailureLimit
	case strings.Contains(msg, "alarm"), strings.Contains(msg, "Alarm"):
		return jogFailureAlarm
	default:
		return jogFailureGeneric
	}
}

// recover runs the scripted recovery appropriate to the failure kind:
// raise Z and clear alarm for a limit/alarm failure, a feed-hold for a
// generic one.
func (j *Jogging) recover(kind jogFailureKind) {
	switch kind {
	case jogFailureLimit, jogFailureAlarm:
		expected, _ := j.ctrl.Position()
		_, _ = j.ctrl.Send(fmt.Sprintf("G0Z%s", formatJogValue(expected.Z+10)), 10*time.Second)
		_, _ = j.ctrl.Send("$X", 5*time.Second)
	default:
		_ = j.ctrl.FeedHold()
	}
}
