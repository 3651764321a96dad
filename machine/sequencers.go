package machine

import "github.com/mastercactapus/gcnc/coord"

// Homer, Jogger and Prober are the narrow surfaces Home/Jog/Probe/
// ProbeGrid delegate to. machine never imports sequencer (sequencer
// imports machine, to operate on a *Controller directly) so the
// concrete implementations are wired in by the composition root via
// the Set* methods below — this is how the Controller can "own" its
// sequencer instances per the data model without an import cycle.
type Homer interface {
	Home(axes []string) HomingResult
}

type Jogger interface {
	Jog(axes map[byte]float64, feed float64) JogResult
}

type Prober interface {
	Probe(axis byte, feed, distance float64) ProbeRunResult
	ProbeGrid(gridX, gridY, step, feed float64) GridProbeResult
}

// HomingResult, JogResult, ProbeRunResult and GridProbeResult are
// declared here (rather than in sequencer) so Controller's delegating
// methods can return them without importing sequencer.
type HomingResult struct {
	Success bool
	Steps   []string
	Error   error
}

type JogResult struct {
	Success bool
	Error   error
}

type ProbeRunResult struct {
	Success bool
	Point   Point
	Kind    string
	Error   error
}

type GridProbeResult struct {
	Points        []GridProbePoint
	AverageHeight float64
	Flatness      float64
	Warnings      []string
	Error         error
}

type GridProbePoint struct {
	X, Y, Z float64
	Success bool
}

// Point re-exports coord.Point under the machine package so
// ProbeRunResult doesn't force callers to import coord just to read a
// probe result.
type Point = coord.Point

func (c *Controller) SetHomer(h Homer)   { c.mx.Lock(); c.homer = h; c.mx.Unlock() }
func (c *Controller) SetJogger(j Jogger) { c.mx.Lock(); c.jogger = j; c.mx.Unlock() }
func (c *Controller) SetProber(p Prober) { c.mx.Lock(); c.prober = p; c.mx.Unlock() }

// Home delegates to the registered Homer.
func (c *Controller) Home(axes []string) HomingResult {
	c.mx.Lock()
	h := c.homer
	c.mx.Unlock()
	if h == nil {
		return HomingResult{Error: newError(ErrorMachineNotReady, "no homing sequencer registered", nil)}
	}
	return h.Home(axes)
}

// Jog delegates to the registered Jogger.
func (c *Controller) Jog(axes map[byte]float64, feed float64) JogResult {
	c.mx.Lock()
	j := c.jogger
	c.mx.Unlock()
	if j == nil {
		return JogResult{Error: newError(ErrorMachineNotReady, "no jogging sequencer registered", nil)}
	}
	return j.Jog(axes, feed)
}

// Probe delegates to the registered Prober.
func (c *Controller) Probe(axis byte, feed, distance float64) ProbeRunResult {
	c.mx.Lock()
	p := c.prober
	c.mx.Unlock()
	if p == nil {
		return ProbeRunResult{Error: newError(ErrorMachineNotReady, "no probing sequencer registered", nil)}
	}
	return p.Probe(axis, feed, distance)
}

// ProbeGrid delegates to the registered Prober.
func (c *Controller) ProbeGrid(gridX, gridY, step, feed float64) GridProbeResult {
	c.mx.Lock()
	p := c.prober
	c.mx.Unlock()
	if p == nil {
		return GridProbeResult{Error: newError(ErrorMachineNotReady, "no probing sequencer registered", nil)}
	}
	return p.ProbeGrid(gridX, gridY, step, feed)
}
