package job

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/mastercactapus/gcnc/gcode"
	"github.com/mastercactapus/gcnc/machine"
	"github.com/mastercactapus/gcnc/meshlevel"
)

const (
	historyCapacity  = 100
	blockTimeout     = 10 * time.Second
	defaultRetries   = 3
	autosaveInterval = 60 * time.Second
	pausePollEvery   = 100 * time.Millisecond

	preambleTravelZ = 20.0
	preambleFeed    = 500.0

	// meshGranularity disables meshlevel's distance-based interpolation
	// (no move ever exceeds this many mm) so Runner keeps a strict 1:1
	// mapping between source blocks and rendered/sent lines for
	// progress tracking, at the cost of not subdividing long moves for
	// smoother compensation the way a direct meshlevel.New caller might
	// want.
	meshGranularity = 1e9
)

// Runner is the JobRunner: it streams a Job's parsed Blocks through a
// *machine.Controller one at a time, honoring pause/resume/stop, retrying
// or skipping failed blocks per Options, checkpointing to Storage every
// autosaveInterval, and resuming a crashed run from its last checkpoint.
// Grounded on machine.runBlocks/gcode.Buffer's streaming shape
// (machine/machine.go), generalized into a resumable, journaled loop —
// the teacher never built pause/resume/autosave/crash-recovery itself.
type Runner struct {
	ctrl    *machine.Controller
	storage Storage
	limits  coord.SoftLimits
	homed   func() bool

	mx      sync.Mutex
	current *Job
	pending []*Job
	history []*Job
	mesh    *meshlevel.Mesh

	pauseRequested bool
	stopRequested  bool

	autosaveCancel func()
	nextID         int
}

func NewRunner(ctrl *machine.Controller, storage Storage, limits coord.SoftLimits) *Runner {
	return &Runner{ctrl: ctrl, storage: storage, limits: limits}
}

// SetHomedCheck registers the predicate RequireHomed preflight checks
// consult — wired to the HomingSequencer's last result by the
// composition root, exactly as Probing's homed func is.
func (r *Runner) SetHomedCheck(fn func() bool) { r.homed = fn }

// SetMesh registers the Z-compensation mesh a Job may opt into via
// Options.Mesh. Pass nil to clear it.
func (r *Runner) SetMesh(m *meshlevel.Mesh) {
	r.mx.Lock()
	r.mesh = m
	r.mx.Unlock()
}

// LoadJob parses source and queues it as a new Pending->Ready Job. If
// opts.Strict and the parse produced any error, the job is not queued
// and an error is returned instead.
func (r *Runner) LoadJob(name, source string, opts Options) (*Job, error) {
	res, _ := gcode.Parse(source)
	if opts.Strict && len(res.Errors) > 0 {
		return nil, fmt.Errorf("job: strict load failed: %s", res.Errors[0].Message)
	}

	issues, warnings := gcode.CheckSafety(res.Blocks, r.limits, coord.SpeedLimits{})

	r.mx.Lock()
	r.nextID++
	id := fmt.Sprintf("job-%d", r.nextID)
	r.mx.Unlock()

	j := &Job{
		ID:             id,
		Name:           name,
		Source:         source,
		Blocks:         res.Blocks,
		ParseResult:    res,
		SafetyIssues:   issues,
		SafetyWarnings: warnings,
		Status:         StatusReady,
		Options:        opts,
		Timestamps:     Timestamps{Created: time.Now()},
	}

	r.mx.Lock()
	r.pending = append(r.pending, j)
	r.mx.Unlock()
	return j, nil
}

// StartJob begins streaming the named queued Job. Only one Job may be
// Running or Paused at a time.
func (r *Runner) StartJob(id string) error {
	r.mx.Lock()
	if r.current != nil && !r.current.Status.Terminal() {
		r.mx.Unlock()
		return errors.New("job: another job is running or paused")
	}

	idx := -1
	for i, j := range r.pending {
		if j.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		r.mx.Unlock()
		return fmt.Errorf("job: %s is not queued", id)
	}
	j := r.pending[idx]
	r.pending = append(r.pending[:idx], r.pending[idx+1:]...)

	j.Status = StatusRunning
	j.Timestamps.Started = time.Now()
	r.current = j
	r.pauseRequested = false
	r.stopRequested = false
	r.mx.Unlock()

	r.ctrl.SetCurrentJob(r)
	r.startAutosave()
	go r.run(j, 0)
	return nil
}

// PauseJob transitions the current job Running->Paused: sends a feed
// hold, records the pause coordinates, and sets the flag the run loop
// polls before every block.
func (r *Runner) PauseJob() error {
	r.mx.Lock()
	j := r.current
	if j == nil || j.Status != StatusRunning {
		r.mx.Unlock()
		return errors.New("job: no running job to pause")
	}
	r.pauseRequested = true
	j.Status = StatusPaused
	_, lastKnown := r.ctrl.Position()
	j.pauseCoords = lastKnown
	r.mx.Unlock()

	return r.ctrl.FeedHold()
}

// ResumeJob transitions the current job Paused->Running and sends the
// cycle-start byte.
func (r *Runner) ResumeJob() error {
	r.mx.Lock()
	j := r.current
	if j == nil || j.Status != StatusPaused {
		r.mx.Unlock()
		return errors.New("job: no paused job to resume")
	}
	j.Status = StatusRunning
	r.pauseRequested = false
	r.mx.Unlock()

	return r.ctrl.Resume()
}

// StopJob stops the current job: feed-hold + soft-reset, or an
// emergency-stop, and marks it Stopped. Mirrors Controller.StopJob.
func (r *Runner) StopJob(emergency bool) error {
	r.mx.Lock()
	j := r.current
	if j == nil || j.Status.Terminal() {
		r.mx.Unlock()
		return errors.New("job: no active job to stop")
	}
	r.stopRequested = true
	r.mx.Unlock()

	if emergency {
		r.ctrl.EmergencyStop()
		return nil
	}
	if err := r.ctrl.FeedHold(); err != nil {
		return err
	}
	return r.ctrl.SoftReset()
}

// MarkStopped implements the Controller's jobStopper interface: called
// by EmergencyStop/StopJob so a running/paused job is marked Stopped
// even when the operator went through the Controller directly rather
// than through Runner.StopJob.
func (r *Runner) MarkStopped() {
	r.mx.Lock()
	r.stopRequested = true
	r.mx.Unlock()
}

// CurrentJob returns the job currently Running or Paused, or nil.
func (r *Runner) CurrentJob() *Job {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.current
}

// JobQueue returns the ordered pending queue.
func (r *Runner) JobQueue() []*Job {
	r.mx.Lock()
	defer r.mx.Unlock()
	out := make([]*Job, len(r.pending))
	copy(out, r.pending)
	return out
}

// JobHistory returns the bounded deque of the most recent terminal jobs,
// oldest first.
func (r *Runner) JobHistory() []*Job {
	r.mx.Lock()
	defer r.mx.Unlock()
	out := make([]*Job, len(r.history))
	copy(out, r.history)
	return out
}

// ExecutionStats snapshots the current job's progress.
func (r *Runner) ExecutionStats() (ExecutionStats, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.current == nil {
		return ExecutionStats{}, false
	}
	j := r.current
	return ExecutionStats{
		JobID:           j.ID,
		BlocksExecuted:  j.blocksExecuted,
		BlocksTotal:     len(j.Blocks),
		BlocksSkipped:   j.blocksSkipped,
		BlocksRetried:   j.blocksRetried,
		ProgressPercent: j.ProgressPercent,
		Elapsed:         time.Since(j.Timestamps.Started),
	}, true
}

// startAutosave begins the 60s checkpoint ticker for the current job.
func (r *Runner) startAutosave() {
	if r.storage == nil {
		return
	}
	stop := make(chan struct{})
	r.mx.Lock()
	r.autosaveCancel = sync.OnceFunc(func() { close(stop) })
	r.mx.Unlock()

	go func() {
		t := time.NewTicker(autosaveInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				r.saveAutosave()
			}
		}
	}()
}

func (r *Runner) stopAutosave() {
	r.mx.Lock()
	cancel := r.autosaveCancel
	r.autosaveCancel = nil
	r.mx.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runner) saveAutosave() {
	r.mx.Lock()
	j := r.current
	r.mx.Unlock()
	if j == nil {
		return
	}
	r.checkpoint(j)
}

// checkpoint persists j's current progress so a crash has somewhere to
// resume from. It writes both the autosave slot ResumeAfterCrash reads
// back via LoadAutosave, and a dated crash_recovery_<id>_<epoch>.json
// artifact (the §6 naming convention Storage.SaveCrashRecovery exists
// for). Called both off the 60s autosave ticker and after every block
// in run — a process crash between ticks would otherwise have no
// checkpoint to resume from at all.
func (r *Runner) checkpoint(j *Job) {
	if r.storage == nil {
		return
	}
	state := State{
		JobID:           j.ID,
		Name:            j.Name,
		ProgressPercent: j.ProgressPercent,
		Status:          j.Status,
		Paused:          j.Status == StatusPaused,
		LastStatus:      r.ctrl.LastStatus(),
		PauseCoords:     j.pauseCoords,
		SavedAt:         time.Now(),
	}
	state.Stats, _ = r.ExecutionStats()
	_ = r.storage.SaveAutosave(state)
	_ = r.storage.SaveCrashRecovery(state)
}

// ResumeAfterCrash consults the last autosaved State for jobID, raises
// Z, clears the alarm, moves above then down to the saved pause
// position, and restarts block execution from the estimated block
// index floor(progress% * total) — the preamble is not replayed.
func (r *Runner) ResumeAfterCrash(jobID string) error {
	if r.storage == nil {
		return errors.New("job: no storage configured")
	}
	state, err := r.storage.LoadAutosave(jobID)
	if err != nil {
		return err
	}

	r.mx.Lock()
	var j *Job
	for _, cand := range r.history {
		if cand.ID == jobID {
			j = cand
			break
		}
	}
	r.mx.Unlock()
	if j == nil {
		return fmt.Errorf("job: %s not found in history", jobID)
	}

	if _, err := r.ctrl.Send(fmt.Sprintf("G0 Z%g", preambleTravelZ), blockTimeout); err != nil {
		return err
	}
	if _, err := r.ctrl.Send("$X", 5*time.Second); err != nil {
		return err
	}
	above := state.PauseCoords
	above.Z += 10
	if _, err := r.ctrl.Send(fmt.Sprintf("G0 X%g Y%g Z%g", above.X, above.Y, above.Z), blockTimeout); err != nil {
		return err
	}
	if _, err := r.ctrl.Send(fmt.Sprintf("G0 Z%g", state.PauseCoords.Z), blockTimeout); err != nil {
		return err
	}

	total := len(j.Blocks)
	startIndex := int(state.ProgressPercent / 100 * float64(total))
	if startIndex >= total {
		startIndex = total - 1
	}
	if startIndex < 0 {
		startIndex = 0
	}

	j.Status = StatusRunning
	j.Timestamps.Started = time.Now()
	r.mx.Lock()
	r.current = j
	r.pauseRequested = false
	r.stopRequested = false
	r.mx.Unlock()

	r.ctrl.SetCurrentJob(r)
	r.startAutosave()
	go r.run(j, startIndex)
	return nil
}

// preflight runs the pre-job checks: connection, not Alarm, homed if
// required, bounding box within the soft envelope (warn only).
func (r *Runner) preflight(j *Job) error {
	if !r.ctrl.IsConnected() {
		return errors.New("job: not connected")
	}
	if r.ctrl.State() == machine.StateAlarm {
		return errors.New("job: machine in alarm")
	}
	if j.Options.RequireHomed && r.homed != nil && !r.homed() {
		return errors.New("job: machine not homed")
	}
	if j.Options.RequireToolConfirm && !j.Options.ToolConfirmed {
		return errors.New("job: tool change not confirmed")
	}
	if j.Options.RequireMaterialConfirm && !j.Options.MaterialConfirmed {
		return errors.New("job: material not confirmed")
	}

	box := j.ParseResult.BoundingBox
	if violations := r.limits.Violations(box.Min); len(violations) > 0 {
		j.SafetyWarnings = append(j.SafetyWarnings, "program's bounding box minimum exceeds the soft envelope")
	}
	if violations := r.limits.Violations(box.Max); len(violations) > 0 {
		j.SafetyWarnings = append(j.SafetyWarnings, "program's bounding box maximum exceeds the soft envelope")
	}
	return nil
}

// run is the main streaming loop, started as its own goroutine by
// StartJob/ResumeAfterCrash. startIndex allows crash recovery to resume
// mid-program without replaying the preamble.
func (r *Runner) run(j *Job, startIndex int) {
	if startIndex == 0 {
		if err := r.preflight(j); err != nil {
			r.finish(j, StatusFailed, err)
			return
		}
		if err := r.sendPreamble(j); err != nil {
			r.finish(j, StatusFailed, err)
			return
		}
	}

	var mesh *meshlevel.Mesh
	r.mx.Lock()
	mesh = r.mesh
	r.mx.Unlock()

	var leveler *meshlevel.MeshLeveler
	if j.Options.Mesh && mesh != nil {
		cmds := make([]gcode.Command, 0, len(j.Blocks))
		for _, b := range j.Blocks {
			cmd, err := gcode.ParseLine(b.Raw)
			if err != nil {
				cmd = gcode.Command{}
			}
			cmds = append(cmds, cmd)
		}
		expected, _ := r.ctrl.Position()
		leveler = meshlevel.New(meshlevel.Config{
			ZOffsetter:  mesh,
			Granularity: meshGranularity,
			MPos:        expected,
			Reader:      &gcode.CommandsReader{Commands: cmds},
		})
		// a resumed run skips blocks before startIndex; read past them
		// so each later Read stays paired with the block being sent.
		for k := 0; k < startIndex; k++ {
			_, _ = leveler.Read()
		}
	}

	total := len(j.Blocks)
	for i := startIndex; i < total; i++ {
		if r.waitWhilePaused(j) {
			r.finish(j, StatusStopped, nil)
			return
		}

		block := j.Blocks[i]
		line := renderLine(block, leveler)

		if err := r.sendBlock(j, line); err != nil {
			r.mx.Lock()
			stopRequested := r.stopRequested
			r.mx.Unlock()
			if stopRequested {
				r.finish(j, StatusStopped, nil)
				return
			}
			if j.Options.StopOnError {
				r.finish(j, StatusFailed, err)
				return
			}
			j.blocksSkipped++
		}

		j.blocksExecuted++
		j.ProgressPercent = float64(j.blocksExecuted) / float64(total) * 100
		r.ctrl.Publish(machine.EventJobProgress, j.ProgressPercent)
		r.checkpoint(j)
	}

	r.finish(j, StatusCompleted, nil)
}

// waitWhilePaused polls the pause flag before each block, per the
// cooperative-suspension model (§5). It returns true if the job should
// stop instead of resuming.
func (r *Runner) waitWhilePaused(j *Job) bool {
	for {
		r.mx.Lock()
		paused := r.pauseRequested
		stopped := r.stopRequested
		r.mx.Unlock()
		if stopped {
			return true
		}
		if !paused {
			return false
		}
		time.Sleep(pausePollEvery)
	}
}

func (r *Runner) sendPreamble(j *Job) error {
	preamble := []string{
		fmt.Sprintf("G0 Z%g F%g", preambleTravelZ, preambleFeed),
		"G90",
		"G21",
		"G92 X0 Y0 Z0",
	}
	preamble = append(preamble, j.Options.PreCommands...)
	for _, line := range preamble {
		if _, err := r.ctrl.Send(line, blockTimeout); err != nil {
			return err
		}
	}
	return nil
}

// sendBlock sends line with the job's retry policy: stop_on_error is
// handled by the caller; here we either succeed, retry up to
// RetryCount, or return an error so the caller can skip-with-warning.
func (r *Runner) sendBlock(j *Job, line string) error {
	if line == "" {
		return nil
	}
	retries := j.Options.RetryCount
	if retries <= 0 {
		retries = defaultRetries
	}

	var err error
	attempts := 1
	if j.Options.RetryOnError {
		attempts = retries
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		_, err = r.ctrl.Send(line, blockTimeout)
		if err == nil {
			return nil
		}
		if attempt < attempts {
			j.blocksRetried++
			time.Sleep(time.Duration(500*attempt) * time.Millisecond)
		}
	}
	return err
}

func (r *Runner) finish(j *Job, status Status, err error) {
	r.mx.Lock()
	j.Status = status
	j.Timestamps.Completed = time.Now()
	result := &ExecutionResult{
		BlocksExecuted: j.blocksExecuted,
		BlocksSkipped:  j.blocksSkipped,
		BlocksRetried:  j.blocksRetried,
	}
	if err != nil {
		result.Error = err.Error()
	}
	j.ExecutionResult = result
	r.history = append(r.history, j)
	if len(r.history) > historyCapacity {
		r.history = r.history[len(r.history)-historyCapacity:]
	}
	r.current = nil
	r.mx.Unlock()

	r.stopAutosave()
	if status == StatusCompleted {
		r.ctrl.Publish(machine.EventJobComplete, j.ID)
	}
}

// renderLine renders a Block back to a wire line: the mesh-leveling
// pipeline's Command form when a leveler is active, otherwise the
// source line verbatim (GRBL tolerates both comment styles itself).
func renderLine(b gcode.Block, leveler *meshlevel.MeshLeveler) string {
	if leveler == nil {
		return strings.TrimSpace(b.Raw)
	}
	cmd, err := leveler.Read()
	if err != nil {
		return strings.TrimSpace(b.Raw)
	}
	return cmd.String()
}
