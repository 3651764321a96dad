// Package job implements the JobRunner: loading a parsed program into a
// queued Job, streaming it block-by-block through a *machine.Controller
// with pause/resume/retry/skip semantics, periodic autosave, and
// crash-recovery resumption. job holds a back-reference to a Controller
// the same way sequencer does, and satisfies the Controller's jobStopper
// interface so emergency_stop/stop_job can mark the running job Stopped
// without machine importing job.
package job

import (
	"time"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/mastercactapus/gcnc/gcode"
)

// Status is the Job lifecycle's tagged variant: Pending -> Ready (on
// load), Ready -> Running (on start), Running <-> Paused, Running ->
// a terminal state (Completed, Failed, Stopped).
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusRunning
	StatusPaused
	StatusCompleted
	StatusFailed
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusReady:
		return "Ready"
	case StatusRunning:
		return "Running"
	case StatusPaused:
		return "Paused"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// Options configures a Job's load/run behavior.
type Options struct {
	StopOnError  bool
	RetryOnError bool
	RetryCount   int // default 3 when RetryOnError and unset

	RequireHomed bool
	Strict       bool // a parse error fails LoadJob outright

	PreCommands            []string
	ToolConfirmed          bool
	MaterialConfirmed      bool
	RequireToolConfirm     bool
	RequireMaterialConfirm bool

	// Mesh, if true, threads the program through the Runner's
	// registered Z-compensation mesh (see Runner.SetMesh). Ignored if
	// no mesh is registered.
	Mesh bool
}

// Timestamps records the Job's lifecycle transitions.
type Timestamps struct {
	Created   time.Time
	Started   time.Time
	Completed time.Time
}

// ExecutionResult is populated once a Job reaches a terminal state.
type ExecutionResult struct {
	BlocksExecuted int
	BlocksSkipped  int
	BlocksRetried  int
	Error          string
}

// ExecutionStats is a point-in-time snapshot of the current job's
// progress, returned by Runner.ExecutionStats per the embedding API.
type ExecutionStats struct {
	JobID           string
	BlocksExecuted  int
	BlocksTotal     int
	BlocksSkipped   int
	BlocksRetried   int
	ProgressPercent float64
	Elapsed         time.Duration
}

// Job is a single loaded program plus its parse/safety analysis and
// run-time progress. Immutable fields are set at LoadJob time; Status,
// ProgressPercent, Timestamps and ExecutionResult are mutated only by
// the owning Runner.
type Job struct {
	ID     string
	Name   string
	Source string

	Blocks      []gcode.Block
	ParseResult *gcode.ParseResult

	SafetyIssues   []string
	SafetyWarnings []string

	ProgressPercent float64
	Status          Status
	Options         Options
	Timestamps      Timestamps
	ExecutionResult *ExecutionResult

	blocksExecuted int
	blocksSkipped  int
	blocksRetried  int
	pauseCoords    coord.Point
}
