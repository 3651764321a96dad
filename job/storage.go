package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/mastercactapus/gcnc/protocol"
)

// State is the persisted JobState of spec §3/§6: enough to resume a
// crashed job without replaying the preamble. The core does not
// prescribe a filesystem path; Storage is the pluggable sink.
type State struct {
	JobID           string
	Name            string
	ProgressPercent float64
	Status          Status
	Paused          bool
	LastStatus      *protocol.Status
	Stats           ExecutionStats
	PauseCoords     coord.Point
	SavedAt         time.Time
}

// Storage is the pluggable autosave/crash-recovery sink the JobRunner
// writes to every 60s and after every executed block, and reads from on
// ResumeAfterCrash. No persistence
// library appears anywhere in the example corpus, so the default
// implementation below is plain encoding/json over the filesystem —
// justified in DESIGN.md.
type Storage interface {
	SaveAutosave(State) error
	SaveCrashRecovery(State) error
	LoadAutosave(jobID string) (*State, error)
}

// FileStorage writes autosave_<jobId>.json / crash_recovery_<jobId>_
// <epoch>.json to Dir, the filename convention from spec §6.
type FileStorage struct {
	Dir string
}

func NewFileStorage(dir string) *FileStorage { return &FileStorage{Dir: dir} }

func (f *FileStorage) SaveAutosave(s State) error {
	return f.write(filepath.Join(f.Dir, fmt.Sprintf("autosave_%s.json", s.JobID)), s)
}

func (f *FileStorage) SaveCrashRecovery(s State) error {
	name := fmt.Sprintf("crash_recovery_%s_%d.json", s.JobID, s.SavedAt.Unix())
	return f.write(filepath.Join(f.Dir, name), s)
}

func (f *FileStorage) LoadAutosave(jobID string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(f.Dir, fmt.Sprintf("autosave_%s.json", jobID)))
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (f *FileStorage) write(path string, s State) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
