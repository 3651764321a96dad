package diagnostics

import (
	"encoding/json"
	"net/http"

	"github.com/mastercactapus/gcnc/machine"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type statusResponse struct {
	State            string        `json:"state"`
	Connected        bool          `json:"connected"`
	LastStatus       interface{}   `json:"lastStatus,omitempty"`
	LastAlarm        interface{}   `json:"lastAlarm,omitempty"`
	Expected         machine.Point `json:"expectedPosition"`
	LastKnown        machine.Point `json:"lastKnownPosition"`
	PositionMismatch bool          `json:"positionMismatch"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	expected, lastKnown := s.ctrl.Position()
	resp := statusResponse{
		State:            s.ctrl.State().String(),
		Connected:        s.ctrl.IsConnected(),
		LastStatus:       s.ctrl.LastStatus(),
		LastAlarm:        s.ctrl.LastAlarm(),
		Expected:         expected,
		LastKnown:        lastKnown,
		PositionMismatch: s.ctrl.CheckPositionMismatch(),
	}
	writeJSON(w, resp)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ctrl.Journal())
}

func (s *Server) handleCurrentJob(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.jobs.CurrentJob())
}

func (s *Server) handleJobQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.jobs.JobQueue())
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.jobs.JobHistory())
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.jobs.ExecutionStats()
	if !ok {
		http.Error(w, "no job is currently running", http.StatusNotFound)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleRecoveryHistory(w http.ResponseWriter, r *http.Request) {
	if s.recov == nil {
		writeJSON(w, []struct{}{})
		return
	}
	writeJSON(w, s.recov.History())
}

// eventTopicName renders an EventKind as the lowercase, hyphenated
// path segment used for its SSE topic.
func eventTopicName(kind machine.EventKind) string {
	switch kind {
	case machine.EventConnected:
		return "connected"
	case machine.EventDisconnected:
		return "disconnected"
	case machine.EventStatus, machine.EventStatusUpdate:
		return "status"
	case machine.EventAlarm:
		return "alarm"
	case machine.EventWarning:
		return "warning"
	case machine.EventJobProgress:
		return "job-progress"
	case machine.EventJobComplete:
		return "job-complete"
	case machine.EventEmergencyStop:
		return "emergency-stop"
	case machine.EventFeedHold:
		return "feed-hold"
	case machine.EventSoftReset:
		return "soft-reset"
	case machine.EventProbeStarted:
		return "probe-started"
	case machine.EventProbeCompleted:
		return "probe-completed"
	case machine.EventProbeFailed:
		return "probe-failed"
	case machine.EventGridProbeProgress:
		return "grid-probe-progress"
	case machine.EventHomingStep:
		return "homing-step"
	case machine.EventHomingCompleted:
		return "homing-completed"
	case machine.EventRecoveryNeeded:
		return "recovery-needed"
	case machine.EventRecoveryStarted:
		return "recovery-started"
	case machine.EventRecoveryCompleted:
		return "recovery-completed"
	case machine.EventRecoveryFailed:
		return "recovery-failed"
	case machine.EventError:
		return "error"
	default:
		return "unknown"
	}
}
