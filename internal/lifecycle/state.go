package lifecycle

import (
	"fmt"
	"time"
)

// State is the phase of a cycle.
type State int32

const (
	StateInit State = iota
	StateStarting
	StateRunning
	StateStartFailed
	StateStopping
	StateStopped
)

var stateNames = [...]string{"INIT", "STARTING", "RUNNING", "START_FAILED", "STOPPING", "STOPPED"}

func (s State) String() string {
	if s < StateInit || s > StateStopped {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Status is a point-in-time view of an Application.
type Status struct {
	State          State         `json:"state"`
	Cycle          int           `json:"cycle"`
	CycleID        string        `json:"cycle_id,omitempty"`
	Attempted      []string      `json:"attempted"`
	ShuttingDown   bool          `json:"shutting_down"`
	RestartPending bool          `json:"restart_pending"`
	History        []CycleRecord `json:"history,omitempty"`
}

// CycleRecord summarises a finished cycle.
type CycleRecord struct {
	Number     int       `json:"number"`
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	Attempted  int       `json:"attempted"`
	Total      int       `json:"total"`
	StartError string    `json:"start_error,omitempty"`
	Restarted  bool      `json:"restarted"`
}
