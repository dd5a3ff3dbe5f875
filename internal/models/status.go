// internal/models/status.go
package models

import "time"

// AgentState enumerates the scheduler's run states.
type AgentState string

const (
	StateIdle      AgentState = "idle"
	StateRunning   AgentState = "running"
	StateVerifying AgentState = "verifying"
	StateError     AgentState = "error"
)

// AgentStatus is the scheduler's process-lifetime status snapshot. It is
// mutated only by the scheduler; everyone else gets copies.
type AgentStatus struct {
	State         AgentState `json:"state"`
	Message       string     `json:"message"`
	Progress      int        `json:"progress"` // 0-100
	ProductsFound int        `json:"productsFound"`
	LastRun       *time.Time `json:"lastRun,omitempty"`
	NextRun       *time.Time `json:"nextRun,omitempty"`
}

// StatusEvent is the wire shape published to subscribers and consumed by the
// UI's real-time layer.
type StatusEvent struct {
	Type          string `json:"type"` // always "agent_status"
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"` // ISO8601
	Message       string `json:"message"`
	Progress      *int   `json:"progress,omitempty"`
	ProductsFound *int   `json:"productsFound,omitempty"`
	LastRun       string `json:"lastRun,omitempty"`
	NextRun       string `json:"nextRun,omitempty"`
}

// NewStatusEvent converts a status snapshot into its published wire form.
func NewStatusEvent(s AgentStatus) StatusEvent {
	progress := s.Progress
	found := s.ProductsFound

	// The wire contract only knows idle/running/error; the internal
	// verifying state is reported as running.
	wireState := s.State
	if wireState == StateVerifying {
		wireState = StateRunning
	}

	ev := StatusEvent{
		Type:          "agent_status",
		Status:        string(wireState),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Message:       s.Message,
		Progress:      &progress,
		ProductsFound: &found,
	}
	if s.LastRun != nil {
		ev.LastRun = s.LastRun.UTC().Format(time.RFC3339)
	}
	if s.NextRun != nil {
		ev.NextRun = s.NextRun.UTC().Format(time.RFC3339)
	}
	return ev
}
