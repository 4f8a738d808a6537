package models

import "time"

// Phase identifies one of the three pipeline phases.
type Phase string

// Pipeline phases, in execution order.
const (
	PhaseExtract   Phase = "extract"
	PhaseTransform Phase = "transform"
	PhaseLoad      Phase = "load"
)

// Phases lists all phases in execution order.
var Phases = []Phase{PhaseExtract, PhaseTransform, PhaseLoad}

// Predecessors returns the phases that must complete before p may start.
func (p Phase) Predecessors() []Phase {
	var out []Phase
	for _, candidate := range Phases {
		if candidate == p {
			break
		}
		out = append(out, candidate)
	}
	return out
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseExtract, PhaseTransform, PhaseLoad:
		return true
	}
	return false
}

// PhaseStatus represents the lifecycle state of a single phase.
type PhaseStatus string

// Phase status values.
const (
	StatusPending    PhaseStatus = "pending"
	StatusInProgress PhaseStatus = "in_progress"
	StatusCompleted  PhaseStatus = "completed"
	StatusWarning    PhaseStatus = "warning"
	StatusFailed     PhaseStatus = "failed"
	StatusSkipped    PhaseStatus = "skipped"
)

// Terminal reports whether the status is a terminal state for a phase.
func (s PhaseStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusWarning, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Succeeded reports whether a phase in this status produced usable output.
// Warning counts: the phase finished with non-fatal errors recorded.
func (s PhaseStatus) Succeeded() bool {
	return s == StatusCompleted || s == StatusWarning || s == StatusSkipped
}

// ErrorRecord is one entry in the pipeline error log.
type ErrorRecord struct {
	Phase     Phase          `json:"phase"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Fatal     bool           `json:"fatal"`
	Timestamp time.Time      `json:"timestamp"`
}
