package models

import "time"

// Checkpoint is the durable descriptor of pipeline state at a phase
// boundary. Small fields live inline; large payloads (raw and transformed
// data) are spilled to files referenced by DataFiles.
type Checkpoint struct {
	ID            string                `json:"id"`
	TaskID        string                `json:"task_id"`
	Timestamp     time.Time             `json:"timestamp"`
	PhaseStatuses map[Phase]PhaseStatus `json:"phase_statuses"`
	CurrentPhase  Phase                 `json:"current_phase,omitempty"`

	FileSource      string `json:"file_source,omitempty"`
	ExportID        int64  `json:"export_id,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	UserDisplayName string `json:"user_display_name,omitempty"`
	ExportDate      string `json:"export_date,omitempty"`

	CustomMetadata map[string]any `json:"custom_metadata,omitempty"`

	// DataFiles maps a context attribute ("raw_data", "transformed_data")
	// to the path of its spill file.
	DataFiles map[string]string `json:"data_files,omitempty"`

	// Errors is the tail of the error log at checkpoint time.
	Errors []ErrorRecord `json:"errors,omitempty"`

	// ElidedConversations carries the elision metric across a resume.
	ElidedConversations int `json:"elided_conversations,omitempty"`
}

// Status returns the recorded status for a phase, defaulting to pending.
func (c *Checkpoint) Status(p Phase) PhaseStatus {
	if s, ok := c.PhaseStatuses[p]; ok {
		return s
	}
	return StatusPending
}

// CanResumeFrom reports whether the checkpoint represents a valid resume
// point at phase p: every predecessor of p must have succeeded (completed,
// warning, or skipped). Data file existence is checked separately by the
// checkpoint manager, which owns the filesystem.
func (c *Checkpoint) CanResumeFrom(p Phase) bool {
	if !p.Valid() {
		return false
	}
	for _, pred := range p.Predecessors() {
		if !c.Status(pred).Succeeded() {
			return false
		}
	}
	return true
}
