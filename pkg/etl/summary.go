package etl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skyvault/skyvault/pkg/models"
)

// Summary is the end-of-run report: phase outcomes, item counts, memory
// peak, and the error ledger. It is returned to the driver and written as
// summary_<task_id>.json in the output directory.
type Summary struct {
	TaskID      string    `json:"task_id"`
	GeneratedAt time.Time `json:"generated_at"`

	PhaseStatuses  map[models.Phase]models.PhaseStatus `json:"phase_statuses"`
	PhaseDurations map[models.Phase]int64              `json:"phase_durations_ms"`

	TotalConversations  int `json:"total_conversations"`
	TotalMessages       int `json:"total_messages"`
	ElidedConversations int `json:"elided_conversations"`

	MemoryPeakMB float64 `json:"memory_peak_mb"`

	FatalErrors    int                  `json:"fatal_errors"`
	NonFatalErrors int                  `json:"non_fatal_errors"`
	Errors         []models.ErrorRecord `json:"errors,omitempty"`

	ExportID        int64  `json:"export_id,omitempty"`
	FileSource      string `json:"file_source,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	UserDisplayName string `json:"user_display_name,omitempty"`
	ExportDate      string `json:"export_date,omitempty"`
}

// Summary snapshots the context.
func (c *Context) Summary() *Summary {
	_, conversations, messages, elided := c.Progress.Snapshot()
	fatal, nonFatal := c.Errors.Counts()

	durations := map[models.Phase]int64{}
	for p, d := range c.Phases.Durations() {
		durations[p] = d.Milliseconds()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return &Summary{
		TaskID:              c.TaskID,
		GeneratedAt:         time.Now().UTC(),
		PhaseStatuses:       c.Phases.Statuses(),
		PhaseDurations:      durations,
		TotalConversations:  conversations,
		TotalMessages:       messages,
		ElidedConversations: elided,
		MemoryPeakMB:        c.Memory.PeakMB(),
		FatalErrors:         fatal,
		NonFatalErrors:      nonFatal,
		Errors:              c.Errors.Tail(100),
		ExportID:            c.ExportID,
		FileSource:          c.FileSource,
		UserID:              c.UserID,
		UserDisplayName:     c.UserDisplayName,
		ExportDate:          c.ExportDate,
	}
}

// WriteSummary writes the summary file and returns its path.
func (c *Context) WriteSummary() (string, error) {
	summary := c.Summary()
	path := filepath.Join(c.Config.OutputDir, fmt.Sprintf("summary_%s.json", c.TaskID))
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing summary: %w", err)
	}
	return path, nil
}
