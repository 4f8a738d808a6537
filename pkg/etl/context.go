package etl

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/skyvault/skyvault/pkg/checkpoint"
	"github.com/skyvault/skyvault/pkg/config"
	"github.com/skyvault/skyvault/pkg/models"
)

// Context is the composition root shared by the three phases: it owns the
// managers, the configuration, and the data references each phase hands to
// the next. Phase executors mutate it only from the driver goroutine;
// progress and error updates from workers go through the managers' own
// locks.
type Context struct {
	Config *config.Pipeline
	TaskID string

	Phases      *PhaseManager
	Progress    *ProgressTracker
	Memory      *MemoryMonitor
	Errors      *ErrorLogger
	Checkpoints *checkpoint.Manager

	log *slog.Logger

	mu          sync.Mutex
	rawData     *models.RawExport
	transformed *models.TransformedExport
	dataFiles   map[string]string

	FileSource      string
	ExportID        int64
	UserID          string
	UserDisplayName string
	ExportDate      string
	CustomMetadata  map[string]any
}

// NewContext builds a context for one task. The checkpoint manager is
// rooted under the configured output directory.
func NewContext(cfg *config.Pipeline, taskID string, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	cpMgr, err := checkpoint.NewManager(cfg.OutputDir, taskID, logger)
	if err != nil {
		return nil, err
	}
	return &Context{
		Config:         cfg,
		TaskID:         taskID,
		Phases:         NewPhaseManager(),
		Progress:       NewProgressTracker(),
		Memory:         NewMemoryMonitor(cfg.MemoryLimitMB),
		Errors:         NewErrorLogger(),
		Checkpoints:    cpMgr,
		log:            logger.With("task_id", taskID),
		dataFiles:      map[string]string{},
		CustomMetadata: map[string]any{},
	}, nil
}

// Log returns the task-scoped logger.
func (c *Context) Log() *slog.Logger { return c.log }

// StartPhase transitions a phase to in_progress and seeds its progress.
func (c *Context) StartPhase(p models.Phase, totalConversations, totalMessages int) error {
	if err := c.Phases.Start(p); err != nil {
		return err
	}
	if totalConversations > 0 || totalMessages > 0 {
		c.Progress.SetTotals(totalConversations, totalMessages)
	}
	c.log.Info("Phase started", "phase", p)
	return nil
}

// EndPhase transitions a phase to a terminal status. A completed phase
// that accumulated non-fatal errors ends as warning instead.
func (c *Context) EndPhase(p models.Phase, status models.PhaseStatus) error {
	if status == models.StatusCompleted && c.Errors.HasNonFatal(p) {
		status = models.StatusWarning
	}
	if err := c.Phases.End(p, status); err != nil {
		return err
	}
	c.log.Info("Phase ended", "phase", p, "status", status)
	return nil
}

// UpdateProgress records item progress for a phase.
func (c *Context) UpdateProgress(p models.Phase, current, total int, itemType string) {
	c.Progress.Update(p, current, total, itemType)
}

// RecordError appends to the error log. A fatal record also fails the
// current phase; the phase executor is expected to abort afterwards.
func (c *Context) RecordError(p models.Phase, message string, details map[string]any, fatal bool) {
	c.Errors.Record(p, message, details, fatal)
	if fatal {
		c.log.Error("Fatal phase error", "phase", p, "message", message)
		if c.Phases.Current() == p {
			if err := c.Phases.End(p, models.StatusFailed); err != nil {
				c.log.Warn("Could not fail phase", "phase", p, "error", err)
			}
		}
	} else {
		c.log.Warn("Non-fatal phase error", "phase", p, "message", message)
	}
}

// CheckMemory returns current memory statistics.
func (c *Context) CheckMemory() MemoryStats {
	return c.Memory.Check()
}

// StoreRaw stores the extracted document, spilling it to disk when the
// document exceeds the configured threshold so the in-memory reference can
// be dropped and reloaded lazily.
func (c *Context) StoreRaw(raw *models.RawExport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int64(len(raw.Document)) > c.Config.SpillThresholdBytes {
		desc, err := c.Checkpoints.Create(&checkpoint.State{Raw: raw})
		if err != nil {
			return fmt.Errorf("spilling oversized raw document: %w", err)
		}
		c.dataFiles[checkpoint.AttrRawData] = desc.DataFiles[checkpoint.AttrRawData]
		c.rawData = nil
		c.log.Info("Raw document spilled to disk",
			"checkpoint_id", desc.ID, "bytes", len(raw.Document))
		return nil
	}
	c.rawData = raw
	return nil
}

// Raw returns the raw export, reloading it from a spill file if needed.
func (c *Context) Raw() (*models.RawExport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rawData != nil {
		return c.rawData, nil
	}
	path, ok := c.dataFiles[checkpoint.AttrRawData]
	if !ok {
		return nil, fmt.Errorf("no raw data in context")
	}
	raw, err := c.Checkpoints.LoadRaw(path)
	if err != nil {
		return nil, err
	}
	c.rawData = raw
	return raw, nil
}

// StoreTransformed stores the transformed export.
func (c *Context) StoreTransformed(t *models.TransformedExport) {
	c.mu.Lock()
	c.transformed = t
	c.mu.Unlock()
}

// Transformed returns the transformed export, reloading it from a spill
// file if needed.
func (c *Context) Transformed() (*models.TransformedExport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transformed != nil {
		return c.transformed, nil
	}
	path, ok := c.dataFiles[checkpoint.AttrTransformedData]
	if !ok {
		return nil, fmt.Errorf("no transformed data in context")
	}
	t, err := c.Checkpoints.LoadTransformed(path)
	if err != nil {
		return nil, err
	}
	c.transformed = t
	return t, nil
}

// Checkpoint persists the current context state and returns the
// checkpoint id. Payloads present in memory (or already spilled) are
// referenced from the descriptor.
func (c *Context) Checkpoint() (string, error) {
	c.mu.Lock()
	state := &checkpoint.State{
		Descriptor: models.Checkpoint{
			PhaseStatuses:       c.Phases.Statuses(),
			CurrentPhase:        c.Phases.Current(),
			FileSource:          c.FileSource,
			ExportID:            c.ExportID,
			UserID:              c.UserID,
			UserDisplayName:     c.UserDisplayName,
			ExportDate:          c.ExportDate,
			CustomMetadata:      c.CustomMetadata,
			DataFiles:           map[string]string{},
			Errors:              c.Errors.Tail(50),
			ElidedConversations: c.Progress.Elided(),
		},
		Raw:         c.rawData,
		Transformed: c.transformed,
	}
	// Carry forward references to payloads already on disk.
	for attr, path := range c.dataFiles {
		state.Descriptor.DataFiles[attr] = path
	}
	c.mu.Unlock()

	desc, err := c.Checkpoints.Create(state)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	for attr, path := range desc.DataFiles {
		c.dataFiles[attr] = path
	}
	c.mu.Unlock()
	return desc.ID, nil
}

// Restore loads a checkpoint into the context. Payload data files are
// referenced but not read; the next phase that needs one loads it then.
func (c *Context) Restore(checkpointID string) (bool, error) {
	desc, err := c.Checkpoints.Restore(checkpointID)
	if err != nil {
		return false, NewError(KindCheckpoint, "", "restoring checkpoint", err)
	}
	c.Phases.Restore(desc.PhaseStatuses)
	c.Errors.Restore(desc.Errors)
	c.Progress.SetElided(desc.ElidedConversations)

	c.mu.Lock()
	c.rawData = nil
	c.transformed = nil
	c.dataFiles = map[string]string{}
	for attr, path := range desc.DataFiles {
		c.dataFiles[attr] = path
	}
	c.FileSource = desc.FileSource
	c.ExportID = desc.ExportID
	c.UserID = desc.UserID
	c.UserDisplayName = desc.UserDisplayName
	c.ExportDate = desc.ExportDate
	if desc.CustomMetadata != nil {
		c.CustomMetadata = desc.CustomMetadata
	}
	c.mu.Unlock()

	c.log.Info("Checkpoint restored",
		"checkpoint_id", checkpointID,
		"current_phase", desc.CurrentPhase)
	return true, nil
}

// CanResumeFromPhase reports whether restored state permits starting at p.
func (c *Context) CanResumeFromPhase(p models.Phase) bool {
	if !p.Valid() {
		return false
	}
	for _, pred := range p.Predecessors() {
		if !c.Phases.Status(pred).Succeeded() {
			return false
		}
	}
	// The phase right after a completed transform needs the transformed
	// payload; extract's successor needs the raw payload. A data file
	// reference only counts if the spill still exists on disk.
	c.mu.Lock()
	defer c.mu.Unlock()
	switch p {
	case models.PhaseTransform:
		if c.rawData == nil && !c.spillExists(checkpoint.AttrRawData) {
			return false
		}
	case models.PhaseLoad:
		if c.transformed == nil && !c.spillExists(checkpoint.AttrTransformedData) {
			return false
		}
	}
	return true
}

// spillExists reports whether the referenced payload file is still on disk.
// Callers hold c.mu.
func (c *Context) spillExists(attr string) bool {
	path, ok := c.dataFiles[attr]
	if !ok {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
