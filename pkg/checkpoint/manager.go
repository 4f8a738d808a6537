// Package checkpoint persists and restores ETL state at phase boundaries.
// A checkpoint is a small JSON descriptor plus spill files for the large
// payloads (raw and transformed data), laid out as:
//
//	<output_dir>/checkpoints/<task_id>/<checkpoint_id>.json
//	<output_dir>/checkpoints/<task_id>/<checkpoint_id>/raw.json
//	<output_dir>/checkpoints/<task_id>/<checkpoint_id>/transformed.json
//
// Payloads are restored lazily: Restore returns the descriptor with file
// references intact, and the phase that needs a payload loads it then.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skyvault/skyvault/pkg/models"
)

// Data file attribute keys within a checkpoint descriptor.
const (
	AttrRawData         = "raw_data"
	AttrTransformedData = "transformed_data"
)

// State is what a checkpoint captures. Raw and Transformed are optional;
// whichever is present is spilled and referenced from the descriptor.
type State struct {
	Descriptor  models.Checkpoint
	Raw         *models.RawExport
	Transformed *models.TransformedExport
}

// Manager owns the checkpoint directory for one task.
type Manager struct {
	dir    string
	taskID string
	log    *slog.Logger
}

// NewManager creates (if needed) the checkpoint directory for taskID under
// outputDir.
func NewManager(outputDir, taskID string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(outputDir, "checkpoints", taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return &Manager{dir: dir, taskID: taskID, log: logger}, nil
}

// Dir returns the checkpoint directory.
func (m *Manager) Dir() string { return m.dir }

// Create persists a checkpoint and returns the final descriptor, whose
// DataFiles map references the spill files written for any payloads
// present in state.
func (m *Manager) Create(state *State) (*models.Checkpoint, error) {
	id := uuid.NewString()
	desc := state.Descriptor
	desc.ID = id
	desc.TaskID = m.taskID
	desc.Timestamp = time.Now().UTC()
	if desc.DataFiles == nil {
		desc.DataFiles = map[string]string{}
	}

	spillDir := filepath.Join(m.dir, id)
	if state.Raw != nil || state.Transformed != nil {
		if err := os.MkdirAll(spillDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating spill directory: %w", err)
		}
	}

	if state.Raw != nil {
		path := filepath.Join(spillDir, "raw.json")
		if err := writeJSON(path, state.Raw); err != nil {
			return nil, fmt.Errorf("spilling raw data: %w", err)
		}
		desc.DataFiles[AttrRawData] = path
	}
	if state.Transformed != nil {
		path := filepath.Join(spillDir, "transformed.json")
		if err := writeJSON(path, state.Transformed); err != nil {
			return nil, fmt.Errorf("spilling transformed data: %w", err)
		}
		desc.DataFiles[AttrTransformedData] = path
	}

	if err := writeJSON(filepath.Join(m.dir, id+".json"), &desc); err != nil {
		return nil, fmt.Errorf("writing checkpoint descriptor: %w", err)
	}
	m.log.Info("Checkpoint created",
		"checkpoint_id", id,
		"task_id", m.taskID,
		"phase", desc.CurrentPhase,
		"data_files", len(desc.DataFiles))
	return &desc, nil
}

// Get reads one checkpoint descriptor.
func (m *Manager) Get(id string) (*models.Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", id, err)
	}
	var desc models.Checkpoint
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", id, err)
	}
	return &desc, nil
}

// List returns every checkpoint descriptor for the task, newest first.
func (m *Manager) List() ([]*models.Checkpoint, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	var out []*models.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		desc, err := m.Get(id)
		if err != nil {
			m.log.Warn("Skipping unreadable checkpoint", "checkpoint_id", id, "error", err)
			continue
		}
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Latest returns the newest checkpoint, or nil when none exist.
func (m *Manager) Latest() (*models.Checkpoint, error) {
	all, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

// Restore reads a descriptor and verifies its data files exist. Payloads
// stay on disk until LoadRaw / LoadTransformed are called.
func (m *Manager) Restore(id string) (*models.Checkpoint, error) {
	desc, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	for attr, path := range desc.DataFiles {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("checkpoint %s: data file for %s missing: %w", id, attr, err)
		}
	}
	return desc, nil
}

// CanResumeFrom reports whether the checkpoint is a valid resume point at
// phase p: all predecessors completed and every referenced data file
// present on disk.
func (m *Manager) CanResumeFrom(desc *models.Checkpoint, p models.Phase) bool {
	if desc == nil || !desc.CanResumeFrom(p) {
		return false
	}
	for _, path := range desc.DataFiles {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// LoadRaw reads a spilled raw export.
func (m *Manager) LoadRaw(path string) (*models.RawExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading raw spill: %w", err)
	}
	var raw models.RawExport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding raw spill: %w", err)
	}
	return &raw, nil
}

// LoadTransformed reads a spilled transformed export.
func (m *Manager) LoadTransformed(path string) (*models.TransformedExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading transformed spill: %w", err)
	}
	var t models.TransformedExport
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding transformed spill: %w", err)
	}
	return &t, nil
}

// writeJSON writes v atomically: temp file then rename, so a crash never
// leaves a truncated descriptor behind.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
