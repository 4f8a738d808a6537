package etl

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyvault/skyvault/pkg/checkpoint"
	"github.com/skyvault/skyvault/pkg/config"
	"github.com/skyvault/skyvault/pkg/models"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	ec, err := NewContext(cfg, "task-test", slog.Default())
	require.NoError(t, err)
	return ec
}

func testRawExport(t *testing.T) *models.RawExport {
	t.Helper()
	doc := []byte(`{"userId":"8:alice","exportDate":"2023-05-01T00:00:00Z","conversations":[{"id":"c1","displayName":"Chat","MessageList":[{"id":"m1","messagetype":"RichText","content":"hi","from":"8:bob","originalarrivaltime":"2023-05-01T12:00:00Z"}]}]}`)
	var raw models.RawExport
	require.NoError(t, json.Unmarshal(doc, &raw))
	return &raw
}

func TestContextStoreRawInline(t *testing.T) {
	ec := newTestContext(t)
	raw := testRawExport(t)

	require.NoError(t, ec.StoreRaw(raw))
	got, err := ec.Raw()
	require.NoError(t, err)
	assert.Same(t, raw, got)
}

func TestContextStoreRawSpills(t *testing.T) {
	ec := newTestContext(t)
	ec.Config.SpillThresholdBytes = 8 // force the spill path
	raw := testRawExport(t)

	require.NoError(t, ec.StoreRaw(raw))

	// The document went to disk; reloading hands back an equivalent export.
	got, err := ec.Raw()
	require.NoError(t, err)
	assert.Equal(t, raw.UserID, got.UserID)
	require.Len(t, got.Conversations, 1)
	assert.Equal(t, "c1", got.Conversations[0].ID)
}

func TestContextCheckpointRoundTrip(t *testing.T) {
	ec := newTestContext(t)
	raw := testRawExport(t)

	require.NoError(t, ec.StartPhase(models.PhaseExtract, 1, 1))
	require.NoError(t, ec.StoreRaw(raw))
	ec.UserID = raw.UserID
	ec.ExportDate = raw.ExportDate
	ec.RecordError(models.PhaseExtract, "minor issue", nil, false)
	require.NoError(t, ec.EndPhase(models.PhaseExtract, models.StatusCompleted))
	ec.Progress.AddElided(2)

	id, err := ec.Checkpoint()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// A fresh context restores the same view, modulo timestamps.
	cfg := *ec.Config
	restored, err := NewContext(&cfg, ec.TaskID, slog.Default())
	require.NoError(t, err)

	ok, err := restored.Restore(id)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, models.StatusWarning, restored.Phases.Status(models.PhaseExtract))
	assert.Equal(t, "8:alice", restored.UserID)
	assert.Equal(t, 2, restored.Progress.Elided())
	require.Len(t, restored.Errors.All(), 1)

	// The raw payload is reachable through the checkpoint data file.
	got, err := restored.Raw()
	require.NoError(t, err)
	assert.Equal(t, "8:alice", got.UserID)

	assert.True(t, restored.CanResumeFromPhase(models.PhaseTransform))
	assert.False(t, restored.CanResumeFromPhase(models.PhaseLoad))
}

func TestContextEndPhaseDowngradesToWarning(t *testing.T) {
	ec := newTestContext(t)
	require.NoError(t, ec.StartPhase(models.PhaseExtract, 0, 0))
	ec.RecordError(models.PhaseExtract, "recoverable", nil, false)
	require.NoError(t, ec.EndPhase(models.PhaseExtract, models.StatusCompleted))

	assert.Equal(t, models.StatusWarning, ec.Phases.Status(models.PhaseExtract))
}

func TestContextFatalErrorFailsPhase(t *testing.T) {
	ec := newTestContext(t)
	require.NoError(t, ec.StartPhase(models.PhaseExtract, 0, 0))
	ec.RecordError(models.PhaseExtract, "unrecoverable", nil, true)

	assert.Equal(t, models.StatusFailed, ec.Phases.Status(models.PhaseExtract))
	assert.Empty(t, ec.Phases.Current())
}

func TestContextCanResumeRequiresPayload(t *testing.T) {
	ec := newTestContext(t)
	// Mark extract complete without any stored payload.
	require.NoError(t, ec.StartPhase(models.PhaseExtract, 0, 0))
	require.NoError(t, ec.EndPhase(models.PhaseExtract, models.StatusCompleted))

	assert.False(t, ec.CanResumeFromPhase(models.PhaseTransform),
		"completed extract without raw payload is not a resume point")

	require.NoError(t, ec.StoreRaw(testRawExport(t)))
	assert.True(t, ec.CanResumeFromPhase(models.PhaseTransform))
}

func TestContextCanResumeRequiresSpillOnDisk(t *testing.T) {
	ec := newTestContext(t)
	require.NoError(t, ec.StartPhase(models.PhaseExtract, 0, 0))
	require.NoError(t, ec.StoreRaw(testRawExport(t)))
	require.NoError(t, ec.EndPhase(models.PhaseExtract, models.StatusCompleted))

	id, err := ec.Checkpoint()
	require.NoError(t, err)

	cfg := *ec.Config
	restored, err := NewContext(&cfg, ec.TaskID, slog.Default())
	require.NoError(t, err)
	_, err = restored.Restore(id)
	require.NoError(t, err)
	require.True(t, restored.CanResumeFromPhase(models.PhaseTransform))

	// A data file reference whose spill was deleted must not pass.
	desc, err := restored.Checkpoints.Get(id)
	require.NoError(t, err)
	require.NoError(t, os.Remove(desc.DataFiles[checkpoint.AttrRawData]))

	assert.False(t, restored.CanResumeFromPhase(models.PhaseTransform),
		"missing spill file is not a resume point")
}

func TestWriteSummary(t *testing.T) {
	ec := newTestContext(t)
	ec.Progress.SetTotals(3, 42)
	ec.ExportID = 7

	path, err := ec.WriteSummary()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ec.Config.OutputDir, "summary_task-test.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var summary Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "task-test", summary.TaskID)
	assert.Equal(t, 3, summary.TotalConversations)
	assert.Equal(t, 42, summary.TotalMessages)
	assert.Equal(t, int64(7), summary.ExportID)
}

func TestCheckpointManagerWiring(t *testing.T) {
	ec := newTestContext(t)
	assert.Equal(t,
		filepath.Join(ec.Config.OutputDir, "checkpoints", "task-test"),
		ec.Checkpoints.Dir())
}
