package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyvault/skyvault/pkg/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), "task-1", nil)
	require.NoError(t, err)
	return m
}

func rawFixture(t *testing.T) *models.RawExport {
	t.Helper()
	doc := []byte(`{"userId":"8:alice","conversations":[{"id":"c1","displayName":"Chat","MessageList":[]}]}`)
	var raw models.RawExport
	require.NoError(t, json.Unmarshal(doc, &raw))
	return &raw
}

func TestManagerCreateLayout(t *testing.T) {
	m := newTestManager(t)

	desc, err := m.Create(&State{
		Descriptor: models.Checkpoint{
			PhaseStatuses: map[models.Phase]models.PhaseStatus{
				models.PhaseExtract: models.StatusCompleted,
			},
			FileSource: "export.tar",
		},
		Raw: rawFixture(t),
	})
	require.NoError(t, err)
	require.NotEmpty(t, desc.ID)
	assert.Equal(t, "task-1", desc.TaskID)
	assert.False(t, desc.Timestamp.IsZero())

	// Descriptor and spill file are where the layout says they are.
	_, err = os.Stat(filepath.Join(m.Dir(), desc.ID+".json"))
	assert.NoError(t, err)
	rawPath, ok := desc.DataFiles[AttrRawData]
	require.True(t, ok)
	assert.Equal(t, filepath.Join(m.Dir(), desc.ID, "raw.json"), rawPath)
	_, err = os.Stat(rawPath)
	assert.NoError(t, err)
}

func TestManagerGetRoundTrip(t *testing.T) {
	m := newTestManager(t)
	desc, err := m.Create(&State{
		Descriptor: models.Checkpoint{
			PhaseStatuses:       map[models.Phase]models.PhaseStatus{models.PhaseExtract: models.StatusWarning},
			UserID:              "8:alice",
			ElidedConversations: 3,
			Errors: []models.ErrorRecord{
				{Phase: models.PhaseExtract, Message: "minor", Timestamp: time.Now().UTC()},
			},
		},
	})
	require.NoError(t, err)

	got, err := m.Get(desc.ID)
	require.NoError(t, err)
	assert.Equal(t, desc.ID, got.ID)
	assert.Equal(t, "8:alice", got.UserID)
	assert.Equal(t, 3, got.ElidedConversations)
	assert.Equal(t, models.StatusWarning, got.Status(models.PhaseExtract))
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "minor", got.Errors[0].Message)
}

func TestManagerGetMissing(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Get("nope")
	assert.Error(t, err)
}

func TestManagerListNewestFirst(t *testing.T) {
	m := newTestManager(t)

	var ids []string
	for i := 0; i < 3; i++ {
		desc, err := m.Create(&State{})
		require.NoError(t, err)
		ids = append(ids, desc.ID)
		time.Sleep(5 * time.Millisecond)
	}

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[2].ID)

	latest, err := m.Latest()
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)
}

func TestManagerLatestEmpty(t *testing.T) {
	m := newTestManager(t)
	latest, err := m.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestManagerRestore(t *testing.T) {
	m := newTestManager(t)
	desc, err := m.Create(&State{Raw: rawFixture(t)})
	require.NoError(t, err)

	t.Run("data files intact", func(t *testing.T) {
		got, err := m.Restore(desc.ID)
		require.NoError(t, err)
		assert.Equal(t, desc.DataFiles, got.DataFiles)

		raw, err := m.LoadRaw(got.DataFiles[AttrRawData])
		require.NoError(t, err)
		assert.Equal(t, "8:alice", raw.UserID)
	})

	t.Run("missing data file fails restore", func(t *testing.T) {
		require.NoError(t, os.Remove(desc.DataFiles[AttrRawData]))
		_, err := m.Restore(desc.ID)
		assert.Error(t, err)
	})
}

func TestManagerCanResumeFrom(t *testing.T) {
	m := newTestManager(t)
	desc, err := m.Create(&State{
		Descriptor: models.Checkpoint{
			PhaseStatuses: map[models.Phase]models.PhaseStatus{
				models.PhaseExtract: models.StatusCompleted,
			},
		},
		Raw: rawFixture(t),
	})
	require.NoError(t, err)

	assert.True(t, m.CanResumeFrom(desc, models.PhaseTransform))
	assert.False(t, m.CanResumeFrom(desc, models.PhaseLoad), "transform not done")
	assert.False(t, m.CanResumeFrom(nil, models.PhaseTransform))

	// Resume requires the referenced spill files to still exist.
	require.NoError(t, os.Remove(desc.DataFiles[AttrRawData]))
	assert.False(t, m.CanResumeFrom(desc, models.PhaseTransform))
}

func TestManagerLoadTransformed(t *testing.T) {
	m := newTestManager(t)

	transformed := &models.TransformedExport{
		Metadata:      models.ExportMetadata{UserID: "8:alice", TotalMessages: 2},
		Conversations: models.NewConversationMap(),
	}
	transformed.Conversations.Set("c1", &models.TransformedConversation{
		ID:          "c1",
		DisplayName: "Chat",
		Messages:    []models.TransformedMessage{},
	})

	desc, err := m.Create(&State{Transformed: transformed})
	require.NoError(t, err)

	got, err := m.LoadTransformed(desc.DataFiles[AttrTransformedData])
	require.NoError(t, err)
	assert.Equal(t, 2, got.Metadata.TotalMessages)
	assert.Equal(t, []string{"c1"}, got.Conversations.IDs())
}

func TestManagerListSkipsCorrupt(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(&State{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "corrupt.json"), []byte("{"), 0o644))

	list, err := m.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
