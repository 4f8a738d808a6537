package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skyvault/skyvault/pkg/models"
)

func TestProgressTracker(t *testing.T) {
	p := NewProgressTracker()
	p.SetTotals(3, 120)

	p.Update(models.PhaseTransform, 40, 120, "messages")
	p.Update(models.PhaseTransform, 80, 120, "messages")

	phases, conversations, messages, elided := p.Snapshot()
	assert.Equal(t, 3, conversations)
	assert.Equal(t, 120, messages)
	assert.Zero(t, elided)

	transform := phases[models.PhaseTransform]
	assert.Equal(t, 80, transform.Current)
	assert.Equal(t, 120, transform.Total)
	assert.Equal(t, "messages", transform.ItemType)
	assert.InDelta(t, 66.6, transform.Percent(), 0.1)
}

func TestProgressPercentBounds(t *testing.T) {
	assert.Zero(t, PhaseProgress{Current: 5, Total: 0}.Percent())
	assert.Equal(t, 100.0, PhaseProgress{Current: 7, Total: 7}.Percent())
}

func TestProgressElided(t *testing.T) {
	p := NewProgressTracker()
	p.AddElided(2)
	p.AddElided(1)
	assert.Equal(t, 3, p.Elided())

	// Restore overwrites rather than accumulates.
	p.SetElided(5)
	assert.Equal(t, 5, p.Elided())
}
