package etl

import (
	"sync"
	"time"

	"github.com/skyvault/skyvault/pkg/models"
)

// PhaseProgress is a snapshot of one phase's item progress.
type PhaseProgress struct {
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	ItemType  string    `json:"item_type,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Percent returns completion as a percentage, zero when the total is
// unknown.
func (p PhaseProgress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// ProgressTracker accumulates per-phase progress plus the export-wide item
// counters the summary reports. Updates arrive from transform workers
// through the context's single-writer path.
type ProgressTracker struct {
	mu     sync.Mutex
	phases map[models.Phase]PhaseProgress

	totalConversations  int
	totalMessages       int
	elidedConversations int
}

// NewProgressTracker returns an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{phases: make(map[models.Phase]PhaseProgress)}
}

// Update records progress for one phase.
func (t *ProgressTracker) Update(phase models.Phase, current, total int, itemType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases[phase] = PhaseProgress{
		Current:   current,
		Total:     total,
		ItemType:  itemType,
		UpdatedAt: time.Now(),
	}
}

// SetTotals records the export-wide conversation and message counts.
func (t *ProgressTracker) SetTotals(conversations, messages int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalConversations = conversations
	t.totalMessages = messages
}

// AddElided bumps the elided-conversation counter.
func (t *ProgressTracker) AddElided(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.elidedConversations += n
}

// SetElided overwrites the elided-conversation counter (restore path).
func (t *ProgressTracker) SetElided(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.elidedConversations = n
}

// Snapshot returns copies of the per-phase progress and counters.
func (t *ProgressTracker) Snapshot() (map[models.Phase]PhaseProgress, int, int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	phases := make(map[models.Phase]PhaseProgress, len(t.phases))
	for p, prog := range t.phases {
		phases[p] = prog
	}
	return phases, t.totalConversations, t.totalMessages, t.elidedConversations
}

// Elided returns the elided-conversation count.
func (t *ProgressTracker) Elided() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elidedConversations
}
