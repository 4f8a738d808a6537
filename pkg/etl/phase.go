package etl

import (
	"fmt"
	"sync"
	"time"

	"github.com/skyvault/skyvault/pkg/models"
)

// PhaseManager tracks the lifecycle of the three pipeline phases. At most
// one phase is in progress at any time, and a phase may only start once
// every predecessor has succeeded (completed, warning, or skipped on
// resume).
type PhaseManager struct {
	mu       sync.Mutex
	statuses map[models.Phase]models.PhaseStatus
	started  map[models.Phase]time.Time
	duration map[models.Phase]time.Duration
	current  models.Phase
}

// NewPhaseManager returns a manager with every phase pending.
func NewPhaseManager() *PhaseManager {
	statuses := make(map[models.Phase]models.PhaseStatus, len(models.Phases))
	for _, p := range models.Phases {
		statuses[p] = models.StatusPending
	}
	return &PhaseManager{
		statuses: statuses,
		started:  make(map[models.Phase]time.Time),
		duration: make(map[models.Phase]time.Duration),
	}
}

// Start transitions a phase to in_progress. It fails when another phase is
// running, the phase is unknown, or a predecessor has not succeeded.
func (m *PhaseManager) Start(p models.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !p.Valid() {
		return fmt.Errorf("unknown phase %q", p)
	}
	if m.current != "" {
		return fmt.Errorf("cannot start phase %s: phase %s is in progress", p, m.current)
	}
	for _, pred := range p.Predecessors() {
		if !m.statuses[pred].Succeeded() {
			return fmt.Errorf("cannot start phase %s: predecessor %s is %s", p, pred, m.statuses[pred])
		}
	}
	m.statuses[p] = models.StatusInProgress
	m.started[p] = time.Now()
	m.current = p
	return nil
}

// End transitions the current phase to a terminal status.
func (m *PhaseManager) End(p models.Phase, status models.PhaseStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != p {
		return fmt.Errorf("cannot end phase %s: current phase is %q", p, m.current)
	}
	if !status.Terminal() {
		return fmt.Errorf("cannot end phase %s with non-terminal status %s", p, status)
	}
	m.statuses[p] = status
	if start, ok := m.started[p]; ok {
		m.duration[p] = time.Since(start)
	}
	m.current = ""
	return nil
}

// MarkSkipped records a phase as skipped (resume path). Only legal for a
// phase that is still pending.
func (m *PhaseManager) MarkSkipped(p models.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses[p] != models.StatusPending {
		return fmt.Errorf("cannot skip phase %s in status %s", p, m.statuses[p])
	}
	m.statuses[p] = models.StatusSkipped
	return nil
}

// Restore overwrites phase statuses from a checkpoint. In-progress phases
// from a crashed run come back as pending so they re-execute.
func (m *PhaseManager) Restore(statuses map[models.Phase]models.PhaseStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ""
	for _, p := range models.Phases {
		s, ok := statuses[p]
		if !ok || s == models.StatusInProgress {
			s = models.StatusPending
		}
		m.statuses[p] = s
	}
}

// Current returns the phase in progress, or empty.
func (m *PhaseManager) Current() models.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Status returns the status of a phase.
func (m *PhaseManager) Status(p models.Phase) models.PhaseStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[p]
}

// Statuses returns a copy of all phase statuses.
func (m *PhaseManager) Statuses() map[models.Phase]models.PhaseStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.Phase]models.PhaseStatus, len(m.statuses))
	for p, s := range m.statuses {
		out[p] = s
	}
	return out
}

// Durations returns a copy of recorded phase durations.
func (m *PhaseManager) Durations() map[models.Phase]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.Phase]time.Duration, len(m.duration))
	for p, d := range m.duration {
		out[p] = d
	}
	return out
}
