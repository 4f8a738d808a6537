package etl

import (
	"runtime"
	"sync"
)

// MemoryStats is a point-in-time memory reading.
type MemoryStats struct {
	UsedMB  float64 `json:"used_mb"`
	PeakMB  float64 `json:"peak_mb"`
	LimitMB float64 `json:"limit_mb"`
	Percent float64 `json:"percent"`
}

// backPressureFraction is the share of the memory budget at which chunk
// submission blocks.
const backPressureFraction = 0.8

// MemoryMonitor tracks heap usage against the configured budget, plus a
// rolling estimate of in-flight chunk payloads. The transform phase gates
// new submissions on OverBudget.
type MemoryMonitor struct {
	limitMB float64

	mu       sync.Mutex
	peakMB   float64
	inFlight int64
}

// NewMemoryMonitor returns a monitor for the given budget in MB.
func NewMemoryMonitor(limitMB int) *MemoryMonitor {
	return &MemoryMonitor{limitMB: float64(limitMB)}
}

// Check reads the current heap usage and updates the recorded peak.
func (m *MemoryMonitor) Check() MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	defer m.mu.Unlock()
	used := float64(ms.HeapAlloc)/(1<<20) + float64(m.inFlight)/(1<<20)
	if used > m.peakMB {
		m.peakMB = used
	}
	stats := MemoryStats{
		UsedMB:  used,
		PeakMB:  m.peakMB,
		LimitMB: m.limitMB,
	}
	if m.limitMB > 0 {
		stats.Percent = used / m.limitMB * 100
	}
	return stats
}

// Reserve adds an in-flight payload estimate (bytes) before a chunk is
// submitted.
func (m *MemoryMonitor) Reserve(bytes int64) {
	m.mu.Lock()
	m.inFlight += bytes
	m.mu.Unlock()
}

// Release subtracts a payload estimate after a chunk completes.
func (m *MemoryMonitor) Release(bytes int64) {
	m.mu.Lock()
	m.inFlight -= bytes
	if m.inFlight < 0 {
		m.inFlight = 0
	}
	m.mu.Unlock()
}

// OverBudget reports whether usage is at or above the back-pressure
// threshold of the budget.
func (m *MemoryMonitor) OverBudget() bool {
	if m.limitMB <= 0 {
		return false
	}
	stats := m.Check()
	return stats.UsedMB >= m.limitMB*backPressureFraction
}

// PeakMB returns the highest usage observed.
func (m *MemoryMonitor) PeakMB() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakMB
}
