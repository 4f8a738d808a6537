package etl

import (
	"sync"
	"time"

	"github.com/skyvault/skyvault/pkg/models"
)

// ErrorLogger accumulates error records across phases. Per-message
// transformation failures land here as non-fatal records; phase-level
// failures land here as fatal records before the pipeline aborts.
type ErrorLogger struct {
	mu      sync.Mutex
	records []models.ErrorRecord
}

// NewErrorLogger returns an empty logger.
func NewErrorLogger() *ErrorLogger {
	return &ErrorLogger{}
}

// Record appends an error record.
func (l *ErrorLogger) Record(phase models.Phase, message string, details map[string]any, fatal bool) models.ErrorRecord {
	rec := models.ErrorRecord{
		Phase:     phase,
		Message:   message,
		Details:   details,
		Fatal:     fatal,
		Timestamp: time.Now().UTC(),
	}
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return rec
}

// Restore seeds the log from checkpoint records.
func (l *ErrorLogger) Restore(records []models.ErrorRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append([]models.ErrorRecord(nil), records...)
}

// All returns a copy of every record.
func (l *ErrorLogger) All() []models.ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ErrorRecord(nil), l.records...)
}

// Counts returns the fatal and non-fatal record counts.
func (l *ErrorLogger) Counts() (fatal, nonFatal int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].Fatal {
			fatal++
		} else {
			nonFatal++
		}
	}
	return fatal, nonFatal
}

// HasNonFatal reports whether any non-fatal record exists for the phase.
func (l *ErrorLogger) HasNonFatal(phase models.Phase) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].Phase == phase && !l.records[i].Fatal {
			return true
		}
	}
	return false
}

// Tail returns the most recent n records.
func (l *ErrorLogger) Tail(n int) []models.ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || len(l.records) == 0 {
		return nil
	}
	if n > len(l.records) {
		n = len(l.records)
	}
	return append([]models.ErrorRecord(nil), l.records[len(l.records)-n:]...)
}
