// Package etl contains the pipeline core: the shared context and its
// managers (phase sequencing, progress, memory, error log), the phase
// driver, and the error model the whole pipeline reports through.
package etl

import (
	"context"
	"errors"
	"fmt"

	"github.com/skyvault/skyvault/pkg/models"
)

// Kind classifies pipeline errors. Exception-style control flow in the
// phases collapses into this single enum plus a detail struct; per-message
// failures never become errors of this type, they are recorded in the
// error log instead.
type Kind string

// Error kinds.
const (
	KindValidation     Kind = "validation"
	KindExtraction     Kind = "extraction"
	KindTransformation Kind = "transformation"
	KindLoading        Kind = "loading"
	KindCheckpoint     Kind = "checkpoint"
	KindCancelled      Kind = "cancelled"
	KindInternal       Kind = "internal"
)

// Error is a fatal pipeline error attributed to a phase.
type Error struct {
	Kind    Kind
	Phase   models.Phase
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error in %s phase: %s: %v", e.Kind, e.Phase, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error in %s phase: %s", e.Kind, e.Phase, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified pipeline error.
func NewError(kind Kind, phase models.Phase, message string, err error) *Error {
	return &Error{Kind: kind, Phase: phase, Message: message, Err: err}
}

// KindOf classifies an arbitrary error, recognizing context cancellation
// and wrapped pipeline errors. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// PhaseOf returns the phase an error is attributed to, when known.
func PhaseOf(err error) models.Phase {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return ""
}
