package etl

import (
	"context"
	"errors"
	"time"

	"github.com/skyvault/skyvault/pkg/database"
	"github.com/skyvault/skyvault/pkg/models"
)

// PhaseExecutor runs one pipeline phase against the shared context. The
// executor reads its input from the context and stores its output there.
type PhaseExecutor interface {
	Phase() models.Phase
	Run(ctx context.Context, ec *Context) error
}

// Result is the outcome handed back to the driver.
type Result struct {
	Success  bool                 `json:"success"`
	ExportID int64                `json:"export_id,omitempty"`
	Metrics  *Summary             `json:"metrics,omitempty"`
	Warnings []models.ErrorRecord `json:"warnings,omitempty"`

	ErrorKind      Kind                 `json:"error_kind,omitempty"`
	ErrorMessage   string               `json:"error_message,omitempty"`
	Phase          models.Phase         `json:"phase,omitempty"`
	RecordedErrors []models.ErrorRecord `json:"recorded_errors,omitempty"`

	err error
}

// Exit codes for drivers wrapping the pipeline.
const (
	ExitOK                  = 0
	ExitFatal               = 1
	ExitValidation          = 2
	ExitDatabaseUnavailable = 3
	ExitCancelled           = 4
)

// ExitCode maps the result onto the driver exit-code contract.
func (r *Result) ExitCode() int {
	if r.Success {
		return ExitOK
	}
	if errors.Is(r.err, database.ErrUnavailable) {
		return ExitDatabaseUnavailable
	}
	switch r.ErrorKind {
	case KindValidation:
		return ExitValidation
	case KindCancelled:
		return ExitCancelled
	default:
		return ExitFatal
	}
}

// Pipeline sequences the extract, transform, and load executors over one
// shared context, checkpointing at each phase boundary and enforcing the
// per-phase timeouts.
type Pipeline struct {
	ec        *Context
	executors []PhaseExecutor
}

// NewPipeline assembles a pipeline. Executors must be given in phase
// order; the constructor trusts the caller (the driver wires the three
// standard phases).
func NewPipeline(ec *Context, executors ...PhaseExecutor) *Pipeline {
	return &Pipeline{ec: ec, executors: executors}
}

// Context exposes the shared context, mainly for tests and the driver.
func (p *Pipeline) Context() *Context { return p.ec }

// Run executes all phases in order. Phases already completed in restored
// state are skipped; their outputs are reloaded lazily from checkpoint
// spills. The summary file is written on every path out.
func (p *Pipeline) Run(ctx context.Context, source, userDisplayName string) *Result {
	ec := p.ec
	ec.FileSource = source
	if userDisplayName != "" {
		ec.UserDisplayName = userDisplayName
	}

	for _, executor := range p.executors {
		phase := executor.Phase()

		if ec.Phases.Status(phase).Succeeded() {
			ec.Log().Info("Phase already completed, skipping", "phase", phase)
			continue
		}

		if err := p.runPhase(ctx, executor); err != nil {
			result := p.failure(phase, err)
			p.checkpointBoundary(phase, false)
			p.writeSummary()
			return result
		}

		p.checkpointBoundary(phase, true)
	}

	p.writeSummary()
	warnings := nonFatalRecords(ec.Errors.All())
	return &Result{
		Success:  true,
		ExportID: ec.ExportID,
		Metrics:  ec.Summary(),
		Warnings: warnings,
	}
}

// runPhase runs one executor under its configured timeout.
func (p *Pipeline) runPhase(ctx context.Context, executor PhaseExecutor) error {
	phase := executor.Phase()
	timeout := p.phaseTimeout(phase)

	phaseCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		phaseCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := executor.Run(phaseCtx, p.ec)
	if err == nil {
		return nil
	}

	// Distinguish an exceeded phase timeout or external cancellation from
	// the executor's own failure.
	if phaseCtx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return NewError(KindCancelled, phase, "phase cancelled", err)
	}
	return err
}

func (p *Pipeline) phaseTimeout(phase models.Phase) time.Duration {
	cfg := p.ec.Config
	switch phase {
	case models.PhaseExtract:
		return cfg.ExtractTimeout
	case models.PhaseTransform:
		return cfg.TransformTimeout
	case models.PhaseLoad:
		return cfg.LoadTimeout
	}
	return 0
}

// failure builds the failed result, making sure the phase status and the
// error log reflect the fatal error.
func (p *Pipeline) failure(phase models.Phase, err error) *Result {
	ec := p.ec
	kind := KindOf(err)
	if errPhase := PhaseOf(err); errPhase != "" {
		phase = errPhase
	}

	// Executors normally record their own fatal error; cover the paths
	// that bubbled a bare error instead.
	if current := ec.Phases.Current(); current == phase {
		ec.RecordError(phase, err.Error(), map[string]any{"kind": string(kind)}, true)
	}

	ec.Log().Error("Pipeline failed", "phase", phase, "kind", kind, "error", err)
	return &Result{
		Success:        false,
		ErrorKind:      kind,
		ErrorMessage:   err.Error(),
		Phase:          phase,
		RecordedErrors: ec.Errors.All(),
		Metrics:        ec.Summary(),
		err:            err,
	}
}

// checkpointBoundary checkpoints the context after a phase. Checkpoint
// write failures are non-fatal: the pipeline continues without a resume
// point for that boundary.
func (p *Pipeline) checkpointBoundary(phase models.Phase, success bool) {
	id, err := p.ec.Checkpoint()
	if err != nil {
		p.ec.Log().Warn("Checkpoint write failed, continuing",
			"phase", phase, "error", err)
		return
	}
	p.ec.Log().Info("Phase boundary checkpointed",
		"phase", phase, "checkpoint_id", id, "phase_success", success)
}

func (p *Pipeline) writeSummary() {
	path, err := p.ec.WriteSummary()
	if err != nil {
		p.ec.Log().Warn("Could not write summary file", "error", err)
		return
	}
	p.ec.Log().Info("Summary written", "path", path)
}

func nonFatalRecords(records []models.ErrorRecord) []models.ErrorRecord {
	var out []models.ErrorRecord
	for _, rec := range records {
		if !rec.Fatal {
			out = append(out, rec)
		}
	}
	return out
}
