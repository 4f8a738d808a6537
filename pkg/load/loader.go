// Package load implements the load phase: writing a transformed export to
// PostgreSQL as one transaction, with batched multi-row inserts and
// raw-document deduplication by content hash.
package load

import (
	"context"
	"fmt"

	"github.com/skyvault/skyvault/pkg/database"
	"github.com/skyvault/skyvault/pkg/etl"
	"github.com/skyvault/skyvault/pkg/models"
	"github.com/skyvault/skyvault/pkg/validate"
)

// progressFunc reports cumulative inserted rows; nil outside the pipeline
// path.
type progressFunc func(done, total int)

// Loader is the load phase executor.
type Loader struct {
	pool      *database.Pool
	BatchSize int

	progress progressFunc
}

// New returns a loader writing through pool.
func New(pool *database.Pool) *Loader {
	return &Loader{pool: pool, BatchSize: 100}
}

// Phase implements etl.PhaseExecutor.
func (l *Loader) Phase() models.Phase { return models.PhaseLoad }

// Run loads the context's transformed export and records the export id.
func (l *Loader) Run(ctx context.Context, ec *etl.Context) error {
	transformed, err := ec.Transformed()
	if err != nil {
		return etl.NewError(etl.KindLoading, models.PhaseLoad, "loading transformed data", err)
	}
	raw, err := ec.Raw()
	if err != nil {
		return etl.NewError(etl.KindLoading, models.PhaseLoad, "loading raw data", err)
	}

	if err := ec.StartPhase(models.PhaseLoad, 0, 0); err != nil {
		return etl.NewError(etl.KindInternal, models.PhaseLoad, "starting load phase", err)
	}

	if err := validate.TransformedExport(transformed); err != nil {
		ec.RecordError(models.PhaseLoad, err.Error(), nil, true)
		return etl.NewError(etl.KindValidation, models.PhaseLoad, "validating transformed export", err)
	}

	run := *l
	if ec.Config.BatchSize > 0 {
		run.BatchSize = ec.Config.BatchSize
	}
	run.progress = func(done, total int) {
		ec.UpdateProgress(models.PhaseLoad, done, total, "rows")
	}

	exportID, err := run.Load(ctx, raw, transformed, ec.FileSource)
	if err != nil {
		ec.RecordError(models.PhaseLoad, err.Error(),
			map[string]any{"file_source": ec.FileSource}, true)
		return etl.NewError(etl.KindLoading, models.PhaseLoad, "loading export", err)
	}

	ec.ExportID = exportID
	ec.Log().Info("Load complete",
		"export_id", exportID,
		"conversations", transformed.Conversations.Len(),
		"messages", transformed.Metadata.TotalMessages)

	if err := ec.EndPhase(models.PhaseLoad, models.StatusCompleted); err != nil {
		return etl.NewError(etl.KindInternal, models.PhaseLoad, "ending load phase", err)
	}
	return nil
}

// Load writes the export in a single transaction and returns the new
// exports row id. Any failure rolls the whole transaction back.
func (l *Loader) Load(ctx context.Context, raw *models.RawExport, transformed *models.TransformedExport, fileSource string) (int64, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rawExportID, err := insertRawExport(ctx, tx, raw, fileSource)
	if err != nil {
		return 0, fmt.Errorf("inserting raw export: %w", err)
	}

	exportID, err := insertExport(ctx, tx, rawExportID, transformed)
	if err != nil {
		return 0, fmt.Errorf("inserting export: %w", err)
	}

	totalRows := countRows(transformed)
	done := 0
	report := func(n int) {
		done += n
		if l.progress != nil {
			l.progress(done, totalRows)
		}
	}

	convIDs, err := l.insertConversations(ctx, tx, exportID, transformed, report)
	if err != nil {
		return 0, fmt.Errorf("inserting conversations: %w", err)
	}
	if err := l.insertMessages(ctx, tx, convIDs, transformed, report); err != nil {
		return 0, fmt.Errorf("inserting messages: %w", err)
	}
	if err := l.insertParticipants(ctx, tx, convIDs, transformed, report); err != nil {
		return 0, fmt.Errorf("inserting participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing export: %w", err)
	}
	return exportID, nil
}

// countRows totals the rows Load will insert, for progress reporting.
func countRows(t *models.TransformedExport) int {
	total := t.Conversations.Len()
	t.Conversations.Each(func(_ string, conv *models.TransformedConversation) bool {
		total += len(conv.Messages) + len(conv.Participants)
		for i := range conv.Messages {
			total += len(conv.Messages[i].Attachments)
		}
		return true
	})
	return total
}
