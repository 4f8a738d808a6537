// Package extract implements the extract phase: locating the export
// document inside a file (bare JSON or a TAR/TGZ archive), decoding it,
// and validating its shape before it enters the pipeline.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/skyvault/skyvault/pkg/etl"
	"github.com/skyvault/skyvault/pkg/models"
	"github.com/skyvault/skyvault/pkg/validate"
)

// Failure taxonomy of the extract phase. All are fatal.
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMalformedJSON     = errors.New("malformed JSON")
	ErrSchemaViolation   = errors.New("schema violation")
)

// Selector controls which archive entry is used when the source is a TAR.
// The zero value is auto-selection: the first JSON entry whose decoded
// root contains conversations.
type Selector struct {
	// Index selects the nth JSON entry (0-based) when non-negative.
	Index int
	// Pattern selects the first entry whose name contains the substring.
	Pattern string
}

// DefaultSelector returns the auto-selecting configuration.
func DefaultSelector() Selector {
	return Selector{Index: -1}
}

// Extractor is the extract phase executor.
type Extractor struct {
	Selector Selector
}

// New returns an extractor with auto entry selection.
func New() *Extractor {
	return &Extractor{Selector: DefaultSelector()}
}

// Phase implements etl.PhaseExecutor.
func (e *Extractor) Phase() models.Phase { return models.PhaseExtract }

// Run extracts the export from the context's file source and stores it on
// the context.
func (e *Extractor) Run(ctx context.Context, ec *etl.Context) error {
	if err := ec.StartPhase(models.PhaseExtract, 0, 0); err != nil {
		return etl.NewError(etl.KindInternal, models.PhaseExtract, "starting extract phase", err)
	}

	raw, err := e.Extract(ctx, ec.FileSource)
	if err != nil {
		kind := etl.KindExtraction
		if errors.Is(err, ErrSchemaViolation) {
			kind = etl.KindValidation
		}
		ec.RecordError(models.PhaseExtract, err.Error(),
			map[string]any{"source": ec.FileSource}, true)
		return etl.NewError(kind, models.PhaseExtract, "extracting export", err)
	}

	conversations := len(raw.Conversations)
	messages := raw.MessageCount()
	ec.Progress.SetTotals(conversations, messages)
	ec.UpdateProgress(models.PhaseExtract, 1, 1, "files")
	ec.UserID = raw.UserID
	ec.ExportDate = raw.ExportDate

	if err := ec.StoreRaw(raw); err != nil {
		ec.RecordError(models.PhaseExtract, err.Error(), nil, true)
		return etl.NewError(etl.KindExtraction, models.PhaseExtract, "storing raw data", err)
	}

	ec.Log().Info("Extract complete",
		"source", ec.FileSource,
		"conversation_count", conversations,
		"total_message_count", messages,
		"document_bytes", len(raw.Document))

	if err := ec.EndPhase(models.PhaseExtract, models.StatusCompleted); err != nil {
		return etl.NewError(etl.KindInternal, models.PhaseExtract, "ending extract phase", err)
	}
	return nil
}

// Extract reads and decodes the export document at path.
func (e *Extractor) Extract(ctx context.Context, path string) (*models.RawExport, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	format, err := sniffFormat(f, path)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case formatTar, formatTarGz:
		data, err = e.selectTarEntry(ctx, f, format == formatTarGz)
		if err != nil {
			return nil, err
		}
	case formatJSON:
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	return decodeExport(data)
}

// decodeExport parses export bytes and validates the result.
func decodeExport(data []byte) (*models.RawExport, error) {
	var raw models.RawExport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if err := validate.RawExport(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return &raw, nil
}

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatJSON
	formatTar
	formatTarGz
)

// sniffFormat decides the container format from the file extension, with
// magic bytes as the tie-breaker. The reader is rewound afterwards.
func sniffFormat(f *os.File, path string) (fileFormat, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar"):
		return formatTar, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return formatTarGz, nil
	case strings.HasSuffix(lower, ".json"):
		return formatJSON, nil
	}

	// No recognizable extension: check magic bytes. Gzip starts with
	// 0x1f8b; POSIX tar carries "ustar" at offset 257.
	header := make([]byte, 262)
	n, err := f.ReadAt(header, 0)
	if err != nil && n < 2 {
		return formatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	header = header[:n]
	if len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b {
		return formatTarGz, nil
	}
	if len(header) >= 262 && string(header[257:262]) == "ustar" {
		return formatTar, nil
	}
	for _, b := range header {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return formatJSON, nil
		}
		break
	}
	return formatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}
