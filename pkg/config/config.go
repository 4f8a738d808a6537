// Package config holds pipeline configuration: chunking, worker pool
// sizing, memory budget, phase timeouts, and output locations. Database
// connection settings live in pkg/database.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Pipeline contains the tunables of one ETL run.
type Pipeline struct {
	// OutputDir is where checkpoints, spills, and the summary file go.
	OutputDir string

	// ChunkSize is the number of messages one transform worker processes
	// per unit of work.
	ChunkSize int

	// BatchSize is the number of rows per bulk-insert statement in the
	// load phase.
	BatchSize int

	// ParallelProcessing enables the transform worker pool. When false the
	// transform runs on exactly one worker regardless of MaxWorkers.
	ParallelProcessing bool

	// MaxWorkers sizes the transform worker pool. Zero or negative means
	// the CPU count, capped at MaxWorkerCap.
	MaxWorkers int

	// MemoryLimitMB is the transform memory budget. Submission of new
	// chunks blocks while estimated usage exceeds 80% of this limit.
	MemoryLimitMB int

	// SpillThresholdBytes is the raw-document size above which the extract
	// phase spills payloads to disk instead of holding them inline in
	// checkpoints.
	SpillThresholdBytes int64

	// Per-phase timeouts. Exceeding one cancels the pipeline.
	ExtractTimeout   time.Duration
	TransformTimeout time.Duration
	LoadTimeout      time.Duration

	// AcquireTimeout bounds waiting for a database connection before the
	// load phase fails with ErrDatabaseUnavailable.
	AcquireTimeout time.Duration
}

// MaxWorkerCap bounds the default worker count on large machines.
const MaxWorkerCap = 8

// Default returns the built-in pipeline defaults.
func Default() *Pipeline {
	return &Pipeline{
		OutputDir:           "./output",
		ChunkSize:           1000,
		BatchSize:           100,
		ParallelProcessing:  true,
		MaxWorkers:          0,
		MemoryLimitMB:       1024,
		SpillThresholdBytes: 32 << 20,
		ExtractTimeout:      10 * time.Minute,
		TransformTimeout:    60 * time.Minute,
		LoadTimeout:         30 * time.Minute,
		AcquireTimeout:      10 * time.Second,
	}
}

// EffectiveWorkers resolves the worker pool size: parallel processing off
// forces one worker; a non-positive MaxWorkers defaults to the CPU count,
// capped.
func (p *Pipeline) EffectiveWorkers() int {
	if !p.ParallelProcessing {
		return 1
	}
	if p.MaxWorkers > 0 {
		return p.MaxWorkers
	}
	n := runtime.NumCPU()
	if n > MaxWorkerCap {
		n = MaxWorkerCap
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Validate checks the configuration for nonsensical values.
func (p *Pipeline) Validate() error {
	if p.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", p.ChunkSize)
	}
	if p.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", p.BatchSize)
	}
	if p.MemoryLimitMB <= 0 {
		return fmt.Errorf("memory_limit_mb must be positive, got %d", p.MemoryLimitMB)
	}
	if p.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	return nil
}

// FromEnv returns the defaults overridden by SKYVAULT_* environment
// variables.
func FromEnv() (*Pipeline, error) {
	p := Default()
	if v := os.Getenv("SKYVAULT_OUTPUT_DIR"); v != "" {
		p.OutputDir = v
	}
	var err error
	if p.ChunkSize, err = intEnv("SKYVAULT_CHUNK_SIZE", p.ChunkSize); err != nil {
		return nil, err
	}
	if p.BatchSize, err = intEnv("SKYVAULT_BATCH_SIZE", p.BatchSize); err != nil {
		return nil, err
	}
	if p.MaxWorkers, err = intEnv("SKYVAULT_MAX_WORKERS", p.MaxWorkers); err != nil {
		return nil, err
	}
	if p.MemoryLimitMB, err = intEnv("SKYVAULT_MEMORY_LIMIT_MB", p.MemoryLimitMB); err != nil {
		return nil, err
	}
	if v := os.Getenv("SKYVAULT_PARALLEL"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SKYVAULT_PARALLEL: %w", err)
		}
		p.ParallelProcessing = enabled
	}
	for _, t := range []struct {
		key string
		dst *time.Duration
	}{
		{"SKYVAULT_EXTRACT_TIMEOUT", &p.ExtractTimeout},
		{"SKYVAULT_TRANSFORM_TIMEOUT", &p.TransformTimeout},
		{"SKYVAULT_LOAD_TIMEOUT", &p.LoadTimeout},
	} {
		if v := os.Getenv(t.key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", t.key, err)
			}
			*t.dst = d
		}
	}
	return p, p.Validate()
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
