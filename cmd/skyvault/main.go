// SkyVault ETL driver — extracts a Skype chat export, transforms it into
// the normalized projection, and loads it into PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/skyvault/skyvault/pkg/config"
	"github.com/skyvault/skyvault/pkg/database"
	"github.com/skyvault/skyvault/pkg/etl"
	"github.com/skyvault/skyvault/pkg/extract"
	"github.com/skyvault/skyvault/pkg/load"
	"github.com/skyvault/skyvault/pkg/media"
	"github.com/skyvault/skyvault/pkg/transform"
	"github.com/skyvault/skyvault/pkg/validate"
	"github.com/skyvault/skyvault/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command-line flags
	source := flag.String("source", "", "Path to the export file (.json, .tar, .tar.gz)")
	taskID := flag.String("task-id", "", "Task identifier (default: random)")
	displayName := flag.String("display-name", "", "Display name of the exporting user")
	outputDir := flag.String("output-dir", "", "Directory for checkpoints and the run summary")
	resume := flag.String("resume", "", "Checkpoint id to resume from, or 'latest'")
	serial := flag.Bool("serial", false, "Disable parallel transform processing")
	mediaDir := flag.String("media-dir", "", "Download attachments into this directory")
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "."),
		"Path to configuration directory")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return etl.ExitOK
	}
	if *source == "" && *resume == "" {
		fmt.Fprintln(os.Stderr, "either -source or -resume is required")
		flag.Usage()
		return etl.ExitValidation
	}

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	// 1. Pipeline configuration
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Failed to load pipeline config", "error", err)
		return etl.ExitValidation
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *serial {
		cfg.ParallelProcessing = false
	}

	// 2. Database configuration and connection
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		return etl.ExitValidation
	}
	if err := validate.Database(dbConfig); err != nil {
		slog.Error("Invalid database config", "error", err)
		return etl.ExitValidation
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		if ctx.Err() != nil {
			return etl.ExitCancelled
		}
		return etl.ExitDatabaseUnavailable
	}
	defer pool.Close()

	if health, err := pool.Health(ctx); err == nil {
		slog.Info("Connected to PostgreSQL database",
			"response_time_ms", health.ResponseTime,
			"max_conns", health.MaxConns)
	}

	// 3. ETL context
	id := *taskID
	if id == "" {
		id = uuid.NewString()
	}
	slog.Info("Starting SkyVault",
		"version", version.Full(),
		"task_id", id,
		"source", *source,
		"workers", cfg.EffectiveWorkers())

	ec, err := etl.NewContext(cfg, id, slog.Default())
	if err != nil {
		slog.Error("Failed to create ETL context", "error", err)
		return etl.ExitValidation
	}

	// 4. Optional checkpoint restore. A requested resume that cannot be
	// restored is fatal; silently starting over would redo committed work.
	src := *source
	if *resume != "" {
		checkpointID := *resume
		if checkpointID == "latest" {
			latest, err := ec.Checkpoints.Latest()
			if err != nil || latest == nil {
				slog.Error("No checkpoint to resume from", "task_id", id, "error", err)
				return etl.ExitFatal
			}
			checkpointID = latest.ID
		}
		if _, err := ec.Restore(checkpointID); err != nil {
			slog.Error("Checkpoint restore failed", "checkpoint_id", checkpointID, "error", err)
			return etl.ExitFatal
		}
		if src == "" {
			src = ec.FileSource
		}
	}

	// 5. Run the pipeline
	transformer := transform.New()
	if *mediaDir != "" {
		transformer.Downloader = media.NewHTTPDownloader(*mediaDir, slog.Default())
	}
	pipeline := etl.NewPipeline(ec,
		extract.New(),
		transformer,
		load.New(pool),
	)
	result := pipeline.Run(ctx, src, *displayName)

	if result.Success {
		slog.Info("Pipeline complete",
			"export_id", result.ExportID,
			"warnings", len(result.Warnings))
	} else {
		slog.Error("Pipeline failed",
			"phase", result.Phase,
			"kind", result.ErrorKind,
			"error", result.ErrorMessage)
	}
	if ctx.Err() != nil && !result.Success {
		return etl.ExitCancelled
	}
	return result.ExitCode()
}
