package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/report-sentinel/internal/audit"
	"github.com/raaihank/report-sentinel/internal/config"
	"github.com/raaihank/report-sentinel/internal/etl"
	"github.com/raaihank/report-sentinel/internal/guard"
	"github.com/raaihank/report-sentinel/internal/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Configuration file path")
		inputFile   = flag.String("input", "", "Dataset of original/candidate pairs (CSV, JSON lines, or Parquet)")
		outputFile  = flag.String("output", "replay.parquet", "Parquet file for replay results")
		batchSize   = flag.Int("batch-size", 1000, "Batch size for processing")
		workers     = flag.Int("workers", 4, "Number of worker goroutines")
		exportAudit = flag.String("export-audit", "", "Export the Postgres audit trail to this Parquet file")
		since       = flag.Duration("since", 0, "With -export-audit, only export records newer than this (e.g. 24h)")
		limit       = flag.Int("limit", 10000, "With -export-audit and no -since, export the most recent records")
	)
	flag.Parse()

	if *inputFile == "" && *exportAudit == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -input pairs.csv -output replay.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -input pairs.parquet -workers 8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -export-audit audit.parquet -since 24h\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.FromConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *exportAudit != "":
		if err := exportAuditTrail(ctx, cfg, *exportAudit, *since, *limit, log); err != nil {
			log.Fatal("Audit export failed", zap.Error(err))
		}
	default:
		etlConfig := &etl.Config{
			BatchSize:      *batchSize,
			WorkerCount:    *workers,
			MaxTextLength:  cfg.Pipeline.MaxTextLength,
			ProgressReport: 10000,
		}
		if err := replayDataset(ctx, cfg, etlConfig, *inputFile, *outputFile, log); err != nil {
			log.Fatal("Guard replay failed", zap.Error(err))
		}
	}
}

// replayDataset runs the configured guard vocabulary over a dataset
func replayDataset(ctx context.Context, cfg *config.Config, etlConfig *etl.Config, inputFile, outputFile string, log *logger.Logger) error {
	if _, err := os.Stat(inputFile); err != nil {
		return fmt.Errorf("input file: %w", err)
	}

	vocabulary, err := guard.VocabularyFromConfig(cfg.Guard)
	if err != nil {
		return err
	}
	engine, err := guard.NewEngine(vocabulary)
	if err != nil {
		return err
	}

	pipeline := etl.NewPipeline(engine, etlConfig, log.Logger)
	result, err := pipeline.ProcessFile(ctx, inputFile, outputFile)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	fmt.Printf("\n=== Guard Replay ===\n")
	fmt.Printf("Records:   %d\n", result.TotalRecords)
	fmt.Printf("Accepted:  %d\n", result.Accepted)
	fmt.Printf("Blocked:   %d\n", result.Blocked)
	fmt.Printf("Invalid:   %d\n", result.Invalid)
	for reason, n := range result.ByReason {
		fmt.Printf("  %6d  %s\n", n, reason)
	}
	fmt.Printf("Duration:  %v\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Results:   %s\n", outputFile)

	return nil
}

// exportAuditTrail writes audit records from Postgres to a Parquet file.
// The in-memory backend does not outlive the server, so it cannot be
// exported from here.
func exportAuditTrail(ctx context.Context, cfg *config.Config, outputFile string, since time.Duration, limit int, log *logger.Logger) error {
	if cfg.Audit.Backend != "postgres" {
		return fmt.Errorf("audit export requires the postgres backend, configured: %s", cfg.Audit.Backend)
	}

	store, err := audit.NewPostgresStore(cfg.Audit, log.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var records []audit.Record
	if since > 0 {
		records, err = store.Since(ctx, time.Now().Add(-since))
	} else {
		records, err = store.Recent(ctx, limit)
	}
	if err != nil {
		return fmt.Errorf("failed to query audit trail: %w", err)
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	if err := audit.WriteParquet(out, records); err != nil {
		return err
	}

	log.Info("Audit trail exported",
		zap.Int("records", len(records)),
		zap.String("output", outputFile))
	return nil
}
