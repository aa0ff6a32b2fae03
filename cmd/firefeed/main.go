package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"firefeed/pipeline/internal/config"
	"firefeed/pipeline/internal/database"
	"firefeed/pipeline/internal/dedup"
	"firefeed/pipeline/internal/feed"
	"firefeed/pipeline/internal/importer"
	"firefeed/pipeline/internal/ml"
	"firefeed/pipeline/internal/ops"
	"firefeed/pipeline/internal/pipeline"
	"firefeed/pipeline/internal/storage"
	"firefeed/pipeline/internal/translate"
)

const (
	backfillSchedule = "@every 30m"
	cleanupSchedule  = "@every 1h"

	queueStopGrace = 30 * time.Second
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func main() {
	cfg := config.DefaultConfig()

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importCmd.StringVar(&cfg.FeedsCSVPath, "catalog", config.GetEnvString("FIREFEED_CATALOG_PATH", config.DefaultFeedsCSVPath),
		"Path to the feed catalog file, CSV or YAML (env: FIREFEED_CATALOG_PATH)")
	importCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("FIREFEED_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: FIREFEED_DB_PATH)")

	var importLogLevelStr string
	importCmd.StringVar(&importLogLevelStr, "log-level", config.GetEnvString("FIREFEED_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: FIREFEED_LOG_LEVEL)")

	startCmd := flag.NewFlagSet("start", flag.ExitOnError)
	startCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("FIREFEED_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: FIREFEED_DB_PATH)")

	var startLogLevelStr string
	startCmd.StringVar(&startLogLevelStr, "log-level", config.GetEnvString("FIREFEED_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: FIREFEED_LOG_LEVEL)")

	var intervalMinutes int
	startCmd.IntVar(&intervalMinutes, "interval", config.GetEnvInt("FIREFEED_INTERVAL", config.DefaultInterval),
		"Interval in minutes between processing cycles, 0 for one-shot mode (env: FIREFEED_INTERVAL)")

	startCmd.IntVar(&cfg.RetentionDays, "retention", config.GetEnvInt("FIREFEED_RETENTION_DAYS", config.DefaultRetentionDays),
		"Number of days to retain news items (env: FIREFEED_RETENTION_DAYS)")

	startCmd.BoolVar(&cfg.TranslationEnabled, "translate", config.GetEnvBool("FIREFEED_TRANSLATION_ENABLED", config.DefaultTranslationEnabled),
		"Enable the translation pipeline (env: FIREFEED_TRANSLATION_ENABLED)")

	startCmd.IntVar(&cfg.WorkerCount, "workers", config.GetEnvInt("FIREFEED_WORKER_COUNT", config.DefaultWorkerCount),
		"Number of feeds processed concurrently, 0 for the CPU count (env: FIREFEED_WORKER_COUNT)")

	backfillCmd := flag.NewFlagSet("backfill", flag.ExitOnError)
	backfillCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("FIREFEED_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: FIREFEED_DB_PATH)")

	var backfillLogLevelStr string
	backfillCmd.StringVar(&backfillLogLevelStr, "log-level", config.GetEnvString("FIREFEED_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: FIREFEED_LOG_LEVEL)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		importCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, importLogLevelStr)

		if err := runImport(cfg); err != nil {
			log.Error().Err(err).Msg("Import failed")
			os.Exit(1)
		}

	case "start":
		startCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, startLogLevelStr)
		cfg.Interval = time.Duration(intervalMinutes) * time.Minute

		if err := runStart(cfg); err != nil {
			log.Error().Err(err).Msg("Pipeline failed")
			os.Exit(1)
		}

	case "backfill":
		backfillCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, backfillLogLevelStr)

		if err := runBackfill(cfg); err != nil {
			log.Error().Err(err).Msg("Backfill failed")
			os.Exit(1)
		}

	case "-h", "--help", "help":
		printUsage()
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: firefeed [command] [options]")
	fmt.Println("Commands: import, start, backfill")
	fmt.Println("\nFor command-specific options, use: firefeed [command] -h")
}

func applyLogLevel(cfg *config.Config, levelStr string) {
	if level, err := zerolog.ParseLevel(levelStr); err == nil {
		cfg.LogLevel = level
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
}

// runImport imports the feed catalog into a fresh database.
// It will prompt for confirmation before deleting an existing database.
func runImport(cfg *config.Config) error {
	if _, err := os.Stat(cfg.DBPath); err == nil {
		fmt.Printf("Database %s already exists. All data will be lost as updates are not currently supported.\n", cfg.DBPath)
		fmt.Print("Delete and recreate? (y/N): ")

		var answer string
		fmt.Scanln(&answer)

		if strings.ToLower(answer) != "y" {
			log.Info().Msg("Operation canceled by user")
			return fmt.Errorf("operation canceled by user")
		}

		if err := database.DeleteDB(cfg.DBPath); err != nil {
			return fmt.Errorf("failed to delete existing database: %w", err)
		}
		log.Info().Str("path", cfg.DBPath).Msg("Deleted existing database")
	}

	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	imp := importer.NewImporter(storage.NewRepository(db))
	return imp.ImportFeeds(context.Background(), cfg.FeedsCSVPath)
}

// runStart runs the ingestion pipeline either once or on a schedule.
func runStart(cfg *config.Config) error {
	if cfg.Interval <= 0 {
		log.Info().Msg("Running in one-shot mode")
	} else {
		log.Info().Dur("interval", cfg.Interval).Msg("Running in periodic mode")
	}

	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	repo := storage.NewRepository(db)
	embedder := ml.NewClient(cfg.EmbeddingURL, config.GetEnvString("FIREFEED_EMBEDDING_API_KEY", ""))
	detector := dedup.NewDetector(repo, embedder)

	validator := feed.NewValidator(cfg.ValidatorCacheTTL, cfg.UserAgent)
	fetcher := feed.NewFetcher(cfg.MaxConcurrentFetches, cfg.UserAgent)
	admission := pipeline.NewAdmissionController(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		queue        *translate.Queue
		modelManager *translate.ModelManager
	)
	if cfg.TranslationEnabled {
		translator := ml.NewClient(cfg.TranslationURL, config.GetEnvString("FIREFEED_TRANSLATION_API_KEY", ""))
		modelManager = translate.NewModelManager(translator, cfg.MaxCachedModels, cfg.ModelCleanupInterval)
		defer modelManager.Close()

		queue = translate.NewQueue(translate.NewService(translator, modelManager), cfg.TranslationWorkers, cfg.TranslationQueueSize)
		queue.Start(ctx)
		defer queue.Stop(queueStopGrace)

		go modelManager.PreloadPopular(ctx)
	}

	coordinator := pipeline.NewCoordinator(repo, validator, fetcher, admission, detector, queue, pipeline.Options{
		TranslationEnabled: cfg.TranslationEnabled,
		TargetLanguages:    cfg.TargetLanguages,
		Workers:            cfg.WorkerCount,
	})

	var opsErr <-chan error
	if cfg.OpsAddr != "" {
		opsServer := ops.NewServer(cfg.OpsAddr, log.Logger, coordinator, queue, modelManager)
		opsErr = opsServer.Start(log.Logger)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := opsServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Ops server shutdown error")
			}
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-shutdown:
			log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := runProcessingCycle(ctx, coordinator, repo, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Processing cycle canceled by shutdown signal")
			return nil
		}
		return err
	}

	if cfg.Interval <= 0 {
		log.Info().Msg("One-shot processing completed, exiting")
		return nil
	}

	backfiller := dedup.NewBackfiller(repo, embedder, 0)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.Interval), func() {
		if err := runProcessingCycle(ctx, coordinator, repo, cfg); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Processing cycle failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule processing cycle: %w", err)
	}
	if _, err := scheduler.AddFunc(backfillSchedule, func() {
		if _, _, err := backfiller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Embedding backfill failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule backfill: %w", err)
	}
	if _, err := scheduler.AddFunc(cleanupSchedule, func() {
		if _, err := repo.CleanupDuplicates(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Duplicate cleanup failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	scheduler.Start()

	log.Info().
		Dur("interval", cfg.Interval).
		Time("next_run", time.Now().Add(cfg.Interval)).
		Msg("Waiting for next processing cycle")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down periodic processing")
	case err := <-opsErr:
		if err != nil {
			log.Error().Err(err).Msg("Ops server failed")
			cancel()
			stopCtx := scheduler.Stop()
			<-stopCtx.Done()
			return err
		}
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	return nil
}

// runProcessingCycle executes one full cycle followed by retention purging.
func runProcessingCycle(ctx context.Context, coordinator *pipeline.Coordinator, repo *storage.Repository, cfg *config.Config) error {
	cycleCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	startTime := time.Now()
	summary, err := coordinator.ProcessAllFeeds(cycleCtx)
	if err != nil {
		return fmt.Errorf("processing error: %w", err)
	}

	log.Info().
		Int("total_feeds", summary.TotalFeeds).
		Int("processed_feeds", summary.ProcessedFeeds).
		Int("total_items", summary.TotalItems).
		Dur("duration", time.Since(startTime)).
		Msg("Processing stats")

	// Run purging as part of the processing cycle
	purgeCtx, purgeCancel := context.WithTimeout(ctx, 5*time.Minute)
	defer purgeCancel()

	purged, purgeErr := repo.PurgeOldItems(purgeCtx, cfg.RetentionDays)
	if purgeErr != nil {
		log.Error().Err(purgeErr).Msg("Failed to purge old items")
	} else if purged == 0 {
		log.Debug().Msg("No old items needed purging")
	}

	return nil
}

// runBackfill computes embeddings for stored items missing one, batch by
// batch, until none remain.
func runBackfill(cfg *config.Config) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	repo := storage.NewRepository(db)
	embedder := ml.NewClient(cfg.EmbeddingURL, config.GetEnvString("FIREFEED_EMBEDDING_API_KEY", ""))
	backfiller := dedup.NewBackfiller(repo, embedder, 0)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var totalSucceeded, totalFailed int
	for {
		succeeded, failed, err := backfiller.Run(ctx)
		if err != nil {
			return err
		}
		totalSucceeded += succeeded
		totalFailed += failed
		// Stop once a batch makes no progress; persistently failing
		// items would otherwise loop forever.
		if succeeded == 0 {
			break
		}
	}

	log.Info().
		Int("succeeded", totalSucceeded).
		Int("failed", totalFailed).
		Msg("Backfill completed")
	return nil
}
