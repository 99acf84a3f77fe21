package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/anderson/internal/api"
	"github.com/MikeSquared-Agency/anderson/internal/config"
	"github.com/MikeSquared-Agency/anderson/internal/events"
	"github.com/MikeSquared-Agency/anderson/internal/extract"
	"github.com/MikeSquared-Agency/anderson/internal/ingest"
	"github.com/MikeSquared-Agency/anderson/internal/model"
	"github.com/MikeSquared-Agency/anderson/internal/notion"
	"github.com/MikeSquared-Agency/anderson/internal/pipeline"
	"github.com/MikeSquared-Agency/anderson/internal/scheduler"
	"github.com/MikeSquared-Agency/anderson/internal/store"
	"github.com/MikeSquared-Agency/anderson/internal/watch"
)

func main() {
	mode := flag.String("mode", "serve", "serve | ingest | analyze | sync | stats")
	flag.Parse()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("anderson starting", "mode", *mode, "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready")

	state, err := ingest.LoadState()
	if err != nil {
		slog.Error("failed to load ingest state", "error", err)
		os.Exit(1)
	}
	dirs := []ingest.SourceDir{
		{Dir: cfg.CursorHistoryDir, Source: model.SourceCursor},
		{Dir: cfg.ClaudeExportDir, Source: model.SourceClaude},
	}
	ingester := ingest.New(db, dirs, cfg.MaxHistoryDays, state, slog.Default())
	analyzer := pipeline.New(db, extract.NewRunner(slog.Default()), nil, cfg.MinConfidence, slog.Default())
	notionClient := notion.NewClient(cfg.NotionToken, cfg.NotionParentPage, slog.Default())
	syncer := notion.NewSyncer(db, notionClient, cfg.NotionSyncDays, cfg.NotionSyncBatch, slog.Default())

	switch *mode {
	case "serve":
		runService(ctx, cancel, cfg, db, ingester, syncer)
	case "ingest":
		runOnce(ctx, func(ctx context.Context) (string, error) {
			res, err := ingester.Run(ctx)
			return res.String(), err
		})
	case "analyze":
		runOnce(ctx, func(ctx context.Context) (string, error) {
			res, err := analyzer.AnalyzeBatch(ctx, cfg.AnalysisBatchSize)
			return res.String(), err
		})
	case "sync":
		runOnce(ctx, syncer.Run)
	case "stats":
		printStats(ctx, db)
	default:
		slog.Error("unknown mode", "mode", *mode)
		os.Exit(1)
	}
}

// runService is the long-running mode: NATS, watcher, scheduler, HTTP API.
func runService(ctx context.Context, cancel context.CancelFunc, cfg config.Config, db *store.Store, ingester *ingest.Ingester, syncer *notion.Syncer) {
	eventsClient, err := events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventsClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	analyzer := pipeline.New(db, extract.NewRunner(slog.Default()), eventsClient, cfg.MinConfidence, slog.Default())

	// External ingest triggers.
	err = eventsClient.Subscribe(events.SubjectIngestTrigger, func(_ string, data []byte) {
		trig := events.ParseIngestTrigger(data, slog.Default())
		if trig.Path != "" {
			if _, err := ingester.IngestPath(ctx, trig.Path); err != nil {
				slog.Error("triggered ingest failed", "path", trig.Path, "error", err)
			}
			return
		}
		if _, err := ingester.Run(ctx); err != nil {
			slog.Error("triggered ingest failed", "error", err)
		}
	})
	if err != nil {
		slog.Error("failed to subscribe to ingest triggers", "error", err)
		os.Exit(1)
	}

	// Watcher: incremental ingest as history files settle.
	watcher := watch.New([]string{cfg.CursorHistoryDir, cfg.ClaudeExportDir}, cfg.WatchDebounce,
		func(path string) {
			if _, err := ingester.IngestPath(ctx, path); err != nil {
				slog.Error("watched ingest failed", "path", path, "error", err)
			}
		}, slog.Default())
	go func() {
		if err := watcher.Run(ctx); err != nil {
			slog.Error("watcher stopped", "error", err)
		}
	}()

	// Scheduled jobs.
	sched := scheduler.New(db, eventsClient, slog.Default())
	sched.Add(scheduler.Job{Name: "ingest", Every: cfg.AnalyzeEvery, Run: func(ctx context.Context) (string, error) {
		res, err := ingester.Run(ctx)
		return res.String(), err
	}})
	sched.Add(scheduler.Job{Name: "analyze", Every: cfg.AnalyzeEvery, Run: func(ctx context.Context) (string, error) {
		res, err := analyzer.AnalyzeBatch(ctx, cfg.AnalysisBatchSize)
		return res.String(), err
	}})
	if cfg.EnableReprocess {
		sched.Add(scheduler.Job{Name: "reprocess", Every: 24 * time.Hour, Run: func(ctx context.Context) (string, error) {
			cutoff := time.Now().AddDate(0, 0, -cfg.ReprocessDays)
			res, err := analyzer.ReprocessStale(ctx, cutoff, cfg.ReprocessBatch)
			return res.String(), err
		}})
	}
	sched.Add(scheduler.Job{Name: "notion-sync", Every: cfg.SyncEvery, Run: syncer.Run})
	if err := sched.Start(ctx); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// HTTP API.
	srv := api.NewServer(cfg.Port, db, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	if err := eventsClient.Publish("swarm.agent.anderson.registered", map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("anderson ready", "port", cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown error", "error", err)
	}
	slog.Info("anderson stopped")
}

// runOnce executes a single job and exits nonzero on failure.
func runOnce(ctx context.Context, job func(ctx context.Context) (string, error)) {
	detail, err := job(ctx)
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("run complete", "detail", detail)
}

func printStats(ctx context.Context, db *store.Store) {
	total, processed, err := db.ConversationCounts(ctx)
	if err != nil {
		slog.Error("failed to count conversations", "error", err)
		os.Exit(1)
	}
	stats, err := db.GetInsightStats(ctx, 0)
	if err != nil {
		slog.Error("failed to load insight stats", "error", err)
		os.Exit(1)
	}

	fmt.Printf("conversations: %d (%d processed)\n", total, processed)
	fmt.Printf("insights:      %d (avg confidence %.2f)\n", stats.Total, stats.AvgConfidence)
	for typ, n := range stats.ByType {
		fmt.Printf("  %-20s %d\n", typ, n)
	}
	for cat, n := range stats.ByCategory {
		fmt.Printf("  %-20s %d\n", cat, n)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
