package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/insuredocs/docquery/internal/cache"
	"github.com/insuredocs/docquery/internal/config"
	"github.com/insuredocs/docquery/internal/database"
	"github.com/insuredocs/docquery/internal/document"
	"github.com/insuredocs/docquery/internal/embedding"
	"github.com/insuredocs/docquery/internal/extractor"
	"github.com/insuredocs/docquery/internal/indexstore"
	"github.com/insuredocs/docquery/internal/jobs"
	"github.com/insuredocs/docquery/internal/llm"
	"github.com/insuredocs/docquery/internal/pipeline"
	"github.com/insuredocs/docquery/internal/segmenter"
	"github.com/insuredocs/docquery/internal/storage"
	"github.com/insuredocs/docquery/internal/structured"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, progress fanout degraded", "error", err)
	}
	defer rdb.Close()

	bus := cache.NewProgressBus(rdb)
	queue := jobs.NewPostgresStore(db, bus, cfg.Pipeline.MaxRetries)
	blobs := storage.NewHTTPStore(cfg.Storage.BaseURL, cfg.Storage.ServiceKey, cfg.Storage.Bucket)
	index := indexstore.NewPgVectorStore(db)
	docSvc := document.NewService(db, blobs, queue, index)

	gateway := llm.NewGateway(cfg.LLM)
	embedder := embedding.NewService(gateway, cfg.LLM.EmbeddingModel, cfg.Retrieval.SchemaVersion)
	seg := segmenter.New(segmenter.Options{
		TargetTokens:  cfg.Segmenter.TargetTokens,
		OverlapTokens: cfg.Segmenter.OverlapTokens,
		MinTokens:     cfg.Segmenter.MinTokens,
	})
	extract := extractor.NewFallback(extractor.NewClient(cfg.Extractor))

	var structuredExtractor *structured.Extractor
	if cfg.Pipeline.ClassifyEnabled || cfg.Pipeline.StructuredEnabled {
		structuredExtractor = structured.NewExtractor(gateway, cfg.LLM.DefaultModel, cfg.Pipeline.StructuredSchema)
	}

	worker := pipeline.NewWorker(queue, docSvc, blobs, extract, seg, embedder, index, structuredExtractor, cfg.Pipeline)

	janitor := jobs.NewJanitor(queue, cfg.Pipeline.StaleAfter)
	if err := janitor.Start(cfg.Pipeline.SweepSchedule); err != nil {
		slog.Error("janitor start failed", "error", err)
		os.Exit(1)
	}
	defer janitor.Stop()

	slog.Info("starting worker pool", "workers", cfg.Pipeline.Workers)
	worker.Run(ctx)
	slog.Info("worker stopped")
}
