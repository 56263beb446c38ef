// Package main provides the HTTP API server for RepoChat.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/repochat/repochat/internal/assistant"
	"github.com/repochat/repochat/internal/config"
	"github.com/repochat/repochat/internal/db"
	"github.com/repochat/repochat/internal/github"
	"github.com/repochat/repochat/internal/llm"
	"github.com/repochat/repochat/internal/metrics"
	"github.com/repochat/repochat/internal/server"
	"github.com/repochat/repochat/internal/service"
	"github.com/repochat/repochat/internal/splitter"
	"github.com/repochat/repochat/internal/vectorindex"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()
	if *configFile != "" {
		if err := cfg.ApplyFile(*configFile); err != nil {
			slog.Error("failed to apply config file", "error", err)
			os.Exit(1)
		}
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("starting repochat-server", "port", cfg.ServerPort)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("REPOCHAT_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}
	cancel()
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	collector := metrics.NewCollector()

	model, err := llm.NewModel(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize model", "error", err)
		os.Exit(1)
	}
	model.Instrument(collector)
	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		logger.Error("failed to initialize embedder", "error", err)
		os.Exit(1)
	}
	embedder.Instrument(collector)

	chunker, err := splitter.New(
		splitter.Config{ChunkSize: cfg.CodeChunkSize, ChunkOverlap: cfg.CodeChunkOverlap},
		splitter.Config{ChunkSize: cfg.TextChunkSize, ChunkOverlap: cfg.TextChunkOverlap},
	)
	if err != nil {
		logger.Error("invalid splitter configuration", "error", err)
		os.Exit(1)
	}

	fetcher := github.NewClient("", cfg.GitHubToken, logger)
	index := vectorindex.New(embedder, dbClient, vectorindex.Config{
		BatchSize:  cfg.IndexBatchSize,
		MaxRetries: cfg.IndexMaxRetries,
		Metrics:    collector,
	}, logger)

	ingest := service.NewIngestService(dbClient, fetcher, chunker, index,
		service.IngestOptions{Concurrency: cfg.IngestConcurrency, Metrics: collector}, logger)
	conversation := service.NewConversationService(dbClient, assistant.NewEngine(model, logger), index,
		service.ConversationOptions{
			TopK:            cfg.TopK,
			MaxActionCycles: cfg.MaxRequiresActionCycles,
		}, logger)

	srv := server.New(":"+cfg.ServerPort, dbClient, ingest, conversation, collector, logger)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
