package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/datapilot-ai/memory-engine/pkg/config"
	"github.com/datapilot-ai/memory-engine/pkg/graphstore"
	"github.com/datapilot-ai/memory-engine/pkg/logging"
	"github.com/datapilot-ai/memory-engine/pkg/memory"
	"github.com/datapilot-ai/memory-engine/pkg/models"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	schemasDir := flag.String("schemas", "", "Directory of schema YAML documents to ingest")
	database := flag.String("database", "", "Default database name for ingested schema documents")
	skipExisting := flag.Bool("skip-existing", false, "Skip schema documents whose table is already indexed")
	question := flag.String("query", "", "Natural-language question to search the memory with")
	flag.Parse()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("group_scope", cfg.GroupScope),
		zap.Bool("postgres", cfg.Database.Enabled()))

	ctx := context.Background()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.String("error", logging.SanitizeError(err)))
	}

	manager := memory.NewManager(store, cfg.GroupScope, memory.Options{
		Weights:           cfg.Search.Weights(),
		RecencyHalfLife:   cfg.Search.RecencyHalfLife(),
		FrequencyCap:      cfg.Search.FrequencyCap,
		CorrelationWindow: cfg.Search.CorrelationWindow(),
	}, logger)

	if err := manager.InitializeStore(ctx); err != nil {
		logger.Fatal("Store not ready", zap.String("error", logging.SanitizeError(err)))
	}

	if *schemasDir != "" {
		report, err := manager.Schemas().IndexDirectory(ctx, *schemasDir, *database, *skipExisting)
		if err != nil {
			logger.Fatal("Schema ingestion failed", zap.Error(err))
		}
		logger.Info("Schema ingestion finished",
			zap.Int("tables", report.Tables),
			zap.Int("columns", report.Columns),
			zap.Int("entities", report.Entities),
			zap.Int("edges", report.Edges),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed_docs", len(report.FailedDocs)),
			zap.Int("failed_items", len(report.FailedItems)))
	}

	if *question != "" {
		response, err := manager.Search(ctx, *question, nil, models.SearchOptions{
			TopK:                cfg.Search.TopK,
			SimilarityThreshold: cfg.Search.SimilarityThreshold,
		})
		if err != nil {
			logger.Fatal("Search failed", zap.Error(err))
		}
		out, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			logger.Fatal("Failed to encode search response", zap.Error(err))
		}
		fmt.Fprintln(os.Stdout, string(out))
	}

	stats, err := manager.GetStats(ctx)
	if err != nil {
		logger.Fatal("Failed to collect stats", zap.Error(err))
	}
	logger.Info("Memory stats",
		zap.Any("nodes", stats.Nodes),
		zap.Any("edges", stats.Edges),
		zap.Any("episodes", stats.Episodes),
		zap.Bool("store_connected", stats.StoreConnected))
}

func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (graphstore.Store, error) {
	embedder := buildEmbedder(cfg, logger)

	if !cfg.Database.Enabled() {
		logger.Info("Using in-process store; data will not survive restarts")
		return graphstore.NewMemoryStore(embedder), nil
	}

	connStr := cfg.Database.ConnectionString()
	if err := graphstore.RunMigrations(connStr, cfg.MigrationsPath, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := graphstore.Connect(ctx, connStr, cfg.Database.MaxConnections)
	if err != nil {
		return nil, err
	}
	return graphstore.NewPostgresStore(pool, embedder, logger), nil
}

func buildEmbedder(cfg *config.Config, logger *zap.Logger) graphstore.Embedder {
	if cfg.Embedding.APIKey != "" {
		return graphstore.NewOpenAIEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}
	logger.Info("No embedding API key set; using deterministic local embeddings")
	return graphstore.NewHashEmbedder(cfg.Embedding.Dimensions)
}
