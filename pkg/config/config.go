package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/datapilot-ai/memory-engine/pkg/models"
)

// Config holds all configuration for the memory engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// GroupScope is the default tenancy scope indexed and searched.
	GroupScope string `yaml:"group_scope" env:"GROUP_SCOPE" env-default:"default"`

	// Database configuration (PostgreSQL). Leave Host empty to run on the
	// in-process store, which keeps nothing across restarts.
	Database DatabaseConfig `yaml:"database"`

	// Embedding endpoint configuration.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Search and reranking configuration.
	Search SearchConfig `yaml:"search"`

	// MigrationsPath is the directory holding SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:""`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"memory"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"memory_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// Enabled reports whether a PostgreSQL store is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// EmbeddingConfig holds the embedding endpoint settings. When APIKey is
// empty the engine falls back to deterministic local embeddings, which
// keeps development and tests free of network calls.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url" env:"EMBEDDING_BASE_URL" env-default:""`
	Model      string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey     string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
	Dimensions int    `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS" env-default:"256"`
}

// SearchConfig tunes retrieval and reranking.
type SearchConfig struct {
	TopK                int     `yaml:"top_k" env:"SEARCH_TOP_K" env-default:"10"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SEARCH_SIMILARITY_THRESHOLD" env-default:"0.3"`

	WeightSimilarity float64 `yaml:"weight_similarity" env:"SEARCH_WEIGHT_SIMILARITY" env-default:"0.5"`
	WeightRecency    float64 `yaml:"weight_recency" env:"SEARCH_WEIGHT_RECENCY" env-default:"0.2"`
	WeightFrequency  float64 `yaml:"weight_frequency" env:"SEARCH_WEIGHT_FREQUENCY" env-default:"0.15"`
	WeightConfidence float64 `yaml:"weight_confidence" env:"SEARCH_WEIGHT_CONFIDENCE" env-default:"0.15"`

	RecencyHalfLifeHours int   `yaml:"recency_half_life_hours" env:"SEARCH_RECENCY_HALF_LIFE_HOURS" env-default:"168"`
	FrequencyCap         int64 `yaml:"frequency_cap" env:"SEARCH_FREQUENCY_CAP" env-default:"100"`

	// CorrelationWindowMinutes bounds how far back feedback may match a
	// query episode by question text.
	CorrelationWindowMinutes int `yaml:"correlation_window_minutes" env:"SEARCH_CORRELATION_WINDOW_MINUTES" env-default:"60"`
}

// Weights returns the configured reranking blend.
func (c *SearchConfig) Weights() models.SearchWeights {
	return models.SearchWeights{
		Similarity: c.WeightSimilarity,
		Recency:    c.WeightRecency,
		Frequency:  c.WeightFrequency,
		Confidence: c.WeightConfidence,
	}
}

// RecencyHalfLife returns the recency decay half-life as a duration.
func (c *SearchConfig) RecencyHalfLife() time.Duration {
	return time.Duration(c.RecencyHalfLifeHours) * time.Hour
}

// CorrelationWindow returns the feedback correlation window as a duration.
func (c *SearchConfig) CorrelationWindow() time.Duration {
	return time.Duration(c.CorrelationWindowMinutes) * time.Minute
}

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is fine; the engine then runs on
// environment variables and defaults alone. Secrets (PGPASSWORD,
// EMBEDDING_API_KEY) must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.GroupScope == "" {
		return fmt.Errorf("group_scope must not be empty")
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive")
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("search.similarity_threshold must be within [0,1]")
	}
	for name, w := range map[string]float64{
		"weight_similarity": c.Search.WeightSimilarity,
		"weight_recency":    c.Search.WeightRecency,
		"weight_frequency":  c.Search.WeightFrequency,
		"weight_confidence": c.Search.WeightConfidence,
	} {
		if w < 0 {
			return fmt.Errorf("search.%s must not be negative", name)
		}
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	return nil
}
