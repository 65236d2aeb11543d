package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// No config.yaml in the test working directory; everything comes from
	// defaults and environment.
	cfg, err := Load("test-version")
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "default", cfg.GroupScope)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 0.3, cfg.Search.SimilarityThreshold)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("GROUP_SCOPE", "tenant-42")
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPASSWORD", "hunter2")
	t.Setenv("SEARCH_TOP_K", "25")

	cfg, err := Load("dev")
	require.NoError(t, err)

	assert.Equal(t, "tenant-42", cfg.GroupScope)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, 25, cfg.Search.TopK)
	assert.Contains(t, cfg.Database.ConnectionString(), "host=db.internal")
	assert.Contains(t, cfg.Database.ConnectionString(), "password=hunter2")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "empty group scope", key: "GROUP_SCOPE", value: ""},
		{name: "zero top k", key: "SEARCH_TOP_K", value: "0"},
		{name: "threshold above one", key: "SEARCH_SIMILARITY_THRESHOLD", value: "1.5"},
		{name: "negative weight", key: "SEARCH_WEIGHT_RECENCY", value: "-0.2"},
		{name: "zero dimensions", key: "EMBEDDING_DIMENSIONS", value: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("dev")
			assert.Error(t, err)
		})
	}
}

func TestSearchConfigConversions(t *testing.T) {
	cfg := SearchConfig{
		WeightSimilarity:         0.4,
		WeightRecency:            0.3,
		WeightFrequency:          0.2,
		WeightConfidence:         0.1,
		RecencyHalfLifeHours:     48,
		CorrelationWindowMinutes: 15,
	}

	weights := cfg.Weights()
	assert.Equal(t, 0.4, weights.Similarity)
	assert.Equal(t, 0.3, weights.Recency)
	assert.Equal(t, 48*time.Hour, cfg.RecencyHalfLife())
	assert.Equal(t, 15*time.Minute, cfg.CorrelationWindow())
}
