package graphstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
	"github.com/datapilot-ai/memory-engine/pkg/models"
)

func testEntity(typeTag, naturalKey, factText string) *models.GenericEntity {
	return &models.GenericEntity{
		TypeTag:    typeTag,
		NaturalKey: naturalKey,
		GroupScope: "tenant-a",
		Attributes: map[string]any{"name": naturalKey},
		FactText:   factText,
	}
}

func TestMemoryStoreUpsertPreservesIdentity(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	first, err := store.UpsertEntity(ctx, testEntity(models.NodeTypeTable, "sales.orders", "Table sales.orders"))
	require.NoError(t, err)

	updated := testEntity(models.NodeTypeTable, "sales.orders", "Table sales.orders: customer orders")
	second, err := store.UpsertEntity(ctx, updated)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	got, err := store.GetByNaturalKey(ctx, models.NodeTypeTable, "sales.orders", "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "Table sales.orders: customer orders", got.FactText)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemoryStoreGetByNaturalKeyNotFound(t *testing.T) {
	store := NewMemoryStore(nil)

	_, err := store.GetByNaturalKey(context.Background(), models.NodeTypeTable, "nowhere.nothing", "tenant-a")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStoreGetByNaturalKeyScoped(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := store.UpsertEntity(ctx, testEntity(models.NodeTypeTable, "sales.orders", "Table sales.orders"))
	require.NoError(t, err)

	// Another scope's row with the same natural key is invisible.
	_, err = store.GetByNaturalKey(ctx, models.NodeTypeTable, "sales.orders", "tenant-b")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := store.GetByNaturalKey(ctx, models.NodeTypeTable, "sales.orders", "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", got.GroupScope)
}

func TestMemoryStoreSimilaritySearch(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := store.UpsertEntity(ctx, testEntity(models.NodeTypeTable, "sales.orders", "Table sales.orders holds customer orders"))
	require.NoError(t, err)
	_, err = store.UpsertEntity(ctx, testEntity(models.NodeTypeTable, "hr.employees", "Table hr.employees holds staff records"))
	require.NoError(t, err)

	hits, err := store.SimilaritySearch(ctx, "customer orders", "tenant-a", models.TimeWindow{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, "sales.orders", hits[0].Entity.NaturalKey)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestMemoryStoreSimilaritySearchScopesGroups(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	other := testEntity(models.NodeTypeTable, "sales.orders", "Table sales.orders")
	other.GroupScope = "tenant-b"
	_, err := store.UpsertEntity(ctx, other)
	require.NoError(t, err)

	hits, err := store.SimilaritySearch(ctx, "orders", "tenant-a", models.TimeWindow{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryStoreSimilaritySearchBumpsUsage(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := store.UpsertEntity(ctx, testEntity(models.NodeTypeTable, "sales.orders", "Table sales.orders"))
	require.NoError(t, err)

	_, err = store.SimilaritySearch(ctx, "orders", "tenant-a", models.TimeWindow{}, 10)
	require.NoError(t, err)
	_, err = store.SimilaritySearch(ctx, "orders", "tenant-a", models.TimeWindow{}, 10)
	require.NoError(t, err)

	got, err := store.GetByNaturalKey(ctx, models.NodeTypeTable, "sales.orders", "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ReferenceCount)
	require.NotNil(t, got.LastReferenced)
}

func TestMemoryStoreSimilaritySearchTimeWindow(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	retired := testEntity(models.NodeTypeTable, "sales.orders_v1", "Table sales.orders_v1 retired ledger")
	until := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	retired.ValidUntil = &until
	_, err := store.UpsertEntity(ctx, retired)
	require.NoError(t, err)

	window := models.TimeWindow{Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	hits, err := store.SimilaritySearch(ctx, "retired ledger", "tenant-a", window, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = store.SimilaritySearch(ctx, "retired ledger", "tenant-a", models.TimeWindow{}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestMemoryStoreEpisodes(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return clock })

	correlation := uuid.New()
	_, err := store.AppendEpisode(ctx, &models.GenericEpisode{
		EpisodeType:   models.EpisodeTypeQuery,
		GroupScope:    "tenant-a",
		CorrelationID: correlation,
		Payload:       map[string]any{"question": "total revenue"},
		FactText:      `Question "total revenue" succeeded`,
	})
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	_, err = store.AppendEpisode(ctx, &models.GenericEpisode{
		EpisodeType: models.EpisodeTypeSchema,
		GroupScope:  "tenant-a",
		Payload:     map[string]any{"database": "sales"},
		FactText:    "Schema for database sales indexed",
	})
	require.NoError(t, err)

	// Type filter.
	episodes, err := store.QueryEpisodes(ctx, EpisodeFilter{EpisodeType: models.EpisodeTypeQuery}, models.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, correlation, episodes[0].CorrelationID)

	// Correlation filter.
	episodes, err = store.QueryEpisodes(ctx, EpisodeFilter{CorrelationID: correlation}, models.TimeWindow{})
	require.NoError(t, err)
	assert.Len(t, episodes, 1)

	// Newest first.
	episodes, err = store.QueryEpisodes(ctx, EpisodeFilter{}, models.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.Equal(t, models.EpisodeTypeSchema, episodes[0].EpisodeType)

	// Windowless episodes are valid at creation time.
	window := models.TimeWindow{End: clock.Add(-30 * time.Second)}
	episodes, err = store.QueryEpisodes(ctx, EpisodeFilter{}, window)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, models.EpisodeTypeQuery, episodes[0].EpisodeType)
}

func TestMemoryStoreUnavailable(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	store.SetUnavailable(true)

	_, err := store.UpsertEntity(ctx, testEntity(models.NodeTypeTable, "sales.orders", "Table sales.orders"))
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)

	_, err = store.SimilaritySearch(ctx, "orders", "tenant-a", models.TimeWindow{}, 10)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)

	assert.ErrorIs(t, store.Ping(ctx), apperrors.ErrStoreUnavailable)

	store.SetUnavailable(false)
	assert.NoError(t, store.Ping(ctx))
}

func TestMemoryStoreCounts(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := store.UpsertEntity(ctx, testEntity(models.NodeTypeTable, "sales.orders", "Table sales.orders"))
	require.NoError(t, err)
	_, err = store.UpsertEntity(ctx, testEntity(models.NodeTypeColumn, "sales.orders.id", "Column sales.orders.id"))
	require.NoError(t, err)
	_, err = store.UpsertEdge(ctx, &models.GenericEdge{
		TypeTag:    models.EdgeTypeHasColumn,
		NaturalKey: "has_column(sales.orders->sales.orders.id)",
		GroupScope: "tenant-a",
		FromKey:    "sales.orders",
		ToKey:      "sales.orders.id",
		FactText:   "Table sales.orders has column id at position 1",
	})
	require.NoError(t, err)

	counts, err := store.Counts(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Nodes[models.NodeTypeTable])
	assert.Equal(t, int64(1), counts.Nodes[models.NodeTypeColumn])
	assert.Equal(t, int64(1), counts.Edges[models.EdgeTypeHasColumn])

	counts, err = store.Counts(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Empty(t, counts.Nodes)
}
