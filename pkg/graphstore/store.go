package graphstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/datapilot-ai/memory-engine/pkg/models"
)

// EpisodeFilter narrows an episode query. Zero-value fields are ignored.
type EpisodeFilter struct {
	EpisodeType   string
	GroupScope    string
	CorrelationID uuid.UUID
	Limit         int
}

// Store is the graph/vector store capability the engine requires. The
// engine is the only writer; deletion is an administrative operation done
// outside this contract.
//
// Upserts key on (type tag, natural key, group scope) and replace the
// stored attributes and fact text; read-merge-write is the indexer's job,
// and concurrent writers to the same key degrade to last-write-wins.
// SimilaritySearch matches fact texts within a group scope and a
// validity window, most similar first, and bumps usage counters on the
// returned rows.
type Store interface {
	UpsertEntity(ctx context.Context, entity *models.GenericEntity) (uuid.UUID, error)
	UpsertEdge(ctx context.Context, edge *models.GenericEdge) (uuid.UUID, error)
	GetByNaturalKey(ctx context.Context, typeTag, naturalKey, groupScope string) (*models.GenericEntity, error)
	GetEdgeByNaturalKey(ctx context.Context, typeTag, naturalKey, groupScope string) (*models.GenericEdge, error)
	SimilaritySearch(ctx context.Context, queryText, groupScope string, window models.TimeWindow, limit int) ([]models.SimilarityHit, error)
	AppendEpisode(ctx context.Context, episode *models.GenericEpisode) (uuid.UUID, error)
	QueryEpisodes(ctx context.Context, filter EpisodeFilter, window models.TimeWindow) ([]*models.GenericEpisode, error)
	Counts(ctx context.Context, groupScope string) (models.StoreCounts, error)
	Ping(ctx context.Context) error
}
