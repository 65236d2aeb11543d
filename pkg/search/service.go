package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/datapilot-ai/memory-engine/pkg/graphstore"
	"github.com/datapilot-ai/memory-engine/pkg/models"
)

const (
	defaultTopK = 10

	// oversampleFactor fetches extra raw candidates so threshold filtering
	// and table grouping still leave topK results.
	oversampleFactor = 3
)

// Service executes hybrid similarity queries against the fact strings in
// the store, scoped to a group and a time validity window. Read-only;
// concurrent searches are safe.
type Service interface {
	Search(ctx context.Context, queryText string, opts models.SearchOptions) ([]models.ScoredCandidate, error)
}

type service struct {
	store  graphstore.Store
	logger *zap.Logger
}

// NewService creates a semantic search service.
func NewService(store graphstore.Store, logger *zap.Logger) Service {
	return &service{
		store:  store,
		logger: logger.Named("search"),
	}
}

var _ Service = (*service)(nil)

// Search returns scored raw candidates above the similarity threshold,
// truncated to TopK. No results is an empty slice, not an error; errors
// surface only on store failure.
func (s *service) Search(ctx context.Context, queryText string, opts models.SearchOptions) ([]models.ScoredCandidate, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	hits, err := s.store.SimilaritySearch(ctx, queryText, opts.GroupScope, opts.TimeWindow, topK*oversampleFactor)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	candidates := make([]models.ScoredCandidate, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < opts.SimilarityThreshold {
			continue
		}
		candidate, err := decodeHit(hit)
		if err != nil {
			// Entities written by a newer schema version than this binary
			// understands are skipped, not fatal.
			s.logger.Warn("Skipping undecodable search hit", zap.Error(err))
			continue
		}
		candidates = append(candidates, candidate)
		if len(candidates) == topK {
			break
		}
	}

	s.logger.Debug("Search completed",
		zap.String("group_scope", opts.GroupScope),
		zap.Int("raw_hits", len(hits)),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

func decodeHit(hit models.SimilarityHit) (models.ScoredCandidate, error) {
	switch {
	case hit.Entity != nil:
		node, err := models.DecodeNode(hit.Entity)
		if err != nil {
			return models.ScoredCandidate{}, err
		}
		c := models.ScoredCandidate{
			Node:           node,
			TypeTag:        hit.Entity.TypeTag,
			NaturalKey:     hit.Entity.NaturalKey,
			FactText:       hit.Entity.FactText,
			Similarity:     hit.Score,
			Confidence:     confidenceOf(hit.Entity.Attributes),
			ReferenceCount: hit.Entity.ReferenceCount,
			CreatedAt:      hit.Entity.CreatedAt,
		}
		if hit.Entity.LastReferenced != nil {
			c.LastReferenced = *hit.Entity.LastReferenced
		} else {
			c.LastReferenced = hit.Entity.UpdatedAt
		}
		return c, nil
	case hit.Edge != nil:
		edge, err := models.DecodeEdge(hit.Edge)
		if err != nil {
			return models.ScoredCandidate{}, err
		}
		c := models.ScoredCandidate{
			Edge:           edge,
			TypeTag:        hit.Edge.TypeTag,
			NaturalKey:     hit.Edge.NaturalKey,
			FactText:       hit.Edge.FactText,
			Similarity:     hit.Score,
			Confidence:     confidenceOf(hit.Edge.Attributes),
			ReferenceCount: hit.Edge.ReferenceCount,
			CreatedAt:      hit.Edge.CreatedAt,
		}
		if hit.Edge.LastReferenced != nil {
			c.LastReferenced = *hit.Edge.LastReferenced
		} else {
			c.LastReferenced = hit.Edge.UpdatedAt
		}
		return c, nil
	default:
		return models.ScoredCandidate{}, fmt.Errorf("similarity hit carries neither entity nor edge")
	}
}

// confidenceOf reads the confidence attribute, defaulting to full
// confidence when the variant has none.
func confidenceOf(attributes map[string]any) float64 {
	if attributes == nil {
		return 1.0
	}
	switch v := attributes["confidence"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 1.0
}
