package graphstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
	"github.com/datapilot-ai/memory-engine/pkg/models"
)

// MemoryStore is an in-process Store used for local mode and tests. It
// mirrors the Postgres store's semantics: replace-on-upsert keyed by
// (type tag, natural key, group scope), cosine similarity over embedded
// fact texts, usage counters bumped on similarity hits.
type MemoryStore struct {
	mu       sync.RWMutex
	embedder Embedder

	entities   map[string]*models.GenericEntity
	edges      map[string]*models.GenericEdge
	vectors    map[string][]float32
	episodes   []*models.GenericEpisode
	now        func() time.Time
	downReason error
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(embedder Embedder) *MemoryStore {
	if embedder == nil {
		embedder = NewHashEmbedder(256)
	}
	return &MemoryStore{
		embedder: embedder,
		entities: make(map[string]*models.GenericEntity),
		edges:    make(map[string]*models.GenericEdge),
		vectors:  make(map[string][]float32),
		now:      time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// SetUnavailable makes every subsequent call fail with ErrStoreUnavailable.
// Test hook for outage behavior.
func (s *MemoryStore) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if down {
		s.downReason = fmt.Errorf("store marked unavailable: %w", apperrors.ErrStoreUnavailable)
	} else {
		s.downReason = nil
	}
}

// SetClock overrides the store clock. Test hook for temporal assertions.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func storeKey(typeTag, naturalKey, groupScope string) string {
	return typeTag + "\x00" + naturalKey + "\x00" + groupScope
}

func (s *MemoryStore) UpsertEntity(ctx context.Context, entity *models.GenericEntity) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	vec, err := s.embedder.Embed(ctx, []string{entity.FactText})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to embed fact text: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downReason != nil {
		return uuid.Nil, s.downReason
	}

	key := storeKey(entity.TypeTag, entity.NaturalKey, entity.GroupScope)
	now := s.now()

	stored := *entity
	stored.UpdatedAt = now
	if existing, ok := s.entities[key]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
		stored.ReferenceCount = existing.ReferenceCount
		stored.LastReferenced = existing.LastReferenced
	} else {
		stored.ID = uuid.New()
		stored.CreatedAt = now
	}
	s.entities[key] = &stored
	s.vectors[key] = vec[0]
	return stored.ID, nil
}

func (s *MemoryStore) UpsertEdge(ctx context.Context, edge *models.GenericEdge) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	vec, err := s.embedder.Embed(ctx, []string{edge.FactText})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to embed fact text: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downReason != nil {
		return uuid.Nil, s.downReason
	}

	key := storeKey(edge.TypeTag, edge.NaturalKey, edge.GroupScope)
	now := s.now()

	stored := *edge
	stored.UpdatedAt = now
	if existing, ok := s.edges[key]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
		stored.ReferenceCount = existing.ReferenceCount
		stored.LastReferenced = existing.LastReferenced
	} else {
		stored.ID = uuid.New()
		stored.CreatedAt = now
	}
	s.edges[key] = &stored
	s.vectors["edge\x00"+key] = vec[0]
	return stored.ID, nil
}

func (s *MemoryStore) GetByNaturalKey(ctx context.Context, typeTag, naturalKey, groupScope string) (*models.GenericEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.downReason != nil {
		return nil, s.downReason
	}

	if e, ok := s.entities[storeKey(typeTag, naturalKey, groupScope)]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, fmt.Errorf("entity %s/%s: %w", typeTag, naturalKey, apperrors.ErrNotFound)
}

func (s *MemoryStore) GetEdgeByNaturalKey(ctx context.Context, typeTag, naturalKey, groupScope string) (*models.GenericEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.downReason != nil {
		return nil, s.downReason
	}

	if e, ok := s.edges[storeKey(typeTag, naturalKey, groupScope)]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, fmt.Errorf("edge %s/%s: %w", typeTag, naturalKey, apperrors.ErrNotFound)
}

func (s *MemoryStore) SimilaritySearch(ctx context.Context, queryText, groupScope string, window models.TimeWindow, limit int) ([]models.SimilarityHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryVec, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downReason != nil {
		return nil, s.downReason
	}

	type scored struct {
		hit models.SimilarityHit
		key string
	}
	var results []scored

	for key, e := range s.entities {
		if groupScope != "" && e.GroupScope != groupScope {
			continue
		}
		if !window.Intersects(e.ValidFrom, e.ValidUntil) {
			continue
		}
		score := CosineSimilarity(queryVec[0], s.vectors[key])
		copied := *e
		results = append(results, scored{
			hit: models.SimilarityHit{Entity: &copied, Score: score},
			key: key,
		})
	}
	for key, e := range s.edges {
		if groupScope != "" && e.GroupScope != groupScope {
			continue
		}
		if !window.Intersects(e.ValidFrom, e.ValidUntil) {
			continue
		}
		score := CosineSimilarity(queryVec[0], s.vectors["edge\x00"+key])
		copied := *e
		results = append(results, scored{
			hit: models.SimilarityHit{Edge: &copied, Score: score},
			key: key,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].hit.Score != results[j].hit.Score {
			return results[i].hit.Score > results[j].hit.Score
		}
		return results[i].key < results[j].key
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	// Returned rows count as references for recency/frequency signals.
	now := s.now()
	hits := make([]models.SimilarityHit, 0, len(results))
	for _, r := range results {
		if r.hit.Entity != nil {
			if live, ok := s.entities[r.key]; ok {
				live.ReferenceCount++
				live.LastReferenced = &now
			}
		} else if live, ok := s.edges[r.key]; ok {
			live.ReferenceCount++
			live.LastReferenced = &now
		}
		hits = append(hits, r.hit)
	}
	return hits, nil
}

func (s *MemoryStore) AppendEpisode(ctx context.Context, episode *models.GenericEpisode) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downReason != nil {
		return uuid.Nil, s.downReason
	}

	stored := *episode
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.episodes = append(s.episodes, &stored)
	return stored.ID, nil
}

func (s *MemoryStore) QueryEpisodes(ctx context.Context, filter EpisodeFilter, window models.TimeWindow) ([]*models.GenericEpisode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.downReason != nil {
		return nil, s.downReason
	}

	var out []*models.GenericEpisode
	for _, e := range s.episodes {
		if filter.EpisodeType != "" && e.EpisodeType != filter.EpisodeType {
			continue
		}
		if filter.GroupScope != "" && e.GroupScope != filter.GroupScope {
			continue
		}
		if filter.CorrelationID != uuid.Nil && e.CorrelationID != filter.CorrelationID {
			continue
		}
		from, until := e.ValidFrom, e.ValidUntil
		if from == nil && until == nil {
			// Episodes without an explicit window are valid at creation time.
			created := e.CreatedAt
			from, until = &created, &created
		}
		if !window.Intersects(from, until) {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Counts(ctx context.Context, groupScope string) (models.StoreCounts, error) {
	if err := ctx.Err(); err != nil {
		return models.StoreCounts{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := models.StoreCounts{
		Nodes:    make(map[string]int64),
		Edges:    make(map[string]int64),
		Episodes: make(map[string]int64),
	}
	if s.downReason != nil {
		return counts, s.downReason
	}

	for _, e := range s.entities {
		if groupScope == "" || e.GroupScope == groupScope {
			counts.Nodes[e.TypeTag]++
		}
	}
	for _, e := range s.edges {
		if groupScope == "" || e.GroupScope == groupScope {
			counts.Edges[e.TypeTag]++
		}
	}
	for _, e := range s.episodes {
		if groupScope == "" || e.GroupScope == groupScope {
			counts.Episodes[e.EpisodeType]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.downReason != nil {
		return s.downReason
	}
	return nil
}
