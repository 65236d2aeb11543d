package graphstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
	"github.com/datapilot-ai/memory-engine/pkg/models"
)

// PostgresStore implements Store on a Postgres database. Fact texts are
// embedded at write time and stored as real[]; similarity search filters
// candidates by group scope and validity window in SQL, then ranks by
// cosine similarity over the candidate embeddings.
type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *zap.Logger
}

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, embedder Embedder, logger *zap.Logger) *PostgresStore {
	if embedder == nil {
		embedder = NewHashEmbedder(256)
	}
	return &PostgresStore{
		pool:     pool,
		embedder: embedder,
		logger:   logger.Named("graphstore"),
	}
}

var _ Store = (*PostgresStore)(nil)

// Connect opens a pgx pool against the given URL and verifies
// connectivity before returning it.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = maxConns
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 25
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", apperrors.ErrStoreUnavailable)
	}
	return pool, nil
}

func (s *PostgresStore) UpsertEntity(ctx context.Context, entity *models.GenericEntity) (uuid.UUID, error) {
	vec, err := s.embedder.Embed(ctx, []string{entity.FactText})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to embed fact text: %w", err)
	}

	query := `
		INSERT INTO memory_entities (
			id, type_tag, natural_key, group_scope, attributes, fact_text,
			embedding, valid_from, valid_until, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (type_tag, natural_key, group_scope)
		DO UPDATE SET
			attributes = EXCLUDED.attributes,
			fact_text = EXCLUDED.fact_text,
			embedding = EXCLUDED.embedding,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			updated_at = now()
		RETURNING id`

	var id uuid.UUID
	err = s.pool.QueryRow(ctx, query,
		uuid.New(), entity.TypeTag, entity.NaturalKey, entity.GroupScope,
		entity.Attributes, entity.FactText, vec[0],
		entity.ValidFrom, entity.ValidUntil,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert entity %s/%s: %w", entity.TypeTag, entity.NaturalKey, err)
	}
	return id, nil
}

func (s *PostgresStore) UpsertEdge(ctx context.Context, edge *models.GenericEdge) (uuid.UUID, error) {
	vec, err := s.embedder.Embed(ctx, []string{edge.FactText})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to embed fact text: %w", err)
	}

	query := `
		INSERT INTO memory_edges (
			id, type_tag, natural_key, group_scope, from_key, to_key,
			attributes, fact_text, embedding, valid_from, valid_until,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (type_tag, natural_key, group_scope)
		DO UPDATE SET
			attributes = EXCLUDED.attributes,
			fact_text = EXCLUDED.fact_text,
			embedding = EXCLUDED.embedding,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			updated_at = now()
		RETURNING id`

	var id uuid.UUID
	err = s.pool.QueryRow(ctx, query,
		uuid.New(), edge.TypeTag, edge.NaturalKey, edge.GroupScope,
		edge.FromKey, edge.ToKey, edge.Attributes, edge.FactText, vec[0],
		edge.ValidFrom, edge.ValidUntil,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert edge %s/%s: %w", edge.TypeTag, edge.NaturalKey, err)
	}
	return id, nil
}

func (s *PostgresStore) GetByNaturalKey(ctx context.Context, typeTag, naturalKey, groupScope string) (*models.GenericEntity, error) {
	query := `
		SELECT id, type_tag, natural_key, group_scope, attributes, fact_text,
		       valid_from, valid_until, reference_count, last_referenced,
		       created_at, updated_at
		FROM memory_entities
		WHERE type_tag = $1 AND natural_key = $2 AND group_scope = $3`

	var e models.GenericEntity
	err := s.pool.QueryRow(ctx, query, typeTag, naturalKey, groupScope).Scan(
		&e.ID, &e.TypeTag, &e.NaturalKey, &e.GroupScope, &e.Attributes,
		&e.FactText, &e.ValidFrom, &e.ValidUntil, &e.ReferenceCount,
		&e.LastReferenced, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("entity %s/%s: %w", typeTag, naturalKey, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) GetEdgeByNaturalKey(ctx context.Context, typeTag, naturalKey, groupScope string) (*models.GenericEdge, error) {
	query := `
		SELECT id, type_tag, natural_key, group_scope, from_key, to_key,
		       attributes, fact_text, valid_from, valid_until,
		       reference_count, last_referenced, created_at, updated_at
		FROM memory_edges
		WHERE type_tag = $1 AND natural_key = $2 AND group_scope = $3`

	var e models.GenericEdge
	err := s.pool.QueryRow(ctx, query, typeTag, naturalKey, groupScope).Scan(
		&e.ID, &e.TypeTag, &e.NaturalKey, &e.GroupScope, &e.FromKey, &e.ToKey,
		&e.Attributes, &e.FactText, &e.ValidFrom, &e.ValidUntil,
		&e.ReferenceCount, &e.LastReferenced, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("edge %s/%s: %w", typeTag, naturalKey, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get edge: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) SimilaritySearch(ctx context.Context, queryText, groupScope string, window models.TimeWindow, limit int) ([]models.SimilarityHit, error) {
	queryVec, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	entityHits, err := s.searchEntities(ctx, queryVec[0], groupScope, window)
	if err != nil {
		return nil, err
	}
	edgeHits, err := s.searchEdges(ctx, queryVec[0], groupScope, window)
	if err != nil {
		return nil, err
	}

	hits := append(entityHits, edgeHits...)
	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	if err := s.markReferenced(ctx, hits); err != nil {
		// Usage counters are advisory; a failed bump must not fail the search.
		s.logger.Warn("Failed to update reference counters", zap.Error(err))
	}
	return hits, nil
}

func (s *PostgresStore) searchEntities(ctx context.Context, queryVec []float32, groupScope string, window models.TimeWindow) ([]models.SimilarityHit, error) {
	query := `
		SELECT id, type_tag, natural_key, group_scope, attributes, fact_text,
		       embedding, valid_from, valid_until, reference_count,
		       last_referenced, created_at, updated_at
		FROM memory_entities
		WHERE ($1 = '' OR group_scope = $1)
		  AND ($2::timestamptz IS NULL OR valid_until IS NULL OR valid_until >= $2)
		  AND ($3::timestamptz IS NULL OR valid_from IS NULL OR valid_from <= $3)`

	rows, err := s.pool.Query(ctx, query, groupScope, windowArg(window.Start), windowArg(window.End))
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var hits []models.SimilarityHit
	for rows.Next() {
		var e models.GenericEntity
		var embedding []float32
		err := rows.Scan(
			&e.ID, &e.TypeTag, &e.NaturalKey, &e.GroupScope, &e.Attributes,
			&e.FactText, &embedding, &e.ValidFrom, &e.ValidUntil,
			&e.ReferenceCount, &e.LastReferenced, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entity := e
		hits = append(hits, models.SimilarityHit{
			Entity: &entity,
			Score:  CosineSimilarity(queryVec, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return hits, nil
}

func (s *PostgresStore) searchEdges(ctx context.Context, queryVec []float32, groupScope string, window models.TimeWindow) ([]models.SimilarityHit, error) {
	query := `
		SELECT id, type_tag, natural_key, group_scope, from_key, to_key,
		       attributes, fact_text, embedding, valid_from, valid_until,
		       reference_count, last_referenced, created_at, updated_at
		FROM memory_edges
		WHERE ($1 = '' OR group_scope = $1)
		  AND ($2::timestamptz IS NULL OR valid_until IS NULL OR valid_until >= $2)
		  AND ($3::timestamptz IS NULL OR valid_from IS NULL OR valid_from <= $3)`

	rows, err := s.pool.Query(ctx, query, groupScope, windowArg(window.Start), windowArg(window.End))
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var hits []models.SimilarityHit
	for rows.Next() {
		var e models.GenericEdge
		var embedding []float32
		err := rows.Scan(
			&e.ID, &e.TypeTag, &e.NaturalKey, &e.GroupScope, &e.FromKey,
			&e.ToKey, &e.Attributes, &e.FactText, &embedding, &e.ValidFrom,
			&e.ValidUntil, &e.ReferenceCount, &e.LastReferenced,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edge := e
		hits = append(hits, models.SimilarityHit{
			Edge:  &edge,
			Score: CosineSimilarity(queryVec, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}
	return hits, nil
}

func (s *PostgresStore) markReferenced(ctx context.Context, hits []models.SimilarityHit) error {
	var entityIDs, edgeIDs []uuid.UUID
	for _, h := range hits {
		if h.Entity != nil {
			entityIDs = append(entityIDs, h.Entity.ID)
		} else if h.Edge != nil {
			edgeIDs = append(edgeIDs, h.Edge.ID)
		}
	}

	if len(entityIDs) > 0 {
		_, err := s.pool.Exec(ctx,
			`UPDATE memory_entities
			 SET reference_count = reference_count + 1, last_referenced = now()
			 WHERE id = ANY($1)`, entityIDs)
		if err != nil {
			return fmt.Errorf("failed to mark entities referenced: %w", err)
		}
	}
	if len(edgeIDs) > 0 {
		_, err := s.pool.Exec(ctx,
			`UPDATE memory_edges
			 SET reference_count = reference_count + 1, last_referenced = now()
			 WHERE id = ANY($1)`, edgeIDs)
		if err != nil {
			return fmt.Errorf("failed to mark edges referenced: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) AppendEpisode(ctx context.Context, episode *models.GenericEpisode) (uuid.UUID, error) {
	id := episode.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	query := `
		INSERT INTO memory_episodes (
			id, episode_type, group_scope, correlation_id, payload,
			fact_text, valid_from, valid_until, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	createdAt := episode.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, query,
		id, episode.EpisodeType, episode.GroupScope, episode.CorrelationID,
		episode.Payload, episode.FactText, episode.ValidFrom,
		episode.ValidUntil, createdAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to append episode: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) QueryEpisodes(ctx context.Context, filter EpisodeFilter, window models.TimeWindow) ([]*models.GenericEpisode, error) {
	query := `
		SELECT id, episode_type, group_scope, correlation_id, payload,
		       fact_text, valid_from, valid_until, created_at
		FROM memory_episodes
		WHERE ($1 = '' OR episode_type = $1)
		  AND ($2 = '' OR group_scope = $2)
		  AND ($3::uuid IS NULL OR correlation_id = $3)
		  AND ($4::timestamptz IS NULL OR COALESCE(valid_until, created_at) >= $4)
		  AND ($5::timestamptz IS NULL OR COALESCE(valid_from, created_at) <= $5)
		ORDER BY created_at DESC, id
		LIMIT CASE WHEN $6 > 0 THEN $6 ELSE NULL END`

	var corr *uuid.UUID
	if filter.CorrelationID != uuid.Nil {
		corr = &filter.CorrelationID
	}

	rows, err := s.pool.Query(ctx, query,
		filter.EpisodeType, filter.GroupScope, corr,
		windowArg(window.Start), windowArg(window.End), filter.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*models.GenericEpisode
	for rows.Next() {
		var e models.GenericEpisode
		err := rows.Scan(
			&e.ID, &e.EpisodeType, &e.GroupScope, &e.CorrelationID,
			&e.Payload, &e.FactText, &e.ValidFrom, &e.ValidUntil, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating episodes: %w", err)
	}
	return episodes, nil
}

func (s *PostgresStore) Counts(ctx context.Context, groupScope string) (models.StoreCounts, error) {
	counts := models.StoreCounts{
		Nodes:    make(map[string]int64),
		Edges:    make(map[string]int64),
		Episodes: make(map[string]int64),
	}

	tables := []struct {
		table  string
		tagCol string
		dest   map[string]int64
	}{
		{"memory_entities", "type_tag", counts.Nodes},
		{"memory_edges", "type_tag", counts.Edges},
		{"memory_episodes", "episode_type", counts.Episodes},
	}

	for _, t := range tables {
		query := fmt.Sprintf(
			`SELECT %s, COUNT(*) FROM %s WHERE ($1 = '' OR group_scope = $1) GROUP BY %s`,
			t.tagCol, t.table, t.tagCol)
		rows, err := s.pool.Query(ctx, query, groupScope)
		if err != nil {
			return counts, fmt.Errorf("failed to count %s: %w", t.table, err)
		}
		for rows.Next() {
			var tag string
			var n int64
			if err := rows.Scan(&tag, &n); err != nil {
				rows.Close()
				return counts, fmt.Errorf("failed to scan count: %w", err)
			}
			t.dest[tag] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return counts, fmt.Errorf("error iterating counts: %w", err)
		}
	}
	return counts, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", apperrors.ErrStoreUnavailable)
	}
	return nil
}

func windowArg(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func sortHits(hits []models.SimilarityHit) {
	// Deterministic order for identical scores keeps retrieval reproducible.
	key := func(h models.SimilarityHit) string {
		if h.Entity != nil {
			return h.Entity.TypeTag + "\x00" + h.Entity.NaturalKey
		}
		return h.Edge.TypeTag + "\x00" + h.Edge.NaturalKey
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return key(hits[i]) < key(hits[j])
	})
}
