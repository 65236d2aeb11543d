package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datapilot-ai/memory-engine/pkg/analyzer"
	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
	"github.com/datapilot-ai/memory-engine/pkg/graphstore"
	"github.com/datapilot-ai/memory-engine/pkg/indexer"
	"github.com/datapilot-ai/memory-engine/pkg/models"
	"github.com/datapilot-ai/memory-engine/pkg/search"
)

// defaultCorrelationWindow bounds how far back feedback may reach to find
// the query episode it responds to when no correlation ID is supplied.
const defaultCorrelationWindow = time.Hour

// SearchResponse pairs the ranked schema context with the question
// analysis that produced it.
type SearchResponse struct {
	Analysis analyzer.QueryAnalysis      `json:"analysis"`
	Results  []models.SchemaSearchResult `json:"results"`
}

// Manager is the composition root of the engine: one facade over
// indexing, episodic history, and retrieval for a single group scope.
type Manager interface {
	Entities() indexer.EntityIndexer
	Episodes() indexer.EpisodeIndexer
	Schemas() indexer.SchemaIndexer

	InitializeStore(ctx context.Context) error
	Search(ctx context.Context, question string, history []string, opts models.SearchOptions) (*SearchResponse, error)
	RecordQuery(ctx context.Context, episode models.QueryEpisode) (uuid.UUID, error)
	RecordFeedback(ctx context.Context, episode models.FeedbackEpisode, correlationID uuid.UUID) (uuid.UUID, error)
	GetStats(ctx context.Context) (*models.MemoryStats, error)
}

// Options tunes a Manager beyond its required collaborators.
type Options struct {
	// Weights used when a search request does not supply its own.
	Weights models.SearchWeights

	// RecencyHalfLife and FrequencyCap configure the reranker; zero
	// values keep the defaults.
	RecencyHalfLife time.Duration
	FrequencyCap    int64

	// CorrelationWindow bounds the question-text fallback when feedback
	// arrives without a correlation ID.
	CorrelationWindow time.Duration
}

type manager struct {
	store      graphstore.Store
	entities   indexer.EntityIndexer
	episodes   indexer.EpisodeIndexer
	schemas    indexer.SchemaIndexer
	searcher   search.Service
	reranker   *search.Reranker
	groupScope string
	opts       Options
	logger     *zap.Logger
}

// NewManager wires the engine together on top of a store for one group scope.
func NewManager(store graphstore.Store, groupScope string, opts Options, logger *zap.Logger) Manager {
	log := logger.Named("memory")
	entities := indexer.NewEntityIndexer(store, groupScope, logger)
	episodes := indexer.NewEpisodeIndexer(store, groupScope, logger)

	reranker := search.NewReranker()
	if opts.RecencyHalfLife > 0 {
		reranker.HalfLife = opts.RecencyHalfLife
	}
	if opts.FrequencyCap > 0 {
		reranker.FrequencyCap = opts.FrequencyCap
	}
	if opts.Weights == (models.SearchWeights{}) {
		opts.Weights = models.DefaultSearchWeights()
	}
	if opts.CorrelationWindow <= 0 {
		opts.CorrelationWindow = defaultCorrelationWindow
	}

	return &manager{
		store:      store,
		entities:   entities,
		episodes:   episodes,
		schemas:    indexer.NewSchemaIndexer(entities, episodes, store, logger),
		searcher:   search.NewService(store, logger),
		reranker:   reranker,
		groupScope: groupScope,
		opts:       opts,
		logger:     log,
	}
}

var _ Manager = (*manager)(nil)

func (m *manager) Entities() indexer.EntityIndexer  { return m.entities }
func (m *manager) Episodes() indexer.EpisodeIndexer { return m.episodes }
func (m *manager) Schemas() indexer.SchemaIndexer   { return m.schemas }

// InitializeStore verifies the backing store is reachable so callers can
// fail fast before indexing. Schema setup itself happens through
// migrations when the store connection is opened.
func (m *manager) InitializeStore(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return nil
}

// Search analyzes the question, retrieves similar facts scoped to the
// manager's group, and reranks them with usage signals.
func (m *manager) Search(ctx context.Context, question string, history []string, opts models.SearchOptions) (*SearchResponse, error) {
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", apperrors.ErrMalformedInput)
	}

	analysis := analyzer.Analyze(question, history)

	if opts.GroupScope == "" {
		opts.GroupScope = m.groupScope
	}
	if opts.Weights == (models.SearchWeights{}) {
		opts.Weights = m.opts.Weights
	}

	candidates, err := m.searcher.Search(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	results := m.reranker.Rerank(candidates, opts.Weights)
	m.logger.Debug("Search served",
		zap.String("intent", analysis.Intent),
		zap.String("complexity", analysis.Complexity),
		zap.Int("results", len(results)))

	return &SearchResponse{Analysis: analysis, Results: results}, nil
}

// RecordQuery appends a query episode and returns the correlation ID that
// later feedback should carry to reference it.
func (m *manager) RecordQuery(ctx context.Context, episode models.QueryEpisode) (uuid.UUID, error) {
	correlationID := uuid.New()
	if _, err := m.episodes.Append(ctx, episode, indexer.AppendOptions{CorrelationID: correlationID}); err != nil {
		return uuid.Nil, err
	}
	return correlationID, nil
}

// RecordFeedback appends a feedback episode tied to an earlier query
// episode. The query episode is resolved by correlation ID, or, when the
// caller has none, by matching the question text within the correlation
// window. Feedback with no resolvable query episode is rejected with
// ErrNotFound so callers never store orphaned feedback.
func (m *manager) RecordFeedback(ctx context.Context, episode models.FeedbackEpisode, correlationID uuid.UUID) (uuid.UUID, error) {
	resolved, err := m.resolveQueryEpisode(ctx, episode.Question, correlationID)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := m.episodes.Append(ctx, episode, indexer.AppendOptions{CorrelationID: resolved})
	if err != nil {
		return uuid.Nil, err
	}
	m.logger.Info("Feedback recorded",
		zap.String("episode_id", id.String()),
		zap.String("correlation_id", resolved.String()),
		zap.Int("rating", episode.Rating))
	return id, nil
}

func (m *manager) resolveQueryEpisode(ctx context.Context, question string, correlationID uuid.UUID) (uuid.UUID, error) {
	if correlationID != uuid.Nil {
		matches, err := m.episodes.Query(ctx, graphstore.EpisodeFilter{
			EpisodeType:   models.EpisodeTypeQuery,
			CorrelationID: correlationID,
			Limit:         1,
		}, models.TimeWindow{})
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve correlation %s: %w", correlationID, err)
		}
		if len(matches) == 0 {
			return uuid.Nil, fmt.Errorf("%w: no query episode for correlation %s", apperrors.ErrNotFound, correlationID)
		}
		return correlationID, nil
	}

	// Fallback: same question text, asked within the correlation window.
	now := time.Now()
	window := models.TimeWindow{Start: now.Add(-m.opts.CorrelationWindow), End: now}
	recent, err := m.episodes.Query(ctx, graphstore.EpisodeFilter{EpisodeType: models.EpisodeTypeQuery}, window)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to search recent query episodes: %w", err)
	}
	for _, ep := range recent {
		decoded, err := models.DecodeEpisode(ep)
		if err != nil {
			continue
		}
		query, ok := decoded.(models.QueryEpisode)
		if !ok || query.Question != question {
			continue
		}
		if ep.CorrelationID != uuid.Nil {
			return ep.CorrelationID, nil
		}
		return ep.ID, nil
	}
	return uuid.Nil, fmt.Errorf("%w: no recent query episode matches question", apperrors.ErrNotFound)
}

// GetStats reports per-type counts and store health.
func (m *manager) GetStats(ctx context.Context) (*models.MemoryStats, error) {
	connected := m.store.Ping(ctx) == nil

	counts, err := m.store.Counts(ctx, m.groupScope)
	if err != nil {
		if !connected {
			return &models.MemoryStats{
				Nodes:          map[string]int64{},
				Edges:          map[string]int64{},
				Episodes:       map[string]int64{},
				StoreConnected: false,
			}, nil
		}
		return nil, fmt.Errorf("failed to collect store counts: %w", err)
	}

	return &models.MemoryStats{
		Nodes:          counts.Nodes,
		Edges:          counts.Edges,
		Episodes:       counts.Episodes,
		StoreConnected: connected,
	}, nil
}
