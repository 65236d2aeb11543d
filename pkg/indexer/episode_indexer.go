package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datapilot-ai/memory-engine/pkg/graphstore"
	"github.com/datapilot-ai/memory-engine/pkg/models"
)

// AppendOptions carries the optional fields of an episode write. The
// validity window is a temporal fact about the episode, not wall-clock
// audit time; zero times leave the window open on that side.
type AppendOptions struct {
	CorrelationID uuid.UUID
	ValidFrom     time.Time
	ValidUntil    time.Time
}

// EpisodeIndexer is the append-only write path for episodic history.
// Episodes are validated, stamped, written once, and never mutated.
type EpisodeIndexer interface {
	Append(ctx context.Context, episode models.Episode, opts AppendOptions) (uuid.UUID, error)
	Query(ctx context.Context, filter graphstore.EpisodeFilter, window models.TimeWindow) ([]*models.GenericEpisode, error)
}

type episodeIndexer struct {
	store      graphstore.Store
	groupScope string
	logger     *zap.Logger
}

// NewEpisodeIndexer creates an EpisodeIndexer writing into groupScope.
func NewEpisodeIndexer(store graphstore.Store, groupScope string, logger *zap.Logger) EpisodeIndexer {
	return &episodeIndexer{
		store:      store,
		groupScope: groupScope,
		logger:     logger.Named("episode-indexer"),
	}
}

var _ EpisodeIndexer = (*episodeIndexer)(nil)

func (ix *episodeIndexer) Append(ctx context.Context, episode models.Episode, opts AppendOptions) (uuid.UUID, error) {
	if err := episode.Validate(); err != nil {
		return uuid.Nil, err
	}

	encoded := models.EncodeEpisode(episode, ix.groupScope, opts.CorrelationID)
	encoded.ValidFrom, encoded.ValidUntil = models.EpisodeWindow(opts.ValidFrom, opts.ValidUntil)
	encoded.CreatedAt = time.Now()

	id, err := ix.store.AppendEpisode(ctx, encoded)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to append %s episode: %w", episode.EpisodeType(), err)
	}

	ix.logger.Debug("Episode appended",
		zap.String("type", episode.EpisodeType()),
		zap.String("id", id.String()))
	return id, nil
}

func (ix *episodeIndexer) Query(ctx context.Context, filter graphstore.EpisodeFilter, window models.TimeWindow) ([]*models.GenericEpisode, error) {
	if filter.GroupScope == "" {
		filter.GroupScope = ix.groupScope
	}
	episodes, err := ix.store.QueryEpisodes(ctx, filter, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	return episodes, nil
}
