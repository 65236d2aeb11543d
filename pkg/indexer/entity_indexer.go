package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
	"github.com/datapilot-ai/memory-engine/pkg/graphstore"
	"github.com/datapilot-ai/memory-engine/pkg/models"
)

// bulkParallelism bounds concurrent store calls during a bulk upsert.
const bulkParallelism = 8

// Bulk item statuses.
const (
	StatusCommitted = "committed"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
)

// BulkItemResult reports the outcome of one item in a bulk upsert.
type BulkItemResult struct {
	Kind       string // "node" or "edge"
	TypeTag    string
	NaturalKey string
	Status     string
	Err        error
}

// BulkResult reports per-item outcomes of a bulk upsert. A cancelled batch
// distinguishes committed items from aborted ones so the caller is never
// uncertain about partial application.
type BulkResult struct {
	Items     []BulkItemResult
	Committed int
	Failed    int
	Aborted   int
}

func (r *BulkResult) add(item BulkItemResult) {
	r.Items = append(r.Items, item)
	switch item.Status {
	case StatusCommitted:
		r.Committed++
	case StatusFailed:
		r.Failed++
	case StatusAborted:
		r.Aborted++
	}
}

// EntityIndexer is the write path for schema facts: idempotent upsert of
// typed nodes and relationships keyed by natural key.
type EntityIndexer interface {
	UpsertNode(ctx context.Context, node models.Node) error
	UpsertEdge(ctx context.Context, edge models.Edge) error
	BulkUpsert(ctx context.Context, nodes []models.Node, edges []models.Edge) (*BulkResult, error)

	// GroupScope reports the scope this indexer writes into.
	GroupScope() string
}

type entityIndexer struct {
	store      graphstore.Store
	groupScope string
	logger     *zap.Logger
}

// NewEntityIndexer creates an EntityIndexer writing into groupScope.
func NewEntityIndexer(store graphstore.Store, groupScope string, logger *zap.Logger) EntityIndexer {
	return &entityIndexer{
		store:      store,
		groupScope: groupScope,
		logger:     logger.Named("entity-indexer"),
	}
}

var _ EntityIndexer = (*entityIndexer)(nil)

func (ix *entityIndexer) GroupScope() string { return ix.groupScope }

func (ix *entityIndexer) UpsertNode(ctx context.Context, node models.Node) error {
	if v, ok := node.(models.Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	encoded := models.EncodeNode(node, ix.groupScope)

	existing, err := ix.store.GetByNaturalKey(ctx, encoded.TypeTag, encoded.NaturalKey, ix.groupScope)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("failed to look up node %s: %w", encoded.NaturalKey, err)
	}
	if existing != nil {
		// Last-write-wins per attribute: new values override, attributes the
		// new write omits survive from the stored entity.
		encoded.Attributes = mergeAttributes(existing.Attributes, encoded.Attributes)
		merged, decodeErr := models.DecodeNode(encoded)
		if decodeErr == nil {
			encoded.FactText = merged.FactText()
		}
		encoded.ValidFrom = existing.ValidFrom
		encoded.ValidUntil = existing.ValidUntil
	}

	if _, err := ix.store.UpsertEntity(ctx, encoded); err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", encoded.NaturalKey, err)
	}

	ix.logger.Debug("Node upserted",
		zap.String("type", encoded.TypeTag),
		zap.String("natural_key", encoded.NaturalKey))
	return nil
}

func (ix *entityIndexer) UpsertEdge(ctx context.Context, edge models.Edge) error {
	if v, ok := edge.(models.Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	if err := ix.checkEndpoints(ctx, edge); err != nil {
		return err
	}

	encoded := models.EncodeEdge(edge, ix.groupScope)

	existing, err := ix.store.GetEdgeByNaturalKey(ctx, encoded.TypeTag, encoded.NaturalKey, ix.groupScope)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("failed to look up edge %s: %w", encoded.NaturalKey, err)
	}
	if existing != nil {
		encoded.Attributes = mergeAttributes(existing.Attributes, encoded.Attributes)
		merged, decodeErr := models.DecodeEdge(encoded)
		if decodeErr == nil {
			encoded.FactText = merged.FactText()
		}
		encoded.ValidFrom = existing.ValidFrom
		encoded.ValidUntil = existing.ValidUntil
	}

	if _, err := ix.store.UpsertEdge(ctx, encoded); err != nil {
		return fmt.Errorf("failed to upsert edge %s: %w", encoded.NaturalKey, err)
	}

	ix.logger.Debug("Edge upserted",
		zap.String("type", encoded.TypeTag),
		zap.String("natural_key", encoded.NaturalKey))
	return nil
}

// checkEndpoints enforces that an edge references existing nodes. Edges
// between free terms (Synonym) are exempt.
func (ix *entityIndexer) checkEndpoints(ctx context.Context, edge models.Edge) error {
	fromTag, toTag, ok := models.EdgeEndpointTypes(edge)
	if !ok {
		return nil
	}

	if _, err := ix.store.GetByNaturalKey(ctx, fromTag, edge.FromKey(), ix.groupScope); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("edge %s source %s/%s does not exist: %w",
				edge.TypeTag(), fromTag, edge.FromKey(), apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to check edge source: %w", err)
	}
	if _, err := ix.store.GetByNaturalKey(ctx, toTag, edge.ToKey(), ix.groupScope); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("edge %s target %s/%s does not exist: %w",
				edge.TypeTag(), toTag, edge.ToKey(), apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to check edge target: %w", err)
	}
	return nil
}

// BulkUpsert writes a batch of nodes and edges. Nodes complete before edges
// so edges may reference nodes created in the same batch. Items sharing a
// natural key are applied in input order; distinct keys run concurrently.
// One item's failure never aborts the batch; only context cancellation
// stops it, and the result then reports committed versus aborted items.
func (ix *entityIndexer) BulkUpsert(ctx context.Context, nodes []models.Node, edges []models.Edge) (*BulkResult, error) {
	result := &BulkResult{}
	var mu sync.Mutex
	record := func(item BulkItemResult) {
		mu.Lock()
		result.add(item)
		mu.Unlock()
	}

	nodeGroups := groupByKey(nodes, func(n models.Node) string { return n.TypeTag() + "\x00" + n.NaturalKey() })
	runGroups(ctx, nodeGroups,
		func(n models.Node) BulkItemResult {
			return BulkItemResult{Kind: "node", TypeTag: n.TypeTag(), NaturalKey: n.NaturalKey()}
		},
		func(gctx context.Context, n models.Node) error { return ix.UpsertNode(gctx, n) },
		record)

	if err := ctx.Err(); err != nil {
		for _, e := range edges {
			record(BulkItemResult{
				Kind: "edge", TypeTag: e.TypeTag(),
				NaturalKey: models.EdgeNaturalKey(e), Status: StatusAborted,
			})
		}
		return result, err
	}

	edgeGroups := groupByKey(edges, func(e models.Edge) string { return e.TypeTag() + "\x00" + models.EdgeNaturalKey(e) })
	runGroups(ctx, edgeGroups,
		func(e models.Edge) BulkItemResult {
			return BulkItemResult{Kind: "edge", TypeTag: e.TypeTag(), NaturalKey: models.EdgeNaturalKey(e)}
		},
		func(gctx context.Context, e models.Edge) error { return ix.UpsertEdge(gctx, e) },
		record)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	ix.logger.Info("Bulk upsert finished",
		zap.Int("committed", result.Committed),
		zap.Int("failed", result.Failed),
		zap.Int("aborted", result.Aborted))
	return result, nil
}

// runGroups applies upsert to each item, keeping same-key groups sequential
// and running distinct keys in parallel. Failures are recorded, never
// returned: only context cancellation stops processing, and remaining items
// are recorded as aborted.
func runGroups[T any](ctx context.Context, groups [][]T, describe func(T) BulkItemResult, upsert func(context.Context, T) error, record func(BulkItemResult)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkParallelism)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			for _, item := range group {
				r := describe(item)
				if err := gctx.Err(); err != nil {
					r.Status, r.Err = StatusAborted, err
					record(r)
					continue
				}
				if err := upsert(gctx, item); err != nil {
					status := StatusFailed
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						status = StatusAborted
					}
					r.Status, r.Err = status, err
				} else {
					r.Status = StatusCommitted
				}
				record(r)
			}
			return nil
		})
	}
	// Goroutines never return errors; Wait only synchronizes.
	_ = g.Wait()
}

func groupByKey[T any](items []T, key func(T) string) [][]T {
	order := make([]string, 0, len(items))
	byKey := make(map[string][]T, len(items))
	for _, item := range items {
		k := key(item)
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], item)
	}
	groups := make([][]T, 0, len(order))
	for _, k := range order {
		groups = append(groups, byKey[k])
	}
	return groups
}

func mergeAttributes(old, new map[string]any) map[string]any {
	merged := make(map[string]any, len(old)+len(new))
	for k, v := range old {
		merged[k] = v
	}
	for k, v := range new {
		merged[k] = v
	}
	return merged
}
