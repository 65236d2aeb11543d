package search

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/datapilot-ai/memory-engine/pkg/models"
)

const (
	// defaultHalfLife halves the recency signal every week of disuse.
	defaultHalfLife = 168 * time.Hour

	// defaultFrequencyCap is the reference count at which the frequency
	// signal saturates at 1.0.
	defaultFrequencyCap = int64(100)
)

// Reranker blends similarity with usage history into a final ranking and
// promotes column matches into table-level context.
type Reranker struct {
	// HalfLife controls exponential recency decay.
	HalfLife time.Duration

	// FrequencyCap normalizes reference counts; counts at or above the
	// cap score a full frequency signal.
	FrequencyCap int64

	now func() time.Time
}

// NewReranker creates a reranker with the default decay parameters.
func NewReranker() *Reranker {
	return &Reranker{
		HalfLife:     defaultHalfLife,
		FrequencyCap: defaultFrequencyCap,
		now:          time.Now,
	}
}

// Rerank scores candidates with the given weight blend and returns them
// ordered by score descending. Ties break by similarity descending, then
// natural key ascending, so equal inputs always produce equal output.
func (r *Reranker) Rerank(candidates []models.ScoredCandidate, weights models.SearchWeights) []models.SchemaSearchResult {
	now := r.now()
	results := make([]models.SchemaSearchResult, 0, len(candidates))
	for _, c := range candidates {
		signals := r.signalsFor(c, now)
		results = append(results, models.SchemaSearchResult{
			TypeTag:    c.TypeTag,
			NaturalKey: c.NaturalKey,
			FactText:   c.FactText,
			Similarity: c.Similarity,
			Score:      blend(signals, weights),
			Signals:    signals,
			Node:       c.Node,
			Edge:       c.Edge,
		})
	}

	results = r.promoteTables(results)

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].NaturalKey < results[j].NaturalKey
	})
	return results
}

func (r *Reranker) signalsFor(c models.ScoredCandidate, now time.Time) models.SearchSignals {
	return models.SearchSignals{
		Similarity: c.Similarity,
		Recency:    r.recency(c, now),
		Frequency:  r.frequency(c.ReferenceCount),
		Confidence: c.Confidence,
	}
}

// recency decays exponentially with age since last use, halving every
// HalfLife. Never-referenced candidates age from their creation time.
func (r *Reranker) recency(c models.ScoredCandidate, now time.Time) float64 {
	ref := c.LastReferenced
	if ref.IsZero() {
		ref = c.CreatedAt
	}
	if ref.IsZero() {
		return 0
	}
	age := now.Sub(ref)
	if age <= 0 {
		return 1.0
	}
	halfLife := r.HalfLife
	if halfLife <= 0 {
		halfLife = defaultHalfLife
	}
	return math.Exp(-math.Ln2 * age.Hours() / halfLife.Hours())
}

func (r *Reranker) frequency(referenceCount int64) float64 {
	if referenceCount <= 0 {
		return 0
	}
	limit := r.FrequencyCap
	if limit <= 0 {
		limit = defaultFrequencyCap
	}
	if referenceCount >= limit {
		return 1.0
	}
	return float64(referenceCount) / float64(limit)
}

func blend(s models.SearchSignals, w models.SearchWeights) float64 {
	total := w.Similarity + w.Recency + w.Frequency + w.Confidence
	if total <= 0 {
		return 0
	}
	score := (w.Similarity*s.Similarity +
		w.Recency*s.Recency +
		w.Frequency*s.Frequency +
		w.Confidence*s.Confidence) / total
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// promoteTables folds column matches into table-level context. Each table
// that matched, either directly or through one of its columns, carries a
// TableContext and scores at least as well as its best column. A table
// reached only through columns is synthesized from the strongest one.
func (r *Reranker) promoteTables(results []models.SchemaSearchResult) []models.SchemaSearchResult {
	contexts := make(map[string]*models.TableContext)
	tableIdx := make(map[string]int)
	bestColumn := make(map[string]models.SchemaSearchResult)

	for i, res := range results {
		switch res.TypeTag {
		case models.NodeTypeTable:
			db, table, ok := splitTableKey(res.NaturalKey)
			if !ok {
				continue
			}
			tableIdx[res.NaturalKey] = i
			ctx := ensureContext(contexts, res.NaturalKey, db, table)
			ctx.TableScore = res.Score
		case models.NodeTypeColumn:
			tableKey, db, table, column, ok := splitColumnKey(res.NaturalKey)
			if !ok {
				continue
			}
			ctx := ensureContext(contexts, tableKey, db, table)
			ctx.MatchedColumns = append(ctx.MatchedColumns, column)
			if best, seen := bestColumn[tableKey]; !seen || res.Score > best.Score {
				bestColumn[tableKey] = res
				ctx.BestColumn = res.Score
			}
		}
	}

	for tableKey, ctx := range contexts {
		sort.Strings(ctx.MatchedColumns)
		if i, ok := tableIdx[tableKey]; ok {
			if ctx.BestColumn > results[i].Score {
				results[i].Score = ctx.BestColumn
			}
			if best, seen := bestColumn[tableKey]; seen && best.Similarity > results[i].Similarity {
				results[i].Similarity = best.Similarity
			}
			results[i].Table = ctx
			continue
		}
		best, seen := bestColumn[tableKey]
		if !seen {
			continue
		}
		results = append(results, models.SchemaSearchResult{
			TypeTag:    models.NodeTypeTable,
			NaturalKey: tableKey,
			FactText:   fmt.Sprintf("Table %s in database %s", ctx.Table, ctx.Database),
			Similarity: best.Similarity,
			Score:      best.Score,
			Signals:    best.Signals,
			Table:      ctx,
		})
	}

	// Column results reference their table context too.
	for i, res := range results {
		if res.TypeTag != models.NodeTypeColumn {
			continue
		}
		if tableKey, _, _, _, ok := splitColumnKey(res.NaturalKey); ok {
			results[i].Table = contexts[tableKey]
		}
	}
	return results
}

func ensureContext(contexts map[string]*models.TableContext, key, db, table string) *models.TableContext {
	if ctx, ok := contexts[key]; ok {
		return ctx
	}
	ctx := &models.TableContext{Database: db, Table: table}
	contexts[key] = ctx
	return ctx
}

// splitTableKey parses "database.table".
func splitTableKey(key string) (db, table string, ok bool) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// splitColumnKey parses "database.table.column".
func splitColumnKey(key string) (tableKey, db, table, column string, ok bool) {
	parts := strings.SplitN(key, ".", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", "", false
	}
	return parts[0] + "." + parts[1], parts[0], parts[1], parts[2], true
}
