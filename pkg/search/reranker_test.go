package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapilot-ai/memory-engine/pkg/models"
)

func fixedReranker(now time.Time) *Reranker {
	r := NewReranker()
	r.now = func() time.Time { return now }
	return r
}

func candidate(typeTag, key string, similarity float64) models.ScoredCandidate {
	return models.ScoredCandidate{
		TypeTag:    typeTag,
		NaturalKey: key,
		FactText:   key,
		Similarity: similarity,
		Confidence: 1.0,
	}
}

func TestRerankOrdersByScore(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := fixedReranker(now)

	candidates := []models.ScoredCandidate{
		candidate(models.NodeTypeBusinessEntity, "Customer", 0.4),
		candidate(models.NodeTypeBusinessEntity, "Order", 0.9),
		candidate(models.NodeTypeBusinessEntity, "Invoice", 0.6),
	}

	results := r.Rerank(candidates, models.DefaultSearchWeights())
	require.Len(t, results, 3)
	assert.Equal(t, "Order", results[0].NaturalKey)
	assert.Equal(t, "Invoice", results[1].NaturalKey)
	assert.Equal(t, "Customer", results[2].NaturalKey)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRerankIsDeterministic(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := fixedReranker(now)

	candidates := []models.ScoredCandidate{
		candidate(models.NodeTypeBusinessEntity, "Customer", 0.5),
		candidate(models.NodeTypeBusinessEntity, "Order", 0.5),
		candidate(models.NodeTypeBusinessEntity, "Invoice", 0.5),
	}

	first := r.Rerank(candidates, models.DefaultSearchWeights())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Rerank(candidates, models.DefaultSearchWeights()))
	}

	// Fully tied signals order by natural key.
	assert.Equal(t, "Customer", first[0].NaturalKey)
	assert.Equal(t, "Invoice", first[1].NaturalKey)
	assert.Equal(t, "Order", first[2].NaturalKey)
}

func TestRerankRecencyDecay(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := fixedReranker(now)

	fresh := candidate(models.NodeTypeBusinessEntity, "Fresh", 0.5)
	fresh.LastReferenced = now

	halfLife := candidate(models.NodeTypeBusinessEntity, "Aging", 0.5)
	halfLife.LastReferenced = now.Add(-r.HalfLife)

	stale := candidate(models.NodeTypeBusinessEntity, "Stale", 0.5)
	stale.LastReferenced = now.Add(-10 * r.HalfLife)

	results := r.Rerank([]models.ScoredCandidate{stale, fresh, halfLife}, models.DefaultSearchWeights())
	require.Len(t, results, 3)

	assert.Equal(t, "Fresh", results[0].NaturalKey)
	assert.Equal(t, "Aging", results[1].NaturalKey)
	assert.Equal(t, "Stale", results[2].NaturalKey)

	// One half-life halves the recency signal.
	assert.InDelta(t, 1.0, results[0].Signals.Recency, 1e-9)
	assert.InDelta(t, 0.5, results[1].Signals.Recency, 1e-9)
}

func TestRerankFrequencySaturates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := fixedReranker(now)

	light := candidate(models.NodeTypeBusinessEntity, "Light", 0.5)
	light.ReferenceCount = 10
	light.LastReferenced = now

	heavy := candidate(models.NodeTypeBusinessEntity, "Heavy", 0.5)
	heavy.ReferenceCount = 100000
	heavy.LastReferenced = now

	results := r.Rerank([]models.ScoredCandidate{light, heavy}, models.DefaultSearchWeights())
	require.Len(t, results, 2)

	var lightSignals, heavySignals models.SearchSignals
	for _, res := range results {
		if res.NaturalKey == "Light" {
			lightSignals = res.Signals
		} else {
			heavySignals = res.Signals
		}
	}
	assert.InDelta(t, 0.1, lightSignals.Frequency, 1e-9)
	assert.Equal(t, 1.0, heavySignals.Frequency)
}

func TestRerankScoreIsClamped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := fixedReranker(now)

	c := candidate(models.NodeTypeBusinessEntity, "Customer", 1.0)
	c.ReferenceCount = 1000
	c.LastReferenced = now

	// Weights that sum above 1 still produce a score within [0,1].
	heavy := models.SearchWeights{Similarity: 1, Recency: 1, Frequency: 1, Confidence: 1}
	results := r.Rerank([]models.ScoredCandidate{c}, heavy)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestRerankPromotesColumnMatchToTable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := fixedReranker(now)

	table := candidate(models.NodeTypeTable, "payments.card_tnx", 0.3)
	column := candidate(models.NodeTypeColumn, "payments.card_tnx.card_id", 0.9)
	other := candidate(models.NodeTypeTable, "hr.employees", 0.5)

	results := r.Rerank([]models.ScoredCandidate{table, column, other}, models.DefaultSearchWeights())

	var tableResult *models.SchemaSearchResult
	for i := range results {
		if results[i].NaturalKey == "payments.card_tnx" {
			tableResult = &results[i]
		}
	}
	require.NotNil(t, tableResult)
	require.NotNil(t, tableResult.Table)

	// The weakly matched table inherits its best column's strength.
	assert.Equal(t, 0.9, tableResult.Similarity)
	assert.Equal(t, []string{"card_id"}, tableResult.Table.MatchedColumns)
	assert.Greater(t, tableResult.Table.BestColumn, tableResult.Table.TableScore)

	// The promoted table ranks ahead of the unrelated table.
	var tableRank, otherRank int
	for i, res := range results {
		switch res.NaturalKey {
		case "payments.card_tnx":
			tableRank = i
		case "hr.employees":
			otherRank = i
		}
	}
	assert.Less(t, tableRank, otherRank)
}

func TestRerankSynthesizesTableForOrphanColumns(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := fixedReranker(now)

	column := candidate(models.NodeTypeColumn, "payments.card_tnx.card_id", 0.9)
	results := r.Rerank([]models.ScoredCandidate{column}, models.DefaultSearchWeights())
	require.Len(t, results, 2)

	var synthesized *models.SchemaSearchResult
	for i := range results {
		if results[i].TypeTag == models.NodeTypeTable {
			synthesized = &results[i]
		}
	}
	require.NotNil(t, synthesized)
	assert.Equal(t, "payments.card_tnx", synthesized.NaturalKey)
	assert.Equal(t, 0.9, synthesized.Similarity)
	require.NotNil(t, synthesized.Table)
	assert.Equal(t, "payments", synthesized.Table.Database)
	assert.Equal(t, "card_tnx", synthesized.Table.Table)
}

func TestRerankTieBreaksBySimilarityThenKey(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewReranker()
	r.now = func() time.Time { return now }

	// Identical blended scores, different similarity.
	a := candidate(models.NodeTypeBusinessEntity, "Alpha", 0.6)
	b := candidate(models.NodeTypeBusinessEntity, "Beta", 0.6)
	weights := models.SearchWeights{Similarity: 0} // score ties regardless of similarity

	a.Similarity, b.Similarity = 0.2, 0.8
	results := r.Rerank([]models.ScoredCandidate{a, b}, weights)
	require.Len(t, results, 2)
	assert.Equal(t, "Beta", results[0].NaturalKey)
}

func TestRerankRecencyWeightMonotonicity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := fixedReranker(now)

	// Keys chosen so a recency tie orders the newer candidate last.
	newer := candidate(models.NodeTypeBusinessEntity, "Zeta", 0.5)
	newer.LastReferenced = now
	older := candidate(models.NodeTypeBusinessEntity, "Alpha", 0.5)
	older.LastReferenced = now.Add(-10 * r.HalfLife)

	rankOfNewer := func(recencyWeight float64) int {
		weights := models.SearchWeights{Similarity: 0.5, Recency: recencyWeight, Frequency: 0.1, Confidence: 0.1}
		results := r.Rerank([]models.ScoredCandidate{newer, older}, weights)
		require.Len(t, results, 2)
		for i, res := range results {
			if res.NaturalKey == "Zeta" {
				return i
			}
		}
		t.Fatal("newer candidate missing from results")
		return -1
	}

	prev := rankOfNewer(0.0)
	for _, w := range []float64{0.1, 0.3, 0.6, 1.0} {
		rank := rankOfNewer(w)
		assert.LessOrEqual(t, rank, prev, "recency weight %v demoted the newer candidate", w)
		prev = rank
	}
	assert.Equal(t, 0, prev)

	// Heavy weights must not flatten strong candidates into a tie that
	// the natural-key order then resolves against the newer one.
	strongNewer := candidate(models.NodeTypeBusinessEntity, "Zeta", 0.9)
	strongNewer.LastReferenced = now
	strongOlder := candidate(models.NodeTypeBusinessEntity, "Alpha", 0.9)
	strongOlder.LastReferenced = now.Add(-r.HalfLife)

	for _, w := range []float64{0.05, 0.5, 1.0, 2.0} {
		weights := models.SearchWeights{Similarity: 1.0, Recency: w}
		results := r.Rerank([]models.ScoredCandidate{strongNewer, strongOlder}, weights)
		require.Len(t, results, 2)
		assert.Equal(t, "Zeta", results[0].NaturalKey, "recency weight %v", w)
		assert.Greater(t, results[0].Score, results[1].Score)
	}
}
