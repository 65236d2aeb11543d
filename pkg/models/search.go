package models

import "time"

// SearchWeights tunes the reranking signal blend. Weights are non-negative
// and need not sum to 1; the blended score is clamped to [0,1].
type SearchWeights struct {
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	Frequency  float64 `json:"frequency"`
	Confidence float64 `json:"confidence"`
}

// DefaultSearchWeights returns the standard signal blend: similarity
// dominates, recency and usage history break near-ties.
func DefaultSearchWeights() SearchWeights {
	return SearchWeights{
		Similarity: 0.5,
		Recency:    0.2,
		Frequency:  0.15,
		Confidence: 0.15,
	}
}

// SearchOptions scopes a retrieval call.
type SearchOptions struct {
	TopK                int
	SimilarityThreshold float64
	TimeWindow          TimeWindow
	GroupScope          string
	Weights             SearchWeights
}

// SimilarityHit is a raw store result: a node or an edge (exactly one is
// non-nil) with its raw similarity score.
type SimilarityHit struct {
	Entity *GenericEntity
	Edge   *GenericEdge
	Score  float64
}

// ScoredCandidate is a decoded similarity hit carrying the usage signals
// the reranker blends.
type ScoredCandidate struct {
	Node           Node
	Edge           Edge
	TypeTag        string
	NaturalKey     string
	FactText       string
	Similarity     float64
	Confidence     float64
	ReferenceCount int64
	LastReferenced time.Time
	CreatedAt      time.Time
}

// SearchSignals are the normalized per-signal values behind a final score.
type SearchSignals struct {
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	Frequency  float64 `json:"frequency"`
	Confidence float64 `json:"confidence"`
}

// TableContext aggregates a table's own match with its matched columns so
// retrieval returns table-level context even when the literal match was a
// column or business term.
type TableContext struct {
	Database       string   `json:"database"`
	Table          string   `json:"table"`
	TableScore     float64  `json:"table_score"`
	BestColumn     float64  `json:"best_column_score"`
	MatchedColumns []string `json:"matched_columns,omitempty"`
}

// SchemaSearchResult is one entry of the final ranked schema context.
type SchemaSearchResult struct {
	TypeTag    string        `json:"type_tag"`
	NaturalKey string        `json:"natural_key"`
	FactText   string        `json:"fact_text"`
	Similarity float64       `json:"similarity"`
	Score      float64       `json:"score"`
	Signals    SearchSignals `json:"signals"`
	Table      *TableContext `json:"table,omitempty"`
	Node       Node          `json:"-"`
	Edge       Edge          `json:"-"`
}
