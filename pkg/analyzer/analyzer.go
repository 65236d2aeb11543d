package analyzer

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Query intents.
const (
	IntentLookup      = "lookup"
	IntentAggregation = "aggregation"
	IntentJoin        = "join"
	IntentTemporal    = "temporal"
	IntentUnknown     = "unknown"
)

// Complexity classes, ordered.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// QueryAnalysis classifies a natural-language question and extracts
// candidate entity/table/term mentions for downstream resolution.
type QueryAnalysis struct {
	Intent         string   `json:"intent"`
	Complexity     string   `json:"complexity"`
	CandidateTerms []string `json:"candidate_terms"`
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "by": {}, "with": {}, "and": {}, "or": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"do": {}, "does": {}, "did": {}, "have": {}, "has": {}, "had": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "whose": {},
	"how": {}, "when": {}, "where": {}, "why": {},
	"show": {}, "list": {}, "give": {}, "get": {}, "find": {}, "me": {},
	"all": {}, "any": {}, "each": {}, "per": {}, "from": {}, "that": {},
	"this": {}, "these": {}, "those": {}, "many": {}, "much": {},
	"i": {}, "we": {}, "you": {}, "my": {}, "our": {}, "their": {},
	"please": {}, "can": {}, "could": {}, "would": {}, "should": {},
}

var aggregationCues = []string{
	"count", "sum", "total", "average", "avg", "mean", "median",
	"min", "max", "minimum", "maximum", "how many", "how much",
	"number of", "breakdown", "group", "grouped", "per ", "top ",
}

var joinCues = []string{
	"join", "combine", "combined", "together with", "along with",
	"and their", "and its", "with their", "for each", "across",
	"related", "associated", "matching",
}

var temporalCues = []string{
	"yesterday", "today", "last week", "last month", "last year",
	"this week", "this month", "this year", "trend", "over time",
	"daily", "weekly", "monthly", "quarterly", "yearly", "since",
	"between", "before", "after", "recent", "latest",
}

var comparisonCues = []string{
	"more than", "less than", "greater", "fewer", "at least",
	"at most", "above", "below", "exceeds", "versus", "vs",
	"compared", "higher", "lower",
}

// Analyze classifies a question into an intent and complexity class and
// extracts candidate terms. Pure and deterministic: identical input always
// yields identical output, which retrieval tests rely on.
func Analyze(question string, history []string) QueryAnalysis {
	lower := strings.ToLower(question)

	terms := extractTerms(lower)
	hasAgg := containsAny(lower, aggregationCues)
	hasJoin := containsAny(lower, joinCues)
	hasTemporal := containsAny(lower, temporalCues)
	hasComparison := containsAny(lower, comparisonCues)

	intent := IntentUnknown
	switch {
	case hasAgg:
		intent = IntentAggregation
	case hasJoin:
		intent = IntentJoin
	case hasTemporal:
		intent = IntentTemporal
	case len(terms) > 0:
		intent = IntentLookup
	}

	return QueryAnalysis{
		Intent:         intent,
		Complexity:     classifyComplexity(terms, hasAgg, hasJoin, hasComparison, len(history)),
		CandidateTerms: terms,
	}
}

func classifyComplexity(terms []string, hasAgg, hasJoin, hasComparison bool, historyLen int) string {
	score := len(terms)
	if hasAgg {
		score += 2
	}
	if hasJoin {
		score += 2
	}
	if hasComparison {
		score += 2
	}
	if historyLen > 2 {
		score += 2
	} else if historyLen > 0 {
		score++
	}

	switch {
	case score <= 3:
		return ComplexitySimple
	case score <= 7:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

// extractTerms returns singularized unigrams plus adjacent bigrams, minus
// stopwords, deduplicated in first-seen order.
func extractTerms(lower string) []string {
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})

	var kept []string
	for _, w := range words {
		if _, stop := stopwords[w]; stop || len(w) < 2 {
			continue
		}
		kept = append(kept, inflection.Singular(w))
	}

	seen := make(map[string]struct{}, len(kept)*2)
	terms := make([]string, 0, len(kept)*2)
	add := func(t string) {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			terms = append(terms, t)
		}
	}
	for _, w := range kept {
		add(w)
	}
	for i := 0; i+1 < len(kept); i++ {
		add(kept[i] + " " + kept[i+1])
	}
	return terms
}

func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}

// MatchTerm resolves a surface mention against a vocabulary of known terms
// (business entity names, synonyms). Exact match wins; otherwise the
// closest term by Levenshtein similarity at or above minSimilarity.
// Ties break lexicographically so matching is deterministic.
func MatchTerm(mention string, vocabulary []string, minSimilarity float64) (string, bool) {
	m := inflection.Singular(strings.ToLower(strings.TrimSpace(mention)))
	if m == "" {
		return "", false
	}

	sorted := make([]string, len(vocabulary))
	copy(sorted, vocabulary)
	sort.Strings(sorted)

	best := ""
	bestScore := 0.0
	for _, term := range sorted {
		t := inflection.Singular(strings.ToLower(term))
		if t == m {
			return term, true
		}
		score := levenshtein.RatioForStrings([]rune(m), []rune(t), levenshtein.DefaultOptions)
		if score > bestScore {
			best, bestScore = term, score
		}
	}
	if bestScore >= minSimilarity {
		return best, true
	}
	return "", false
}
