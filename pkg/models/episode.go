package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
)

// Episode type tags.
const (
	EpisodeTypeSchema   = "schema"
	EpisodeTypeQuery    = "query"
	EpisodeTypeFeedback = "feedback"
	EpisodeTypePattern  = "pattern"
)

// EpisodeTypes lists every episode variant the engine knows about.
var EpisodeTypes = []string{
	EpisodeTypeSchema,
	EpisodeTypeQuery,
	EpisodeTypeFeedback,
	EpisodeTypePattern,
}

// Episode is an immutable, timestamped record of something that happened:
// a schema ingestion, a query run, user feedback, a learned pattern.
// Episodes are written once and never mutated.
type Episode interface {
	EpisodeType() string
	FactText() string
	Payload() map[string]any
	Validate() error
}

// SchemaEpisode records a schema-definition event, typically one ingestion
// run for a database.
type SchemaEpisode struct {
	Database    string
	Description string
	TableCount  int
	ColumnCount int
}

func (e SchemaEpisode) EpisodeType() string { return EpisodeTypeSchema }

func (e SchemaEpisode) FactText() string {
	return fmt.Sprintf("Schema for database %s indexed: %d tables, %d columns. %s",
		e.Database, e.TableCount, e.ColumnCount, e.Description)
}

func (e SchemaEpisode) Payload() map[string]any {
	return map[string]any{
		"database":     e.Database,
		"description":  e.Description,
		"table_count":  e.TableCount,
		"column_count": e.ColumnCount,
	}
}

func (e SchemaEpisode) Validate() error {
	if e.Database == "" {
		return fmt.Errorf("schema episode requires a database: %w", apperrors.ErrValidation)
	}
	return nil
}

// QueryEpisode records a natural-language question together with the SQL
// generated for it.
type QueryEpisode struct {
	Question   string
	SQL        string
	TablesUsed []string
	Success    bool
}

func (e QueryEpisode) EpisodeType() string { return EpisodeTypeQuery }

func (e QueryEpisode) FactText() string {
	outcome := "succeeded"
	if !e.Success {
		outcome = "failed"
	}
	text := fmt.Sprintf("Question %q %s", e.Question, outcome)
	if len(e.TablesUsed) > 0 {
		text += " using tables " + strings.Join(e.TablesUsed, ", ")
	}
	return text
}

func (e QueryEpisode) Payload() map[string]any {
	return map[string]any{
		"question":    e.Question,
		"sql":         e.SQL,
		"tables_used": e.TablesUsed,
		"success":     e.Success,
	}
}

func (e QueryEpisode) Validate() error {
	if e.Question == "" {
		return fmt.Errorf("query episode requires a question: %w", apperrors.ErrValidation)
	}
	return nil
}

// FeedbackEpisode records a user correction or rating on a prior query
// episode, linked by correlation id.
type FeedbackEpisode struct {
	Question     string
	GeneratedSQL string
	FeedbackText string
	Rating       int
	CorrectedSQL string
}

func (e FeedbackEpisode) EpisodeType() string { return EpisodeTypeFeedback }

func (e FeedbackEpisode) FactText() string {
	text := fmt.Sprintf("Feedback on question %q rated %d", e.Question, e.Rating)
	if e.FeedbackText != "" {
		text += ": " + e.FeedbackText
	}
	if e.CorrectedSQL != "" {
		text += " (corrected SQL provided)"
	}
	return text
}

func (e FeedbackEpisode) Payload() map[string]any {
	return map[string]any{
		"question":      e.Question,
		"generated_sql": e.GeneratedSQL,
		"feedback_text": e.FeedbackText,
		"rating":        e.Rating,
		"corrected_sql": e.CorrectedSQL,
	}
}

func (e FeedbackEpisode) Validate() error {
	if e.Question == "" {
		return fmt.Errorf("feedback episode requires a question: %w", apperrors.ErrValidation)
	}
	if e.Rating < 1 || e.Rating > 5 {
		return fmt.Errorf("feedback rating %d outside [1,5]: %w", e.Rating, apperrors.ErrValidation)
	}
	return nil
}

// PatternEpisode records a newly learned reusable query pattern.
type PatternEpisode struct {
	Name        string
	Description string
	Tables      []string
}

func (e PatternEpisode) EpisodeType() string { return EpisodeTypePattern }

func (e PatternEpisode) FactText() string {
	text := fmt.Sprintf("Learned query pattern '%s'", e.Name)
	if e.Description != "" {
		text += ": " + e.Description
	}
	if len(e.Tables) > 0 {
		text += " over tables " + strings.Join(e.Tables, ", ")
	}
	return text
}

func (e PatternEpisode) Payload() map[string]any {
	return map[string]any{
		"name":        e.Name,
		"description": e.Description,
		"tables":      e.Tables,
	}
}

func (e PatternEpisode) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("pattern episode requires a name: %w", apperrors.ErrValidation)
	}
	return nil
}

// EncodeEpisode converts a typed episode into the generic store
// representation. CreatedAt and ID are assigned by the episode indexer.
func EncodeEpisode(e Episode, groupScope string, correlationID uuid.UUID) *GenericEpisode {
	return &GenericEpisode{
		EpisodeType:   e.EpisodeType(),
		GroupScope:    groupScope,
		CorrelationID: correlationID,
		Payload:       e.Payload(),
		FactText:      e.FactText(),
	}
}

// DecodeEpisode converts a generic store episode back into its typed
// variant. Missing payload fields decode to variant defaults.
func DecodeEpisode(g *GenericEpisode) (Episode, error) {
	p := g.Payload
	if p == nil {
		p = map[string]any{}
	}

	switch g.EpisodeType {
	case EpisodeTypeSchema:
		return SchemaEpisode{
			Database:    attrString(p, "database", ""),
			Description: attrString(p, "description", ""),
			TableCount:  attrInt(p, "table_count", 0),
			ColumnCount: attrInt(p, "column_count", 0),
		}, nil
	case EpisodeTypeQuery:
		return QueryEpisode{
			Question:   attrString(p, "question", ""),
			SQL:        attrString(p, "sql", ""),
			TablesUsed: attrStringSlice(p, "tables_used"),
			Success:    attrBool(p, "success", false),
		}, nil
	case EpisodeTypeFeedback:
		return FeedbackEpisode{
			Question:     attrString(p, "question", ""),
			GeneratedSQL: attrString(p, "generated_sql", ""),
			FeedbackText: attrString(p, "feedback_text", ""),
			Rating:       attrInt(p, "rating", 0),
			CorrectedSQL: attrString(p, "corrected_sql", ""),
		}, nil
	case EpisodeTypePattern:
		return PatternEpisode{
			Name:        attrString(p, "name", ""),
			Description: attrString(p, "description", ""),
			Tables:      attrStringSlice(p, "tables"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown episode type %q: %w", g.EpisodeType, apperrors.ErrMalformedInput)
	}
}

// EpisodeWindow builds a validity window for an episode fact.
func EpisodeWindow(from, until time.Time) (*time.Time, *time.Time) {
	var f, u *time.Time
	if !from.IsZero() {
		f = &from
	}
	if !until.IsZero() {
		u = &until
	}
	return f, u
}
