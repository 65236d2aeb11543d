package models

import (
	"fmt"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
)

// Edge type tags.
const (
	EdgeTypeHasColumn     = "has_column"
	EdgeTypeForeignKey    = "foreign_key"
	EdgeTypeEntityMapping = "entity_mapping"
	EdgeTypeColumnMapping = "column_mapping"
	EdgeTypePatternUses   = "pattern_uses_table"
	EdgeTypeSynonym       = "synonym"
	EdgeTypeBelongsTo     = "belongs_to_domain"
	EdgeTypeContains      = "contains_entity"
	EdgeTypeHasRule       = "has_rule"
	EdgeTypeAppliesTo     = "applies_to"
	EdgeTypeHasCodeSet    = "has_code_set"
	EdgeTypeDerivedFrom   = "derived_from"
)

// EdgeTypes lists every edge variant the engine knows about.
var EdgeTypes = []string{
	EdgeTypeHasColumn,
	EdgeTypeForeignKey,
	EdgeTypeEntityMapping,
	EdgeTypeColumnMapping,
	EdgeTypePatternUses,
	EdgeTypeSynonym,
	EdgeTypeBelongsTo,
	EdgeTypeContains,
	EdgeTypeHasRule,
	EdgeTypeAppliesTo,
	EdgeTypeHasCodeSet,
	EdgeTypeDerivedFrom,
}

// Edge is a typed, directed, fact-bearing relation between two node natural
// keys. The natural key of an edge is derived from its type and endpoints.
type Edge interface {
	TypeTag() string
	FromKey() string
	ToKey() string
	FactText() string
	Attributes() map[string]any
}

// EdgeNaturalKey derives the stable identity of an edge from its type tag
// and endpoint keys.
func EdgeNaturalKey(e Edge) string {
	return fmt.Sprintf("%s(%s->%s)", e.TypeTag(), e.FromKey(), e.ToKey())
}

// EdgeEndpointTypes reports the node variants an edge's endpoints must
// reference. ok is false for edges whose endpoints are free terms rather
// than nodes (Synonym), which skip endpoint existence checks.
func EdgeEndpointTypes(e Edge) (fromTag, toTag string, ok bool) {
	switch e.(type) {
	case HasColumnEdge:
		return NodeTypeTable, NodeTypeColumn, true
	case ForeignKeyEdge:
		return NodeTypeColumn, NodeTypeColumn, true
	case EntityMappingEdge:
		return NodeTypeBusinessEntity, NodeTypeTable, true
	case ColumnMappingEdge:
		return NodeTypeColumn, NodeTypeBusinessEntity, true
	case PatternUsesTableEdge:
		return NodeTypeQueryPattern, NodeTypeTable, true
	case BelongsToDomainEdge:
		return NodeTypeBusinessEntity, NodeTypeDomain, true
	case ContainsEntityEdge:
		return NodeTypeDomain, NodeTypeBusinessEntity, true
	case HasRuleEdge:
		return NodeTypeBusinessEntity, NodeTypeBusinessRule, true
	case AppliesToEdge:
		return NodeTypeBusinessRule, NodeTypeTable, true
	case HasCodeSetEdge:
		return NodeTypeColumn, NodeTypeCodeSet, true
	case DerivedFromEdge:
		return NodeTypeColumn, NodeTypeColumn, true
	default:
		return "", "", false
	}
}

// Validator is implemented by edges whose attributes carry contract bounds.
// Validation runs before any store call.
type Validator interface {
	Validate() error
}

func validateConfidence(kind string, confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("%s confidence %v outside [0,1]: %w", kind, confidence, apperrors.ErrValidation)
	}
	return nil
}

// HasColumnEdge links a table to one of its columns.
type HasColumnEdge struct {
	Database string
	Table    string
	Column   string
	Ordinal  int
}

func (e HasColumnEdge) TypeTag() string { return EdgeTypeHasColumn }
func (e HasColumnEdge) FromKey() string { return e.Database + "." + e.Table }
func (e HasColumnEdge) ToKey() string   { return e.Database + "." + e.Table + "." + e.Column }

func (e HasColumnEdge) FactText() string {
	return fmt.Sprintf("Table %s.%s has column %s at position %d",
		e.Database, e.Table, e.Column, e.Ordinal)
}

func (e HasColumnEdge) Attributes() map[string]any {
	return map[string]any{
		"database": e.Database,
		"table":    e.Table,
		"column":   e.Column,
		"ordinal":  e.Ordinal,
	}
}

// ForeignKeyEdge links a referencing column to the column it references.
type ForeignKeyEdge struct {
	Database     string
	Table        string
	Column       string
	TargetTable  string
	TargetColumn string
	Constraint   string
}

func (e ForeignKeyEdge) TypeTag() string { return EdgeTypeForeignKey }

func (e ForeignKeyEdge) FromKey() string {
	return e.Database + "." + e.Table + "." + e.Column
}

func (e ForeignKeyEdge) ToKey() string {
	return e.Database + "." + e.TargetTable + "." + e.TargetColumn
}

func (e ForeignKeyEdge) FactText() string {
	text := fmt.Sprintf("Column %s.%s.%s references %s.%s.%s",
		e.Database, e.Table, e.Column, e.Database, e.TargetTable, e.TargetColumn)
	if e.Constraint != "" {
		text += " via constraint " + e.Constraint
	}
	return text
}

func (e ForeignKeyEdge) Attributes() map[string]any {
	return map[string]any{
		"database":      e.Database,
		"table":         e.Table,
		"column":        e.Column,
		"target_table":  e.TargetTable,
		"target_column": e.TargetColumn,
		"constraint":    e.Constraint,
	}
}

// EntityMappingEdge maps a business entity onto a physical table.
type EntityMappingEdge struct {
	Entity      string
	Database    string
	Table       string
	Confidence  float64
	MappingType string
}

func (e EntityMappingEdge) TypeTag() string { return EdgeTypeEntityMapping }
func (e EntityMappingEdge) FromKey() string { return e.Entity }
func (e EntityMappingEdge) ToKey() string   { return e.Database + "." + e.Table }

func (e EntityMappingEdge) FactText() string {
	return fmt.Sprintf("Business entity '%s' maps to table %s.%s (%s, confidence %.2f)",
		e.Entity, e.Database, e.Table, e.MappingType, e.Confidence)
}

func (e EntityMappingEdge) Attributes() map[string]any {
	return map[string]any{
		"entity":       e.Entity,
		"database":     e.Database,
		"table":        e.Table,
		"confidence":   e.Confidence,
		"mapping_type": e.MappingType,
	}
}

func (e EntityMappingEdge) Validate() error {
	return validateConfidence("entity mapping", e.Confidence)
}

// ColumnMappingEdge maps a physical column onto a business entity.
type ColumnMappingEdge struct {
	Database   string
	Table      string
	Column     string
	Entity     string
	Confidence float64
}

func (e ColumnMappingEdge) TypeTag() string { return EdgeTypeColumnMapping }

func (e ColumnMappingEdge) FromKey() string {
	return e.Database + "." + e.Table + "." + e.Column
}

func (e ColumnMappingEdge) ToKey() string { return e.Entity }

func (e ColumnMappingEdge) FactText() string {
	return fmt.Sprintf("Column %s.%s.%s maps to entity '%s' (confidence %.2f)",
		e.Database, e.Table, e.Column, e.Entity, e.Confidence)
}

func (e ColumnMappingEdge) Attributes() map[string]any {
	return map[string]any{
		"database":   e.Database,
		"table":      e.Table,
		"column":     e.Column,
		"entity":     e.Entity,
		"confidence": e.Confidence,
	}
}

func (e ColumnMappingEdge) Validate() error {
	return validateConfidence("column mapping", e.Confidence)
}

// PatternUsesTableEdge records that a query pattern reads a table.
type PatternUsesTableEdge struct {
	Pattern   string
	Database  string
	Table     string
	Role      string
	Frequency int
}

func (e PatternUsesTableEdge) TypeTag() string { return EdgeTypePatternUses }
func (e PatternUsesTableEdge) FromKey() string { return e.Pattern }
func (e PatternUsesTableEdge) ToKey() string   { return e.Database + "." + e.Table }

func (e PatternUsesTableEdge) FactText() string {
	return fmt.Sprintf("Query pattern '%s' uses table %s.%s as %s (seen %d times)",
		e.Pattern, e.Database, e.Table, e.Role, e.Frequency)
}

func (e PatternUsesTableEdge) Attributes() map[string]any {
	return map[string]any{
		"pattern":   e.Pattern,
		"database":  e.Database,
		"table":     e.Table,
		"role":      e.Role,
		"frequency": e.Frequency,
	}
}

// SynonymEdge links a business term to an equivalent surface form.
type SynonymEdge struct {
	Term       string
	Synonym    string
	Confidence float64
}

func (e SynonymEdge) TypeTag() string { return EdgeTypeSynonym }
func (e SynonymEdge) FromKey() string { return e.Term }
func (e SynonymEdge) ToKey() string   { return e.Synonym }

func (e SynonymEdge) FactText() string {
	return fmt.Sprintf("Term '%s' is a synonym of '%s' (confidence %.2f)",
		e.Synonym, e.Term, e.Confidence)
}

func (e SynonymEdge) Attributes() map[string]any {
	return map[string]any{
		"term":       e.Term,
		"synonym":    e.Synonym,
		"confidence": e.Confidence,
	}
}

func (e SynonymEdge) Validate() error {
	return validateConfidence("synonym", e.Confidence)
}

// BelongsToDomainEdge places a business entity inside a domain.
type BelongsToDomainEdge struct {
	Entity string
	Domain string
}

func (e BelongsToDomainEdge) TypeTag() string { return EdgeTypeBelongsTo }
func (e BelongsToDomainEdge) FromKey() string { return e.Entity }
func (e BelongsToDomainEdge) ToKey() string   { return e.Domain }

func (e BelongsToDomainEdge) FactText() string {
	return fmt.Sprintf("Business entity '%s' belongs to domain '%s'", e.Entity, e.Domain)
}

func (e BelongsToDomainEdge) Attributes() map[string]any {
	return map[string]any{"entity": e.Entity, "domain": e.Domain}
}

// ContainsEntityEdge is the inverse containment from domain to entity.
type ContainsEntityEdge struct {
	Domain string
	Entity string
}

func (e ContainsEntityEdge) TypeTag() string { return EdgeTypeContains }
func (e ContainsEntityEdge) FromKey() string { return e.Domain }
func (e ContainsEntityEdge) ToKey() string   { return e.Entity }

func (e ContainsEntityEdge) FactText() string {
	return fmt.Sprintf("Domain '%s' contains entity '%s'", e.Domain, e.Entity)
}

func (e ContainsEntityEdge) Attributes() map[string]any {
	return map[string]any{"domain": e.Domain, "entity": e.Entity}
}

// HasRuleEdge attaches a business rule to a business entity.
type HasRuleEdge struct {
	Entity string
	Rule   string
}

func (e HasRuleEdge) TypeTag() string { return EdgeTypeHasRule }
func (e HasRuleEdge) FromKey() string { return e.Entity }
func (e HasRuleEdge) ToKey() string   { return e.Rule }

func (e HasRuleEdge) FactText() string {
	return fmt.Sprintf("Business entity '%s' has rule '%s'", e.Entity, e.Rule)
}

func (e HasRuleEdge) Attributes() map[string]any {
	return map[string]any{"entity": e.Entity, "rule": e.Rule}
}

// AppliesToEdge scopes a business rule to a physical table.
type AppliesToEdge struct {
	Rule     string
	Database string
	Table    string
}

func (e AppliesToEdge) TypeTag() string { return EdgeTypeAppliesTo }
func (e AppliesToEdge) FromKey() string { return e.Rule }
func (e AppliesToEdge) ToKey() string   { return e.Database + "." + e.Table }

func (e AppliesToEdge) FactText() string {
	return fmt.Sprintf("Business rule '%s' applies to table %s.%s", e.Rule, e.Database, e.Table)
}

func (e AppliesToEdge) Attributes() map[string]any {
	return map[string]any{"rule": e.Rule, "database": e.Database, "table": e.Table}
}

// HasCodeSetEdge links a column to the code set decoding its values.
type HasCodeSetEdge struct {
	Database string
	Table    string
	Column   string
	CodeSet  string
}

func (e HasCodeSetEdge) TypeTag() string { return EdgeTypeHasCodeSet }

func (e HasCodeSetEdge) FromKey() string {
	return e.Database + "." + e.Table + "." + e.Column
}

func (e HasCodeSetEdge) ToKey() string { return e.CodeSet }

func (e HasCodeSetEdge) FactText() string {
	return fmt.Sprintf("Column %s.%s.%s uses code set '%s'",
		e.Database, e.Table, e.Column, e.CodeSet)
}

func (e HasCodeSetEdge) Attributes() map[string]any {
	return map[string]any{
		"database": e.Database,
		"table":    e.Table,
		"column":   e.Column,
		"code_set": e.CodeSet,
	}
}

// DerivedFromEdge records column-level lineage.
type DerivedFromEdge struct {
	Database       string
	Table          string
	Column         string
	SourceTable    string
	SourceColumn   string
	Transformation string
}

func (e DerivedFromEdge) TypeTag() string { return EdgeTypeDerivedFrom }

func (e DerivedFromEdge) FromKey() string {
	return e.Database + "." + e.Table + "." + e.Column
}

func (e DerivedFromEdge) ToKey() string {
	return e.Database + "." + e.SourceTable + "." + e.SourceColumn
}

func (e DerivedFromEdge) FactText() string {
	text := fmt.Sprintf("Column %s.%s.%s is derived from %s.%s.%s",
		e.Database, e.Table, e.Column, e.Database, e.SourceTable, e.SourceColumn)
	if e.Transformation != "" {
		text += " by " + e.Transformation
	}
	return text
}

func (e DerivedFromEdge) Attributes() map[string]any {
	return map[string]any{
		"database":       e.Database,
		"table":          e.Table,
		"column":         e.Column,
		"source_table":   e.SourceTable,
		"source_column":  e.SourceColumn,
		"transformation": e.Transformation,
	}
}

// EncodeEdge converts a typed edge into the generic store representation.
func EncodeEdge(e Edge, groupScope string) *GenericEdge {
	return &GenericEdge{
		TypeTag:    e.TypeTag(),
		NaturalKey: EdgeNaturalKey(e),
		GroupScope: groupScope,
		FromKey:    e.FromKey(),
		ToKey:      e.ToKey(),
		Attributes: e.Attributes(),
		FactText:   e.FactText(),
	}
}

// DecodeEdge converts a generic store edge back into its typed variant.
// Missing attributes decode to variant defaults.
func DecodeEdge(g *GenericEdge) (Edge, error) {
	a := g.Attributes
	if a == nil {
		a = map[string]any{}
	}

	switch g.TypeTag {
	case EdgeTypeHasColumn:
		return HasColumnEdge{
			Database: attrString(a, "database", ""),
			Table:    attrString(a, "table", ""),
			Column:   attrString(a, "column", ""),
			Ordinal:  attrInt(a, "ordinal", 0),
		}, nil
	case EdgeTypeForeignKey:
		return ForeignKeyEdge{
			Database:     attrString(a, "database", ""),
			Table:        attrString(a, "table", ""),
			Column:       attrString(a, "column", ""),
			TargetTable:  attrString(a, "target_table", ""),
			TargetColumn: attrString(a, "target_column", ""),
			Constraint:   attrString(a, "constraint", ""),
		}, nil
	case EdgeTypeEntityMapping:
		return EntityMappingEdge{
			Entity:      attrString(a, "entity", ""),
			Database:    attrString(a, "database", ""),
			Table:       attrString(a, "table", ""),
			Confidence:  attrFloat(a, "confidence", 1.0),
			MappingType: attrString(a, "mapping_type", "direct"),
		}, nil
	case EdgeTypeColumnMapping:
		return ColumnMappingEdge{
			Database:   attrString(a, "database", ""),
			Table:      attrString(a, "table", ""),
			Column:     attrString(a, "column", ""),
			Entity:     attrString(a, "entity", ""),
			Confidence: attrFloat(a, "confidence", 1.0),
		}, nil
	case EdgeTypePatternUses:
		return PatternUsesTableEdge{
			Pattern:   attrString(a, "pattern", ""),
			Database:  attrString(a, "database", ""),
			Table:     attrString(a, "table", ""),
			Role:      attrString(a, "role", "source"),
			Frequency: attrInt(a, "frequency", 0),
		}, nil
	case EdgeTypeSynonym:
		return SynonymEdge{
			Term:       attrString(a, "term", ""),
			Synonym:    attrString(a, "synonym", ""),
			Confidence: attrFloat(a, "confidence", 1.0),
		}, nil
	case EdgeTypeBelongsTo:
		return BelongsToDomainEdge{
			Entity: attrString(a, "entity", ""),
			Domain: attrString(a, "domain", ""),
		}, nil
	case EdgeTypeContains:
		return ContainsEntityEdge{
			Domain: attrString(a, "domain", ""),
			Entity: attrString(a, "entity", ""),
		}, nil
	case EdgeTypeHasRule:
		return HasRuleEdge{
			Entity: attrString(a, "entity", ""),
			Rule:   attrString(a, "rule", ""),
		}, nil
	case EdgeTypeAppliesTo:
		return AppliesToEdge{
			Rule:     attrString(a, "rule", ""),
			Database: attrString(a, "database", ""),
			Table:    attrString(a, "table", ""),
		}, nil
	case EdgeTypeHasCodeSet:
		return HasCodeSetEdge{
			Database: attrString(a, "database", ""),
			Table:    attrString(a, "table", ""),
			Column:   attrString(a, "column", ""),
			CodeSet:  attrString(a, "code_set", ""),
		}, nil
	case EdgeTypeDerivedFrom:
		return DerivedFromEdge{
			Database:       attrString(a, "database", ""),
			Table:          attrString(a, "table", ""),
			Column:         attrString(a, "column", ""),
			SourceTable:    attrString(a, "source_table", ""),
			SourceColumn:   attrString(a, "source_column", ""),
			Transformation: attrString(a, "transformation", ""),
		}, nil
	default:
		return nil, fmt.Errorf("unknown edge type %q: %w", g.TypeTag, apperrors.ErrMalformedInput)
	}
}
