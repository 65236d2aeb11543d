package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
)

// Node type tags. These are stored alongside attributes and drive decoding,
// so they must stay stable across schema versions.
const (
	NodeTypeTable          = "table"
	NodeTypeColumn         = "column"
	NodeTypeBusinessEntity = "business_entity"
	NodeTypeQueryPattern   = "query_pattern"
	NodeTypeDomain         = "domain"
	NodeTypeBusinessRule   = "business_rule"
	NodeTypeCodeSet        = "code_set"
)

// NodeTypes lists every node variant the engine knows about.
var NodeTypes = []string{
	NodeTypeTable,
	NodeTypeColumn,
	NodeTypeBusinessEntity,
	NodeTypeQueryPattern,
	NodeTypeDomain,
	NodeTypeBusinessRule,
	NodeTypeCodeSet,
}

// Node is a typed schema-knowledge entity. Identity is the natural key, not
// a surrogate id: upserting the same key twice updates the stored entity in
// place. FactText is the sentence indexed for semantic search and must carry
// every attribute needed to distinguish the fact from near-duplicates.
type Node interface {
	TypeTag() string
	NaturalKey() string
	FactText() string
	Attributes() map[string]any
}

// TableNode identifies a database table.
type TableNode struct {
	Database    string
	Name        string
	Description string
}

func (n TableNode) TypeTag() string    { return NodeTypeTable }
func (n TableNode) NaturalKey() string { return n.Database + "." + n.Name }

func (n TableNode) FactText() string {
	if n.Description != "" {
		return fmt.Sprintf("Table %s.%s: %s", n.Database, n.Name, n.Description)
	}
	return fmt.Sprintf("Table %s.%s", n.Database, n.Name)
}

func (n TableNode) Attributes() map[string]any {
	return map[string]any{
		"database":    n.Database,
		"name":        n.Name,
		"description": n.Description,
	}
}

// ColumnNode identifies a column within a table.
type ColumnNode struct {
	Database    string
	Table       string
	Name        string
	Description string
	DataType    string
	Ordinal     int
}

func (n ColumnNode) TypeTag() string { return NodeTypeColumn }

func (n ColumnNode) NaturalKey() string {
	return n.Database + "." + n.Table + "." + n.Name
}

func (n ColumnNode) FactText() string {
	text := fmt.Sprintf("Column %s.%s.%s of type %s at position %d",
		n.Database, n.Table, n.Name, n.DataType, n.Ordinal)
	if n.Description != "" {
		text += ": " + n.Description
	}
	return text
}

func (n ColumnNode) Attributes() map[string]any {
	return map[string]any{
		"database":    n.Database,
		"table":       n.Table,
		"name":        n.Name,
		"description": n.Description,
		"data_type":   n.DataType,
		"ordinal":     n.Ordinal,
	}
}

// BusinessEntityNode represents a business-domain concept (customer, order)
// that maps to one or more physical tables.
type BusinessEntityNode struct {
	Name         string
	Description  string
	Domain       string
	Synonyms     []string
	MappedTables []string
}

func (n BusinessEntityNode) TypeTag() string    { return NodeTypeBusinessEntity }
func (n BusinessEntityNode) NaturalKey() string { return n.Name }

func (n BusinessEntityNode) FactText() string {
	text := fmt.Sprintf("Business entity '%s'", n.Name)
	if n.Domain != "" {
		text += " in domain " + n.Domain
	}
	if n.Description != "" {
		text += ": " + n.Description
	}
	if len(n.Synonyms) > 0 {
		text += " (also known as " + strings.Join(n.Synonyms, ", ") + ")"
	}
	if len(n.MappedTables) > 0 {
		text += " stored in " + strings.Join(n.MappedTables, ", ")
	}
	return text
}

func (n BusinessEntityNode) Attributes() map[string]any {
	return map[string]any{
		"name":          n.Name,
		"description":   n.Description,
		"domain":        n.Domain,
		"synonyms":      n.Synonyms,
		"mapped_tables": n.MappedTables,
	}
}

// QueryPatternNode names a reusable query shape learned from history.
type QueryPatternNode struct {
	Name        string
	Description string
}

func (n QueryPatternNode) TypeTag() string    { return NodeTypeQueryPattern }
func (n QueryPatternNode) NaturalKey() string { return n.Name }

func (n QueryPatternNode) FactText() string {
	if n.Description != "" {
		return fmt.Sprintf("Query pattern '%s': %s", n.Name, n.Description)
	}
	return fmt.Sprintf("Query pattern '%s'", n.Name)
}

func (n QueryPatternNode) Attributes() map[string]any {
	return map[string]any{
		"name":        n.Name,
		"description": n.Description,
	}
}

// DomainNode groups business entities under an owned business domain.
type DomainNode struct {
	Name        string
	Description string
	Owner       string
	Tags        []string
}

func (n DomainNode) TypeTag() string    { return NodeTypeDomain }
func (n DomainNode) NaturalKey() string { return n.Name }

func (n DomainNode) FactText() string {
	text := fmt.Sprintf("Domain '%s'", n.Name)
	if n.Owner != "" {
		text += " owned by " + n.Owner
	}
	if n.Description != "" {
		text += ": " + n.Description
	}
	return text
}

func (n DomainNode) Attributes() map[string]any {
	return map[string]any{
		"name":        n.Name,
		"description": n.Description,
		"owner":       n.Owner,
		"tags":        n.Tags,
	}
}

// BusinessRuleNode records a business constraint or convention.
type BusinessRuleNode struct {
	Name        string
	Description string
}

func (n BusinessRuleNode) TypeTag() string    { return NodeTypeBusinessRule }
func (n BusinessRuleNode) NaturalKey() string { return n.Name }

func (n BusinessRuleNode) FactText() string {
	if n.Description != "" {
		return fmt.Sprintf("Business rule '%s': %s", n.Name, n.Description)
	}
	return fmt.Sprintf("Business rule '%s'", n.Name)
}

func (n BusinessRuleNode) Attributes() map[string]any {
	return map[string]any{
		"name":        n.Name,
		"description": n.Description,
	}
}

// CodeSetNode maps raw column codes to human-readable labels.
type CodeSetNode struct {
	Name        string
	Description string
	Database    string
	Table       string
	Column      string
	Codes       map[string]string
}

func (n CodeSetNode) TypeTag() string    { return NodeTypeCodeSet }
func (n CodeSetNode) NaturalKey() string { return n.Name }

func (n CodeSetNode) FactText() string {
	text := fmt.Sprintf("Code set '%s' for column %s.%s.%s",
		n.Name, n.Database, n.Table, n.Column)
	if n.Description != "" {
		text += ": " + n.Description
	}
	if len(n.Codes) > 0 {
		codes := make([]string, 0, len(n.Codes))
		for code := range n.Codes {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		pairs := make([]string, 0, len(codes))
		for _, code := range codes {
			pairs = append(pairs, code+"="+n.Codes[code])
		}
		text += " with values " + strings.Join(pairs, ", ")
	}
	return text
}

func (n CodeSetNode) Attributes() map[string]any {
	return map[string]any{
		"name":        n.Name,
		"description": n.Description,
		"database":    n.Database,
		"table":       n.Table,
		"column":      n.Column,
		"codes":       n.Codes,
	}
}

// EncodeNode converts a typed node into the generic store representation.
func EncodeNode(n Node, groupScope string) *GenericEntity {
	return &GenericEntity{
		TypeTag:    n.TypeTag(),
		NaturalKey: n.NaturalKey(),
		GroupScope: groupScope,
		Attributes: n.Attributes(),
		FactText:   n.FactText(),
	}
}

// DecodeNode converts a generic store entity back into its typed variant.
// Missing attributes decode to variant defaults; only an unknown type tag
// is an error.
func DecodeNode(e *GenericEntity) (Node, error) {
	a := e.Attributes
	if a == nil {
		a = map[string]any{}
	}

	switch e.TypeTag {
	case NodeTypeTable:
		return TableNode{
			Database:    attrString(a, "database", ""),
			Name:        attrString(a, "name", ""),
			Description: attrString(a, "description", ""),
		}, nil
	case NodeTypeColumn:
		return ColumnNode{
			Database:    attrString(a, "database", ""),
			Table:       attrString(a, "table", ""),
			Name:        attrString(a, "name", ""),
			Description: attrString(a, "description", ""),
			DataType:    attrString(a, "data_type", ""),
			Ordinal:     attrInt(a, "ordinal", 0),
		}, nil
	case NodeTypeBusinessEntity:
		return BusinessEntityNode{
			Name:         attrString(a, "name", ""),
			Description:  attrString(a, "description", ""),
			Domain:       attrString(a, "domain", ""),
			Synonyms:     attrStringSlice(a, "synonyms"),
			MappedTables: attrStringSlice(a, "mapped_tables"),
		}, nil
	case NodeTypeQueryPattern:
		return QueryPatternNode{
			Name:        attrString(a, "name", ""),
			Description: attrString(a, "description", ""),
		}, nil
	case NodeTypeDomain:
		return DomainNode{
			Name:        attrString(a, "name", ""),
			Description: attrString(a, "description", ""),
			Owner:       attrString(a, "owner", ""),
			Tags:        attrStringSlice(a, "tags"),
		}, nil
	case NodeTypeBusinessRule:
		return BusinessRuleNode{
			Name:        attrString(a, "name", ""),
			Description: attrString(a, "description", ""),
		}, nil
	case NodeTypeCodeSet:
		return CodeSetNode{
			Name:        attrString(a, "name", ""),
			Description: attrString(a, "description", ""),
			Database:    attrString(a, "database", ""),
			Table:       attrString(a, "table", ""),
			Column:      attrString(a, "column", ""),
			Codes:       attrStringMap(a, "codes"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown node type %q: %w", e.TypeTag, apperrors.ErrMalformedInput)
	}
}
