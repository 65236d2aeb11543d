package indexer

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
)

// SchemaDoc is one exported schema description document: a single table
// with its columns, foreign keys, and optional business annotations.
type SchemaDoc struct {
	Database    string          `yaml:"database"`
	Table       string          `yaml:"table"`
	Description string          `yaml:"description"`
	Entity      string          `yaml:"entity"`
	Domain      string          `yaml:"domain"`
	Columns     []SchemaDocCol  `yaml:"columns"`
	ForeignKeys []SchemaDocFKey `yaml:"foreign_keys"`
}

// SchemaDocCol declares one column. Entity is an optional business
// annotation mapping the column to a business entity.
type SchemaDocCol struct {
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type"`
	Description string  `yaml:"description"`
	Entity      string  `yaml:"entity"`
	Confidence  float64 `yaml:"confidence"`
}

// SchemaDocFKey declares a foreign key from a local column to a target
// table/column.
type SchemaDocFKey struct {
	Column           string `yaml:"column"`
	ReferencesTable  string `yaml:"references_table"`
	ReferencesColumn string `yaml:"references_column"`
	Constraint       string `yaml:"constraint"`
}

// ParseSchemaDoc parses and validates one schema description document.
// defaultDatabase fills in documents that omit the database field.
func ParseSchemaDoc(data []byte, defaultDatabase string) (*SchemaDoc, error) {
	var doc SchemaDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid schema document: %v: %w", err, apperrors.ErrMalformedInput)
	}

	if doc.Database == "" {
		doc.Database = defaultDatabase
	}
	if doc.Database == "" {
		return nil, fmt.Errorf("schema document missing database: %w", apperrors.ErrMalformedInput)
	}
	if doc.Table == "" {
		return nil, fmt.Errorf("schema document missing table: %w", apperrors.ErrMalformedInput)
	}
	if len(doc.Columns) == 0 {
		return nil, fmt.Errorf("schema document for %s has no columns: %w", doc.Table, apperrors.ErrMalformedInput)
	}

	names := make(map[string]struct{}, len(doc.Columns))
	for i, col := range doc.Columns {
		if col.Name == "" {
			return nil, fmt.Errorf("column %d of %s missing name: %w", i, doc.Table, apperrors.ErrMalformedInput)
		}
		if _, dup := names[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column %s in %s: %w", col.Name, doc.Table, apperrors.ErrMalformedInput)
		}
		names[col.Name] = struct{}{}
		// Annotation confidence defaults to certain.
		if col.Entity != "" && doc.Columns[i].Confidence == 0 {
			doc.Columns[i].Confidence = 1.0
		}
	}

	for _, fk := range doc.ForeignKeys {
		if fk.Column == "" || fk.ReferencesTable == "" || fk.ReferencesColumn == "" {
			return nil, fmt.Errorf("incomplete foreign key on %s: %w", doc.Table, apperrors.ErrMalformedInput)
		}
		if _, ok := names[fk.Column]; !ok {
			return nil, fmt.Errorf("foreign key on %s references unknown column %s: %w",
				doc.Table, fk.Column, apperrors.ErrMalformedInput)
		}
	}

	return &doc, nil
}
