package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
)

const ordersDoc = `
database: sales
table: orders
description: Customer orders
entity: Order
domain: Commerce
columns:
  - name: order_id
    type: bigint
    description: Primary key
  - name: customer_id
    type: bigint
    entity: Customer
    confidence: 0.9
  - name: status
    type: text
foreign_keys:
  - column: customer_id
    references_table: customers
    references_column: id
    constraint: fk_orders_customer
`

func TestParseSchemaDoc(t *testing.T) {
	doc, err := ParseSchemaDoc([]byte(ordersDoc), "")
	require.NoError(t, err)

	assert.Equal(t, "sales", doc.Database)
	assert.Equal(t, "orders", doc.Table)
	assert.Equal(t, "Order", doc.Entity)
	assert.Len(t, doc.Columns, 3)
	assert.Len(t, doc.ForeignKeys, 1)
	assert.Equal(t, 0.9, doc.Columns[1].Confidence)
}

func TestParseSchemaDocDefaultsDatabase(t *testing.T) {
	doc, err := ParseSchemaDoc([]byte("table: orders\ncolumns:\n  - name: id\n"), "sales")
	require.NoError(t, err)
	assert.Equal(t, "sales", doc.Database)
}

func TestParseSchemaDocAnnotationConfidenceDefaults(t *testing.T) {
	data := `
database: sales
table: customers
columns:
  - name: email
    type: text
    entity: Customer
`
	doc, err := ParseSchemaDoc([]byte(data), "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, doc.Columns[0].Confidence)
}

func TestParseSchemaDocRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "invalid yaml", data: "table: [unclosed"},
		{name: "missing database", data: "table: orders\ncolumns:\n  - name: id\n"},
		{name: "missing table", data: "database: sales\ncolumns:\n  - name: id\n"},
		{name: "no columns", data: "database: sales\ntable: orders\n"},
		{name: "unnamed column", data: "database: sales\ntable: orders\ncolumns:\n  - type: text\n"},
		{
			name: "duplicate column",
			data: "database: sales\ntable: orders\ncolumns:\n  - name: id\n  - name: id\n",
		},
		{
			name: "foreign key on unknown column",
			data: "database: sales\ntable: orders\ncolumns:\n  - name: id\nforeign_keys:\n  - column: ghost\n    references_table: customers\n    references_column: id\n",
		},
		{
			name: "incomplete foreign key",
			data: "database: sales\ntable: orders\ncolumns:\n  - name: id\nforeign_keys:\n  - column: id\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchemaDoc([]byte(tt.data), "")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
		})
	}
}
