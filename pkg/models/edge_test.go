package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
)

func TestEdgeNaturalKey(t *testing.T) {
	edge := HasColumnEdge{Database: "sales", Table: "orders", Column: "order_id"}
	assert.Equal(t, "has_column(sales.orders->sales.orders.order_id)", EdgeNaturalKey(edge))

	fk := ForeignKeyEdge{
		Database: "sales", Table: "orders", Column: "customer_id",
		TargetTable: "customers", TargetColumn: "id",
	}
	assert.Equal(t, "foreign_key(sales.orders.customer_id->sales.customers.id)", EdgeNaturalKey(fk))
}

func TestConfidenceValidation(t *testing.T) {
	tests := []struct {
		name    string
		edge    Validator
		wantErr bool
	}{
		{
			name: "entity mapping within range",
			edge: EntityMappingEdge{Entity: "Customer", Database: "sales", Table: "customers", Confidence: 0.85},
		},
		{
			name:    "entity mapping above range",
			edge:    EntityMappingEdge{Entity: "Customer", Database: "sales", Table: "customers", Confidence: 1.2},
			wantErr: true,
		},
		{
			name:    "column mapping below range",
			edge:    ColumnMappingEdge{Database: "sales", Table: "orders", Column: "cid", Entity: "Customer", Confidence: -0.1},
			wantErr: true,
		},
		{
			name: "synonym at boundary",
			edge: SynonymEdge{Term: "customer", Synonym: "client", Confidence: 1.0},
		},
		{
			name: "zero confidence is allowed",
			edge: SynonymEdge{Term: "customer", Synonym: "client", Confidence: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.edge.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEdgeEndpointTypes(t *testing.T) {
	from, to, ok := EdgeEndpointTypes(HasColumnEdge{})
	require.True(t, ok)
	assert.Equal(t, NodeTypeTable, from)
	assert.Equal(t, NodeTypeColumn, to)

	from, to, ok = EdgeEndpointTypes(EntityMappingEdge{})
	require.True(t, ok)
	assert.Equal(t, NodeTypeBusinessEntity, from)
	assert.Equal(t, NodeTypeTable, to)

	// Synonym endpoints are free terms, not stored nodes.
	_, _, ok = EdgeEndpointTypes(SynonymEdge{})
	assert.False(t, ok)
}

func TestDecodeEdgeDefaults(t *testing.T) {
	decoded, err := DecodeEdge(&GenericEdge{
		TypeTag: EdgeTypeEntityMapping,
		Attributes: map[string]any{
			"entity":   "Customer",
			"database": "sales",
			"table":    "customers",
		},
	})
	require.NoError(t, err)

	mapping, ok := decoded.(EntityMappingEdge)
	require.True(t, ok)
	assert.Equal(t, 1.0, mapping.Confidence)
	assert.Equal(t, "direct", mapping.MappingType)

	decoded, err = DecodeEdge(&GenericEdge{TypeTag: EdgeTypePatternUses})
	require.NoError(t, err)
	pattern, ok := decoded.(PatternUsesTableEdge)
	require.True(t, ok)
	assert.Equal(t, "source", pattern.Role)
}

func TestEncodeDecodeEdgeRoundTrip(t *testing.T) {
	edge := ForeignKeyEdge{
		Database:     "sales",
		Table:        "orders",
		Column:       "customer_id",
		TargetTable:  "customers",
		TargetColumn: "id",
		Constraint:   "fk_orders_customer",
	}

	encoded := EncodeEdge(edge, "tenant-a")
	assert.Equal(t, EdgeNaturalKey(edge), encoded.NaturalKey)
	assert.Equal(t, edge.FromKey(), encoded.FromKey)
	assert.Equal(t, edge.ToKey(), encoded.ToKey)

	decoded, err := DecodeEdge(encoded)
	require.NoError(t, err)
	assert.Equal(t, edge, decoded)
}

func TestDecodeEdgeUnknownType(t *testing.T) {
	_, err := DecodeEdge(&GenericEdge{TypeTag: "teleports_to"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
}
