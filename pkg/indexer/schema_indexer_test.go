package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datapilot-ai/memory-engine/pkg/graphstore"
	"github.com/datapilot-ai/memory-engine/pkg/models"
)

const customersDocYAML = `
database: sales
table: customers
description: Registered customers
entity: Customer
domain: Commerce
columns:
  - name: id
    type: bigint
  - name: email
    type: text
`

const ordersDocYAML = `
database: sales
table: orders
description: Customer orders
entity: Order
domain: Commerce
columns:
  - name: order_id
    type: bigint
  - name: customer_id
    type: bigint
foreign_keys:
  - column: customer_id
    references_table: customers
    references_column: id
`

func newSchemaIndexer(t *testing.T) (SchemaIndexer, *graphstore.MemoryStore) {
	t.Helper()

	store := graphstore.NewMemoryStore(nil)
	entities := NewEntityIndexer(store, "tenant-a", zap.NewNop())
	episodes := NewEpisodeIndexer(store, "tenant-a", zap.NewNop())
	return NewSchemaIndexer(entities, episodes, store, zap.NewNop()), store
}

func TestIndexDocuments(t *testing.T) {
	ix, store := newSchemaIndexer(t)
	ctx := context.Background()

	report, err := ix.IndexDocuments(ctx, map[string][]byte{
		"customers.yaml": []byte(customersDocYAML),
		"orders.yaml":    []byte(ordersDocYAML),
	}, "sales", false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Tables)
	assert.Equal(t, 4, report.Columns)
	// Customer, Order, and the Commerce domain node.
	assert.Equal(t, 3, report.Entities)
	// 4 has_column + 2 entity_mapping + 2 belongs_to_domain + 1 foreign_key.
	assert.Equal(t, 9, report.Edges)
	assert.Empty(t, report.FailedDocs)
	assert.Empty(t, report.FailedItems)

	// The foreign key resolved across documents in the same batch.
	_, err = store.GetEdgeByNaturalKey(ctx, models.EdgeTypeForeignKey,
		"foreign_key(sales.orders.customer_id->sales.customers.id)", "tenant-a")
	assert.NoError(t, err)

	// An ingestion episode was recorded.
	counts, err := store.Counts(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Episodes[models.EpisodeTypeSchema])
}

func TestIndexDocumentsSkipExisting(t *testing.T) {
	ix, store := newSchemaIndexer(t)
	ctx := context.Background()

	docs := map[string][]byte{
		"customers.yaml": []byte(customersDocYAML),
		"orders.yaml":    []byte(ordersDocYAML),
	}

	_, err := ix.IndexDocuments(ctx, docs, "sales", false)
	require.NoError(t, err)

	report, err := ix.IndexDocuments(ctx, docs, "sales", true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.Tables)

	// No second ingestion episode for an all-skipped run.
	counts, err := store.Counts(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Episodes[models.EpisodeTypeSchema])
}

func TestIndexDocumentsSkipExistingIsScoped(t *testing.T) {
	ix, store := newSchemaIndexer(t)
	ctx := context.Background()

	docs := map[string][]byte{"customers.yaml": []byte(customersDocYAML)}
	_, err := ix.IndexDocuments(ctx, docs, "sales", false)
	require.NoError(t, err)

	// The same table in another scope is not "existing" for that scope.
	entities := NewEntityIndexer(store, "tenant-b", zap.NewNop())
	episodes := NewEpisodeIndexer(store, "tenant-b", zap.NewNop())
	other := NewSchemaIndexer(entities, episodes, store, zap.NewNop())

	report, err := other.IndexDocuments(ctx, docs, "sales", true)
	require.NoError(t, err)
	assert.Zero(t, report.Skipped)
	assert.Equal(t, 1, report.Tables)
}

func TestIndexDocumentsRecordsParseFailures(t *testing.T) {
	ix, _ := newSchemaIndexer(t)

	report, err := ix.IndexDocuments(context.Background(), map[string][]byte{
		"customers.yaml": []byte(customersDocYAML),
		"broken.yaml":    []byte("table: [unclosed"),
	}, "sales", false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Tables)
	require.Len(t, report.FailedDocs, 1)
	assert.Equal(t, "broken.yaml", report.FailedDocs[0].File)
}

func TestIndexDirectory(t *testing.T) {
	ix, _ := newSchemaIndexer(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "customers.yaml"), []byte(customersDocYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a schema"), 0o644))

	report, err := ix.IndexDirectory(context.Background(), dir, "sales", false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Tables)
	assert.Equal(t, 2, report.Columns)
	assert.Empty(t, report.FailedDocs)
}
