package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/datapilot-ai/memory-engine/pkg/apperrors"
	"github.com/datapilot-ai/memory-engine/pkg/graphstore"
	"github.com/datapilot-ai/memory-engine/pkg/models"
)

// DocumentFailure identifies a schema document that could not be parsed.
type DocumentFailure struct {
	File string
	Err  error
}

// IngestReport aggregates the outcome of one schema ingestion run.
// Parse failures and per-item store failures are reported, never fatal.
type IngestReport struct {
	Tables      int
	Columns     int
	Entities    int
	Edges       int
	Skipped     int
	FailedDocs  []DocumentFailure
	FailedItems []BulkItemResult
}

// SchemaIndexer bulk-ingests exported schema description documents,
// building table/column/relationship facts through the entity indexer.
type SchemaIndexer interface {
	// IndexDirectory ingests every .yaml/.yml document under path. One bulk
	// batch per run amortizes store round-trips.
	IndexDirectory(ctx context.Context, path, database string, skipExisting bool) (*IngestReport, error)

	// IndexDocuments ingests already-loaded documents keyed by source name.
	IndexDocuments(ctx context.Context, docs map[string][]byte, database string, skipExisting bool) (*IngestReport, error)
}

type schemaIndexer struct {
	entities EntityIndexer
	episodes EpisodeIndexer
	store    graphstore.Store
	logger   *zap.Logger
}

// NewSchemaIndexer creates a SchemaIndexer.
func NewSchemaIndexer(entities EntityIndexer, episodes EpisodeIndexer, store graphstore.Store, logger *zap.Logger) SchemaIndexer {
	return &schemaIndexer{
		entities: entities,
		episodes: episodes,
		store:    store,
		logger:   logger.Named("schema-indexer"),
	}
}

var _ SchemaIndexer = (*schemaIndexer)(nil)

func (ix *schemaIndexer) IndexDirectory(ctx context.Context, path, database string, skipExisting bool) (*IngestReport, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory %s: %w", path, err)
	}

	docs := make(map[string][]byte)
	report := &IngestReport{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, entry.Name()))
		if err != nil {
			report.FailedDocs = append(report.FailedDocs, DocumentFailure{File: entry.Name(), Err: err})
			continue
		}
		docs[entry.Name()] = data
	}

	run, err := ix.IndexDocuments(ctx, docs, database, skipExisting)
	if err != nil {
		return nil, err
	}
	run.FailedDocs = append(report.FailedDocs, run.FailedDocs...)
	return run, nil
}

func (ix *schemaIndexer) IndexDocuments(ctx context.Context, docs map[string][]byte, database string, skipExisting bool) (*IngestReport, error) {
	report := &IngestReport{}

	parsed := make([]*SchemaDoc, 0, len(docs))
	for _, name := range sortedKeys(docs) {
		doc, err := ParseSchemaDoc(docs[name], database)
		if err != nil {
			ix.logger.Warn("Skipping malformed schema document",
				zap.String("file", name),
				zap.Error(err))
			report.FailedDocs = append(report.FailedDocs, DocumentFailure{File: name, Err: err})
			continue
		}
		parsed = append(parsed, doc)
	}

	batch := newSchemaBatch()
	for _, doc := range parsed {
		if skipExisting {
			tableKey := doc.Database + "." + doc.Table
			_, err := ix.store.GetByNaturalKey(ctx, models.NodeTypeTable, tableKey, ix.entities.GroupScope())
			if err == nil {
				report.Skipped++
				continue
			}
			if !errors.Is(err, apperrors.ErrNotFound) {
				return nil, fmt.Errorf("failed to check existing table %s: %w", tableKey, err)
			}
		}
		batch.addDoc(doc)
	}

	if len(batch.nodes) > 0 || len(batch.edges) > 0 {
		bulk, err := ix.entities.BulkUpsert(ctx, batch.nodes, batch.edges)
		if bulk != nil {
			tally(report, bulk)
		}
		if err != nil {
			return report, err
		}
	}

	if report.Tables > 0 {
		episode := models.SchemaEpisode{
			Database:    database,
			Description: fmt.Sprintf("ingested %d schema documents", len(parsed)),
			TableCount:  report.Tables,
			ColumnCount: report.Columns,
		}
		if _, err := ix.episodes.Append(ctx, episode, AppendOptions{}); err != nil {
			ix.logger.Warn("Failed to record schema episode", zap.Error(err))
		}
	}

	ix.logger.Info("Schema ingestion finished",
		zap.String("database", database),
		zap.Int("tables", report.Tables),
		zap.Int("columns", report.Columns),
		zap.Int("entities", report.Entities),
		zap.Int("edges", report.Edges),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed_docs", len(report.FailedDocs)))
	return report, nil
}

// schemaBatch accumulates the nodes and edges of one ingestion run.
// Business entities referenced from multiple documents are merged so each
// entity node is upserted once with the union of its mapped tables.
type schemaBatch struct {
	nodes      []models.Node
	edges      []models.Edge
	entityIdx  map[string]int
	domainSeen map[string]struct{}
}

func newSchemaBatch() *schemaBatch {
	return &schemaBatch{
		entityIdx:  make(map[string]int),
		domainSeen: make(map[string]struct{}),
	}
}

func (b *schemaBatch) addDoc(doc *SchemaDoc) {
	b.nodes = append(b.nodes, models.TableNode{
		Database:    doc.Database,
		Name:        doc.Table,
		Description: doc.Description,
	})

	for i, col := range doc.Columns {
		b.nodes = append(b.nodes, models.ColumnNode{
			Database:    doc.Database,
			Table:       doc.Table,
			Name:        col.Name,
			Description: col.Description,
			DataType:    col.Type,
			Ordinal:     i + 1,
		})
		b.edges = append(b.edges, models.HasColumnEdge{
			Database: doc.Database,
			Table:    doc.Table,
			Column:   col.Name,
			Ordinal:  i + 1,
		})

		if col.Entity != "" {
			b.ensureEntity(col.Entity, doc.Domain, "")
			b.edges = append(b.edges, models.ColumnMappingEdge{
				Database:   doc.Database,
				Table:      doc.Table,
				Column:     col.Name,
				Entity:     col.Entity,
				Confidence: col.Confidence,
			})
		}
	}

	for _, fk := range doc.ForeignKeys {
		b.edges = append(b.edges, models.ForeignKeyEdge{
			Database:     doc.Database,
			Table:        doc.Table,
			Column:       fk.Column,
			TargetTable:  fk.ReferencesTable,
			TargetColumn: fk.ReferencesColumn,
			Constraint:   fk.Constraint,
		})
	}

	if doc.Entity != "" {
		b.ensureEntity(doc.Entity, doc.Domain, doc.Database+"."+doc.Table)
		b.edges = append(b.edges, models.EntityMappingEdge{
			Entity:      doc.Entity,
			Database:    doc.Database,
			Table:       doc.Table,
			Confidence:  1.0,
			MappingType: "annotation",
		})
		if doc.Domain != "" {
			b.edges = append(b.edges, models.BelongsToDomainEdge{
				Entity: doc.Entity,
				Domain: doc.Domain,
			})
		}
	}
}

func (b *schemaBatch) ensureEntity(name, domain, mappedTable string) {
	idx, ok := b.entityIdx[name]
	if !ok {
		node := models.BusinessEntityNode{Name: name, Domain: domain}
		if mappedTable != "" {
			node.MappedTables = []string{mappedTable}
		}
		b.entityIdx[name] = len(b.nodes)
		b.nodes = append(b.nodes, node)
	} else if mappedTable != "" {
		node := b.nodes[idx].(models.BusinessEntityNode)
		for _, t := range node.MappedTables {
			if t == mappedTable {
				return
			}
		}
		node.MappedTables = append(node.MappedTables, mappedTable)
		b.nodes[idx] = node
	}

	if domain != "" {
		if _, seen := b.domainSeen[domain]; !seen {
			b.domainSeen[domain] = struct{}{}
			b.nodes = append(b.nodes, models.DomainNode{Name: domain})
		}
	}
}

func tally(report *IngestReport, bulk *BulkResult) {
	for _, item := range bulk.Items {
		if item.Status != StatusCommitted {
			if item.Status == StatusFailed {
				report.FailedItems = append(report.FailedItems, item)
			}
			continue
		}
		switch {
		case item.Kind == "node" && item.TypeTag == models.NodeTypeTable:
			report.Tables++
		case item.Kind == "node" && item.TypeTag == models.NodeTypeColumn:
			report.Columns++
		case item.Kind == "node":
			report.Entities++
		case item.Kind == "edge":
			report.Edges++
		}
	}
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
