// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package graphstore holds the node/edge side of the dual graph+vector
// index: Document and Chunk nodes, Entity nodes, and the APPEARS_IN /
// RELATES_TO edges used for multi-hop expansion during retrieval. The
// ingestion pipeline writes Document and Chunk rows only; Entity rows are
// created by callers of UpsertEntity, such as internal/memorystore for
// memory entries. It is backed by SQLite, following
// the teacher's schema-init-then-CRUD store shape.
package graphstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"
)

// Document mirrors the Document entity of the data model.
type Document struct {
	ID           string
	TenantKey    string
	Filename     string
	FileType     string
	ByteSize     int64
	UploadTime   time.Time
	ChunkCount   int
	SummaryCache string
}

// Chunk mirrors the Chunk entity; its ID is shared with the vector store.
type Chunk struct {
	ID         string
	DocumentID string
	TenantKey  string
	Position   int
	Text       string
	CreatedAt  time.Time
}

// EntityEdge is a single hop result from multi-hop expansion: either an
// APPEARS_IN (chunk<->entity) or RELATES_TO (entity<->entity) edge,
// annotated with its hop distance from the seed chunk.
type EntityEdge struct {
	EntityName string
	EntityType string
	Relation   string
	Hop        int
}

// Store is the behaviour the rest of the system depends on.
type Store interface {
	CreateDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string, visibleTenantKeys []string) (*Document, error)
	ListDocuments(ctx context.Context, visibleTenantKeys []string) ([]Document, error)
	SetDocumentProgress(ctx context.Context, id string, chunkCount int) error
	SetSummaryCache(ctx context.Context, id, summary string) error
	DeleteDocument(ctx context.Context, id string) error

	CreateChunk(ctx context.Context, chunk Chunk) error
	ChunkExists(ctx context.Context, id string) (bool, error)
	ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error)

	UpsertEntity(ctx context.Context, name, entityType, tenantKey string) (entityID string, err error)
	LinkChunkEntity(ctx context.Context, chunkID, entityID string) error
	LinkEntities(ctx context.Context, sourceID, targetID, relation, tenantKey string) error

	ChunksForEntityNames(ctx context.Context, visibleTenantKeys []string, names []string, limit int) ([]Chunk, error)
	ExpandEntities(ctx context.Context, visibleTenantKeys []string, chunkIDs []string, maxHops, maxEdgesPerChunk int) (map[string][]EntityEdge, error)

	RekeyTenant(ctx context.Context, fromTenantKey, toTenantKey string) (documents int, chunks int, err error)
	ReapExpired(ctx context.Context, tenantPrefix string, cutoff time.Time) (deletedDocuments int, err error)

	LinkMemoryEntity(ctx context.Context, memoryID, tenantKey, entityID string) error
	DeleteMemoryEdges(ctx context.Context, memoryID string) error
	DeleteOrphanedEntities(ctx context.Context, limit int) (int, error)
}

// SQLiteStore implements Store over database/sql with the sqlite3 driver.
type SQLiteStore struct {
	db *sql.DB
}

// New constructs a SQLiteStore and runs schema initialization.
func New(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("graphstore: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		tenant_key TEXT NOT NULL,
		filename TEXT NOT NULL,
		file_type TEXT NOT NULL,
		byte_size INTEGER NOT NULL,
		upload_time DATETIME NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		summary_cache TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_documents_tenant_key ON documents(tenant_key);
	CREATE INDEX IF NOT EXISTS idx_documents_upload_time ON documents(upload_time);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		tenant_key TEXT NOT NULL,
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_tenant_key ON chunks(tenant_key);

	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		tenant_key TEXT NOT NULL,
		UNIQUE(name, type, tenant_key)
	);
	CREATE INDEX IF NOT EXISTS idx_entities_tenant_key ON entities(tenant_key);
	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

	CREATE TABLE IF NOT EXISTS appears_in (
		entity_id TEXT NOT NULL REFERENCES entities(id),
		chunk_id TEXT NOT NULL REFERENCES chunks(id),
		PRIMARY KEY (entity_id, chunk_id)
	);
	CREATE INDEX IF NOT EXISTS idx_appears_in_chunk ON appears_in(chunk_id);

	CREATE TABLE IF NOT EXISTS relates_to (
		source_entity_id TEXT NOT NULL,
		target_entity_id TEXT NOT NULL,
		relation TEXT NOT NULL,
		tenant_key TEXT NOT NULL,
		PRIMARY KEY (source_entity_id, target_entity_id, relation)
	);
	CREATE INDEX IF NOT EXISTS idx_relates_to_source ON relates_to(source_entity_id);
	CREATE INDEX IF NOT EXISTS idx_relates_to_target ON relates_to(target_entity_id);

	CREATE TABLE IF NOT EXISTS memory_appears_in (
		entity_id TEXT NOT NULL REFERENCES entities(id),
		memory_id TEXT NOT NULL,
		PRIMARY KEY (entity_id, memory_id)
	);
	CREATE INDEX IF NOT EXISTS idx_memory_appears_in_memory ON memory_appears_in(memory_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func tenantPlaceholders(tenantKeys []string) (string, []any) {
	placeholders := make([]string, len(tenantKeys))
	args := make([]any, len(tenantKeys))
	for i, tk := range tenantKeys {
		placeholders[i] = "?"
		args[i] = tk
	}
	return strings.Join(placeholders, ","), args
}

// CreateDocument inserts a new document row. Callers ensure visibility
// rules (shared sentinel vs private) before calling.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, tenant_key, filename, file_type, byte_size, upload_time, chunk_count, summary_cache)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TenantKey, doc.Filename, doc.FileType, doc.ByteSize, doc.UploadTime, doc.ChunkCount, doc.SummaryCache,
	)
	if err != nil {
		return fmt.Errorf("graphstore: create document: %w", err)
	}
	return nil
}

// GetDocument returns the document if its tenant_key is among the
// principal's visible tenant keys (own key, and __shared__ if authenticated).
func (s *SQLiteStore) GetDocument(ctx context.Context, id string, visibleTenantKeys []string) (*Document, error) {
	ph, args := tenantPlaceholders(visibleTenantKeys)
	args = append([]any{id}, args...)

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, tenant_key, filename, file_type, byte_size, upload_time, chunk_count, summary_cache
		 FROM documents WHERE id = ? AND tenant_key IN (%s)`, ph),
		args...,
	)

	var d Document
	var summary sql.NullString
	if err := row.Scan(&d.ID, &d.TenantKey, &d.Filename, &d.FileType, &d.ByteSize, &d.UploadTime, &d.ChunkCount, &summary); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("graphstore: get document: %w", err)
	}
	d.SummaryCache = summary.String
	return &d, nil
}

// ListDocuments returns all documents visible to the given tenant keys.
func (s *SQLiteStore) ListDocuments(ctx context.Context, visibleTenantKeys []string) ([]Document, error) {
	ph, args := tenantPlaceholders(visibleTenantKeys)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, tenant_key, filename, file_type, byte_size, upload_time, chunk_count, summary_cache
		 FROM documents WHERE tenant_key IN (%s) ORDER BY upload_time DESC`, ph),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("graphstore: list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var summary sql.NullString
		if err := rows.Scan(&d.ID, &d.TenantKey, &d.Filename, &d.FileType, &d.ByteSize, &d.UploadTime, &d.ChunkCount, &summary); err != nil {
			return nil, err
		}
		d.SummaryCache = summary.String
		docs = append(docs, d)
	}
	return docs, nil
}

// SetDocumentProgress updates chunk_count, called by the Ingestor as
// chunks land.
func (s *SQLiteStore) SetDocumentProgress(ctx context.Context, id string, chunkCount int) error {
	_, err := s.db.ExecContext(ctx, "UPDATE documents SET chunk_count = ? WHERE id = ?", chunkCount, id)
	return err
}

// SetSummaryCache persists the brief summary generated at the end of ingest.
func (s *SQLiteStore) SetSummaryCache(ctx context.Context, id, summary string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE documents SET summary_cache = ? WHERE id = ?", summary, id)
	return err
}

// DeleteDocument cascades: appears_in rows for the document's chunks,
// then chunks, then the document itself. Entities are left in place —
// they may be shared across documents — but become unreachable from this
// document's chunks.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM appears_in WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`, id); err != nil {
		return fmt.Errorf("graphstore: delete document appears_in: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("graphstore: delete document chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("graphstore: delete document: %w", err)
	}
	return tx.Commit()
}

// CreateChunk inserts a Chunk node. The (Document)-[:CONTAINS]->(Chunk)
// edge is implicit in the document_id foreign key rather than a separate
// edge table, since CONTAINS is 1:N and never traversed independently.
func (s *SQLiteStore) CreateChunk(ctx context.Context, c Chunk) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, document_id, tenant_key, position, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocumentID, c.TenantKey, c.Position, c.Text, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("graphstore: create chunk: %w", err)
	}
	return nil
}

// ChunkExists supports idempotent ingestion retries.
func (s *SQLiteStore) ChunkExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM chunks WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ChunksByDocument returns all chunks for a document in position order.
func (s *SQLiteStore) ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, tenant_key, position, text, created_at FROM chunks WHERE document_id = ? ORDER BY position`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.TenantKey, &c.Position, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// UpsertEntity dedupes by (name, type, tenant_key) and returns the
// existing or newly created entity's id.
func (s *SQLiteStore) UpsertEntity(ctx context.Context, name, entityType, tenantKey string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM entities WHERE name = ? AND type = ? AND tenant_key = ?", name, entityType, tenantKey,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("graphstore: lookup entity: %w", err)
	}

	id = entityID(name, entityType, tenantKey)
	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO entities (id, name, type, tenant_key) VALUES (?, ?, ?, ?)",
		id, name, entityType, tenantKey,
	)
	if err != nil {
		return "", fmt.Errorf("graphstore: insert entity: %w", err)
	}
	return id, nil
}

func entityID(name, entityType, tenantKey string) string {
	return fmt.Sprintf("ent_%x", hashKey(name+"\x00"+entityType+"\x00"+tenantKey))
}

// LinkChunkEntity records an APPEARS_IN edge.
func (s *SQLiteStore) LinkChunkEntity(ctx context.Context, chunkID, entityID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO appears_in (entity_id, chunk_id) VALUES (?, ?)", entityID, chunkID)
	return err
}

// LinkEntities records a RELATES_TO edge between two entities.
func (s *SQLiteStore) LinkEntities(ctx context.Context, sourceID, targetID, relation, tenantKey string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO relates_to (source_entity_id, target_entity_id, relation, tenant_key) VALUES (?, ?, ?, ?)",
		sourceID, targetID, relation, tenantKey)
	return err
}

// ChunksForEntityNames is the entity-lookup half of hybrid retrieval: find
// chunks, visible to the given tenant keys, connected via APPEARS_IN to an
// entity matching one of names. Capped at limit.
func (s *SQLiteStore) ChunksForEntityNames(ctx context.Context, visibleTenantKeys []string, names []string, limit int) ([]Chunk, error) {
	if len(names) == 0 || len(visibleTenantKeys) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	tenantPh, tenantArgs := tenantPlaceholders(visibleTenantKeys)
	namePh, nameArgs := tenantPlaceholders(names)

	query := fmt.Sprintf(`
		SELECT DISTINCT c.id, c.document_id, c.tenant_key, c.position, c.text, c.created_at
		FROM chunks c
		JOIN appears_in ai ON ai.chunk_id = c.id
		JOIN entities e ON e.id = ai.entity_id
		WHERE c.tenant_key IN (%s) AND e.tenant_key IN (%s) AND e.name IN (%s)
		LIMIT ?`, tenantPh, tenantPh, namePh)

	args := append(append(append([]any{}, tenantArgs...), tenantArgs...), nameArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: chunks for entity names: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.TenantKey, &c.Position, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// ExpandEntities performs the bounded multi-hop traversal required by
// retrieval's include_graph option: for each seed chunk, find its directly
// APPEARS_IN entities (hop 1), then those entities' RELATES_TO neighbors
// (hop 2), capped at maxHops and maxEdgesPerChunk. Every query here is
// tenant-filtered; there is no path that returns edges outside
// visibleTenantKeys.
func (s *SQLiteStore) ExpandEntities(ctx context.Context, visibleTenantKeys []string, chunkIDs []string, maxHops, maxEdgesPerChunk int) (map[string][]EntityEdge, error) {
	if maxHops <= 0 {
		maxHops = 2
	}
	if maxHops > 2 {
		maxHops = 2
	}
	if maxEdgesPerChunk <= 0 {
		maxEdgesPerChunk = 15
	}
	if len(chunkIDs) == 0 || len(visibleTenantKeys) == 0 {
		return map[string][]EntityEdge{}, nil
	}

	tenantPh, tenantArgs := tenantPlaceholders(visibleTenantKeys)
	result := make(map[string][]EntityEdge, len(chunkIDs))

	for _, chunkID := range chunkIDs {
		edges, err := s.expandForChunk(ctx, chunkID, tenantPh, tenantArgs, maxHops, maxEdgesPerChunk)
		if err != nil {
			return nil, fmt.Errorf("graphstore: expand entities for chunk %s: %w", chunkID, err)
		}
		result[chunkID] = edges
	}
	return result, nil
}

func (s *SQLiteStore) expandForChunk(ctx context.Context, chunkID, tenantPh string, tenantArgs []any, maxHops, maxEdgesPerChunk int) ([]EntityEdge, error) {
	hop1Query := fmt.Sprintf(`
		SELECT e.id, e.name, e.type FROM entities e
		JOIN appears_in ai ON ai.entity_id = e.id
		WHERE ai.chunk_id = ? AND e.tenant_key IN (%s)
		LIMIT ?`, tenantPh)
	args := append([]any{chunkID}, tenantArgs...)
	args = append(args, maxEdgesPerChunk)

	rows, err := s.db.QueryContext(ctx, hop1Query, args...)
	if err != nil {
		return nil, err
	}
	var edges []EntityEdge
	var hop1IDs []string
	for rows.Next() {
		var id, name, typ string
		if err := rows.Scan(&id, &name, &typ); err != nil {
			rows.Close()
			return nil, err
		}
		hop1IDs = append(hop1IDs, id)
		edges = append(edges, EntityEdge{EntityName: name, EntityType: typ, Relation: "APPEARS_IN", Hop: 1})
	}
	rows.Close()

	if maxHops < 2 || len(hop1IDs) == 0 || len(edges) >= maxEdgesPerChunk {
		return edges, nil
	}

	remaining := maxEdgesPerChunk - len(edges)
	hopPh, hopArgs := tenantPlaceholders(hop1IDs)
	hop2Query := fmt.Sprintf(`
		SELECT e.name, e.type, r.relation FROM relates_to r
		JOIN entities e ON e.id = r.target_entity_id
		WHERE r.source_entity_id IN (%s) AND e.tenant_key IN (%s)
		LIMIT ?`, hopPh, tenantPh)
	args2 := append(append([]any{}, hopArgs...), tenantArgs...)
	args2 = append(args2, remaining)

	rows2, err := s.db.QueryContext(ctx, hop2Query, args2...)
	if err != nil {
		return nil, err
	}
	defer rows2.Close()
	for rows2.Next() {
		var name, typ, relation string
		if err := rows2.Scan(&name, &typ, &relation); err != nil {
			return nil, err
		}
		edges = append(edges, EntityEdge{EntityName: name, EntityType: typ, Relation: relation, Hop: 2})
	}
	return edges, nil
}

// RekeyTenant re-keys every Document and Chunk from fromTenantKey to
// toTenantKey in a single statement per table, used by the Migrator.
func (s *SQLiteStore) RekeyTenant(ctx context.Context, fromTenantKey, toTenantKey string) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	docRes, err := tx.ExecContext(ctx, "UPDATE documents SET tenant_key = ? WHERE tenant_key = ?", toTenantKey, fromTenantKey)
	if err != nil {
		return 0, 0, fmt.Errorf("graphstore: rekey documents: %w", err)
	}
	chunkRes, err := tx.ExecContext(ctx, "UPDATE chunks SET tenant_key = ? WHERE tenant_key = ?", toTenantKey, fromTenantKey)
	if err != nil {
		return 0, 0, fmt.Errorf("graphstore: rekey chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	docs, _ := docRes.RowsAffected()
	chunks, _ := chunkRes.RowsAffected()
	return int(docs), int(chunks), nil
}

// ReapExpired deletes Document/Chunk rows whose tenant_key begins with
// tenantPrefix (the anonymous prefix) and whose upload_time is before
// cutoff, cascading through DeleteDocument.
func (s *SQLiteStore) ReapExpired(ctx context.Context, tenantPrefix string, cutoff time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM documents WHERE tenant_key LIKE ? AND upload_time < ?",
		tenantPrefix+"%", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("graphstore: reap query: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if err := s.DeleteDocument(ctx, id); err != nil {
			log.Printf("graphstore: reap: failed to delete document %s: %v", id, err)
			continue
		}
	}
	return len(ids), nil
}

// LinkMemoryEntity records that an entity appears in a memory entry — the
// graph half of the memory sub-partition MemoryStore maintains alongside
// the vector "memory" collection.
func (s *SQLiteStore) LinkMemoryEntity(ctx context.Context, memoryID, tenantKey, entityID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO memory_appears_in (entity_id, memory_id) VALUES (?, ?)", entityID, memoryID)
	return err
}

// DeleteMemoryEdges removes all entity links for a memory entry. Called
// by MemoryStore.Delete to perform the explicit cleanup the memory
// sub-framework does not provide on its own.
func (s *SQLiteStore) DeleteMemoryEdges(ctx context.Context, memoryID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memory_appears_in WHERE memory_id = ?", memoryID)
	return err
}

// DeleteOrphanedEntities removes entity rows left behind once their last
// appears_in/memory_appears_in edge is gone — the cleanup MemoryStore.Delete
// cannot do inline because an entity may still be referenced by a document
// chunk. Bounded to limit rows per call so the background sweeper only
// ever touches one page per tick.
func (s *SQLiteStore) DeleteOrphanedEntities(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 200
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entities WHERE id IN (
			SELECT e.id FROM entities e
			WHERE NOT EXISTS (SELECT 1 FROM appears_in a WHERE a.entity_id = e.id)
			  AND NOT EXISTS (SELECT 1 FROM memory_appears_in m WHERE m.entity_id = e.id)
			  AND NOT EXISTS (SELECT 1 FROM relates_to r WHERE r.source_entity_id = e.id OR r.target_entity_id = e.id)
			LIMIT ?
		)`, limit)
	if err != nil {
		return 0, fmt.Errorf("graphstore: delete orphaned entities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
