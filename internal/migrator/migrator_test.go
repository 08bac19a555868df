// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package migrator

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/northbound/ragvault/internal/embeddings"
	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/memorystore"
	"github.com/northbound/ragvault/internal/vectorstore"
)

func newGraph(t *testing.T) *graphstore.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := graphstore.New(db)
	require.NoError(t, err)
	return store
}

func TestMigrateRekeysDocumentsChunksVectorsAndMemories(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)
	vector := vectorstore.NewMemStore(4)
	embedder := embeddings.NewMockEmbedder(4)
	mem := memorystore.New(graph, vector, embedder, nil, nil, nil, memorystore.Config{})

	const anon, user = "anon_123", "user-1"

	require.NoError(t, graph.CreateDocument(ctx, graphstore.Document{ID: "doc-a", TenantKey: anon, Filename: "a.pdf", FileType: "pdf"}))
	require.NoError(t, graph.CreateChunk(ctx, graphstore.Chunk{ID: "doc-a-0", DocumentID: "doc-a", TenantKey: anon, Position: 0, Text: "hello"}))
	vec, err := embedder.EmbedText(ctx, "hello")
	require.NoError(t, err)
	require.NoError(t, vector.Upsert(ctx, vectorstore.CollectionDocuments, "doc-a-0", vec, map[string]string{
		"tenant_key": anon, "document_id": "doc-a", "position": "0", "text": "hello",
	}))
	_, err = mem.Add(ctx, anon, "anonymous user prefers dark mode", memorystore.Metadata{Type: memorystore.TypePreference})
	require.NoError(t, err)

	m := New(graph, vector, mem, nil)
	stats := m.Migrate(ctx, anon, user)

	require.Equal(t, 1, stats.Documents)
	require.Equal(t, 1, stats.Chunks)
	require.Equal(t, 1, stats.Vectors)
	require.Equal(t, 1, stats.Memories)

	doc, err := graph.GetDocument(ctx, "doc-a", []string{user})
	require.NoError(t, err)
	require.NotNil(t, doc, "document must now be visible under the authenticated tenant key")

	matches, _, err := vector.Scroll(ctx, vectorstore.CollectionDocuments, vectorstore.Filter{TenantKeys: []string{user}}, 10, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	entries, err := mem.List(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "anonymous user prefers dark mode", entries[0].Text)

	leftover, err := mem.List(ctx, anon, 0)
	require.NoError(t, err)
	require.Empty(t, leftover, "the original anonymous memory entry must be deleted after a successful re-add")
}

func TestMigrateGraphOnlyTenantStillCompletesOtherSections(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)
	vector := vectorstore.NewMemStore(4)
	embedder := embeddings.NewMockEmbedder(4)
	mem := memorystore.New(graph, vector, embedder, nil, nil, nil, memorystore.Config{})

	const anon, user = "anon_456", "user-2"
	require.NoError(t, graph.CreateDocument(ctx, graphstore.Document{ID: "doc-b", TenantKey: anon, Filename: "b.pdf", FileType: "pdf"}))

	m := New(graph, vector, mem, nil)
	stats := m.Migrate(ctx, anon, user)

	require.Equal(t, 1, stats.Documents, "graph section must complete even though there is nothing to migrate in the other sections")
	require.Equal(t, 0, stats.Vectors)
	require.Equal(t, 0, stats.Memories)
}
