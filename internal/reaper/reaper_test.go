// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package reaper

import (
	"context"
	"database/sql"
	"testing"
	"time"

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

func TestSweepDeletesExpiredAnonymousRecordsOnly(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)
	vector := vectorstore.NewMemStore(4)
	embedder := embeddings.NewMockEmbedder(4)
	mem := memorystore.New(graph, vector, embedder, nil, nil, nil, memorystore.Config{})

	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, graph.CreateDocument(ctx, graphstore.Document{ID: "doc-expired", TenantKey: "anon_old", Filename: "old.pdf", FileType: "pdf", UploadTime: old}))
	require.NoError(t, graph.CreateDocument(ctx, graphstore.Document{ID: "doc-fresh", TenantKey: "anon_new", Filename: "new.pdf", FileType: "pdf", UploadTime: time.Now().UTC()}))
	require.NoError(t, graph.CreateDocument(ctx, graphstore.Document{ID: "doc-user", TenantKey: "user-1", Filename: "mine.pdf", FileType: "pdf", UploadTime: old}))

	vecOld, err := embedder.EmbedText(ctx, "old anon chunk")
	require.NoError(t, err)
	require.NoError(t, vector.Upsert(ctx, vectorstore.CollectionDocuments, "chunk-old", vecOld, map[string]string{"tenant_key": "anon_old", "document_id": "doc-expired"}))
	setCreatedAt(t, vector, vectorstore.CollectionDocuments, "chunk-old", old)

	_, err = mem.Add(ctx, "anon_old", "an old anonymous memory", memorystore.Metadata{Timestamp: old})
	require.NoError(t, err)

	r := New(graph, vector, mem, 24*time.Hour, "", nil)
	r.sweep()

	doc, err := graph.GetDocument(ctx, "doc-expired", []string{"anon_old"})
	require.NoError(t, err)
	require.Nil(t, doc, "expired anonymous document must be reaped")

	doc, err = graph.GetDocument(ctx, "doc-fresh", []string{"anon_new"})
	require.NoError(t, err)
	require.NotNil(t, doc, "fresh anonymous document must survive")

	doc, err = graph.GetDocument(ctx, "doc-user", []string{"user-1"})
	require.NoError(t, err)
	require.NotNil(t, doc, "authenticated tenant's document must never be reaped")

	matches, _, err := vector.Scroll(ctx, vectorstore.CollectionDocuments, vectorstore.Filter{TenantKeys: []string{"anon_old"}}, 10, "")
	require.NoError(t, err)
	require.Empty(t, matches, "expired anonymous vector point must be reaped")

	entries, err := mem.List(ctx, "anon_old", 0)
	require.NoError(t, err)
	require.Empty(t, entries, "expired anonymous memory must be reaped")
}

// setCreatedAt back-dates a point's created_at by overwriting its payload,
// since vectorstore.MemStore stamps created_at at Upsert time unless the
// caller supplies one in the payload.
func setCreatedAt(t *testing.T, store vectorstore.Store, collection, id string, ts time.Time) {
	t.Helper()
	require.NoError(t, store.SetPayload(context.Background(), collection, id, map[string]string{
		"tenant_key":  "anon_old",
		"document_id": "doc-expired",
		"created_at":  ts.Format(time.RFC3339),
	}))
}
