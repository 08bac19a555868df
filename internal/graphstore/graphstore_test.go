// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package graphstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := New(db)
	require.NoError(t, err)
	return store
}

func TestCreateDocumentAndGetRespectsVisibility(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc := Document{ID: "doc-1", TenantKey: "user-1", Filename: "r.pdf", FileType: "pdf", ByteSize: 10, UploadTime: time.Now().UTC()}
	require.NoError(t, store.CreateDocument(ctx, doc))

	got, err := store.GetDocument(ctx, "doc-1", []string{"user-1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "r.pdf", got.Filename)

	got, err = store.GetDocument(ctx, "doc-1", []string{"user-2"})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDeleteDocumentCascadesChunksAndEdges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc := Document{ID: "doc-1", TenantKey: "user-1", Filename: "r.pdf", FileType: "pdf", ByteSize: 10, UploadTime: time.Now().UTC()}
	require.NoError(t, store.CreateDocument(ctx, doc))
	require.NoError(t, store.CreateChunk(ctx, Chunk{ID: "chunk-1", DocumentID: "doc-1", TenantKey: "user-1", Position: 0, Text: "hello"}))

	entID, err := store.UpsertEntity(ctx, "Atlas", "project", "user-1")
	require.NoError(t, err)
	require.NoError(t, store.LinkChunkEntity(ctx, "chunk-1", entID))

	require.NoError(t, store.DeleteDocument(ctx, "doc-1"))

	exists, err := store.ChunkExists(ctx, "chunk-1")
	require.NoError(t, err)
	require.False(t, exists)

	got, err := store.GetDocument(ctx, "doc-1", []string{"user-1"})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestExpandEntitiesRespectsTenantFilterAndHopBound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateDocument(ctx, Document{ID: "d1", TenantKey: "user-1", Filename: "a.pdf", FileType: "pdf", UploadTime: time.Now().UTC()}))
	require.NoError(t, store.CreateChunk(ctx, Chunk{ID: "c1", DocumentID: "d1", TenantKey: "user-1", Position: 0, Text: "Atlas launches"}))

	atlasID, err := store.UpsertEntity(ctx, "Atlas", "project", "user-1")
	require.NoError(t, err)
	juneID, err := store.UpsertEntity(ctx, "June", "date", "user-1")
	require.NoError(t, err)
	otherTenantID, err := store.UpsertEntity(ctx, "Secret", "project", "user-2")
	require.NoError(t, err)

	require.NoError(t, store.LinkChunkEntity(ctx, "c1", atlasID))
	require.NoError(t, store.LinkEntities(ctx, atlasID, juneID, "RELATES_TO", "user-1"))
	require.NoError(t, store.LinkEntities(ctx, atlasID, otherTenantID, "RELATES_TO", "user-1"))

	edges, err := store.ExpandEntities(ctx, []string{"user-1"}, []string{"c1"}, 2, 15)
	require.NoError(t, err)

	hop1 := 0
	hop2 := 0
	for _, e := range edges["c1"] {
		switch e.Hop {
		case 1:
			hop1++
			require.Equal(t, "Atlas", e.EntityName)
		case 2:
			hop2++
			require.Equal(t, "June", e.EntityName)
		}
	}
	require.Equal(t, 1, hop1)
	require.Equal(t, 1, hop2)
}

func TestRekeyTenantMovesDocumentsAndChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateDocument(ctx, Document{ID: "d1", TenantKey: "anon_abc", Filename: "m.pdf", FileType: "pdf", UploadTime: time.Now().UTC()}))
	require.NoError(t, store.CreateChunk(ctx, Chunk{ID: "c1", DocumentID: "d1", TenantKey: "anon_abc", Position: 0, Text: "x"}))
	require.NoError(t, store.CreateChunk(ctx, Chunk{ID: "c2", DocumentID: "d1", TenantKey: "anon_abc", Position: 1, Text: "y"}))

	docs, chunks, err := store.RekeyTenant(ctx, "anon_abc", "user-9")
	require.NoError(t, err)
	require.Equal(t, 1, docs)
	require.Equal(t, 2, chunks)

	got, err := store.GetDocument(ctx, "d1", []string{"user-9"})
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestDeleteOrphanedEntitiesRemovesOnlyFullyUnlinkedEntities(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateDocument(ctx, Document{ID: "d1", TenantKey: "user-1", Filename: "a.pdf", FileType: "pdf", UploadTime: time.Now().UTC()}))
	require.NoError(t, store.CreateChunk(ctx, Chunk{ID: "c1", DocumentID: "d1", TenantKey: "user-1", Position: 0, Text: "Atlas"}))

	linkedID, err := store.UpsertEntity(ctx, "Atlas", "project", "user-1")
	require.NoError(t, err)
	require.NoError(t, store.LinkChunkEntity(ctx, "c1", linkedID))

	memoryOnlyID, err := store.UpsertEntity(ctx, "June", "date", "user-1")
	require.NoError(t, err)
	require.NoError(t, store.LinkMemoryEntity(ctx, "mem-1", "user-1", memoryOnlyID))

	orphanID, err := store.UpsertEntity(ctx, "Ghost", "misc", "user-1")
	require.NoError(t, err)
	_ = orphanID

	deleted, err := store.DeleteOrphanedEntities(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	// The memory-linked entity survives until its memory edge is removed.
	require.NoError(t, store.DeleteMemoryEdges(ctx, "mem-1"))
	deleted, err = store.DeleteOrphanedEntities(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)
}

func TestReapExpiredDeletesOnlyExpiredAnonymousDocuments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()

	require.NoError(t, store.CreateDocument(ctx, Document{ID: "old", TenantKey: "anon_1", Filename: "o.pdf", FileType: "pdf", UploadTime: old}))
	require.NoError(t, store.CreateDocument(ctx, Document{ID: "new", TenantKey: "anon_2", Filename: "n.pdf", FileType: "pdf", UploadTime: recent}))
	require.NoError(t, store.CreateDocument(ctx, Document{ID: "user-doc", TenantKey: "user-1", Filename: "u.pdf", FileType: "pdf", UploadTime: old}))

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	deleted, err := store.ReapExpired(ctx, "anon_", cutoff)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	got, err := store.GetDocument(ctx, "old", []string{"anon_1"})
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = store.GetDocument(ctx, "new", []string{"anon_2"})
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = store.GetDocument(ctx, "user-doc", []string{"user-1"})
	require.NoError(t, err)
	require.NotNil(t, got)
}
