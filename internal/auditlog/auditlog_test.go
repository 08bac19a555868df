// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package auditlog

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := New(db)
	require.NoError(t, err)
	return store
}

func TestLogAndRecentScopedByTenant(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Log(ctx, "tenant-a", ActionIngest, "uploaded doc1.pdf", "corr-1"))
	require.NoError(t, store.Log(ctx, "tenant-b", ActionQuery, "query: what is x?", "corr-2"))
	require.NoError(t, store.Log(ctx, "tenant-a", ActionQuery, "query: what is y?", "corr-3"))

	tenantA, err := store.Recent(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, tenantA, 2)
	require.Equal(t, ActionQuery, tenantA[0].Action)
	require.Equal(t, ActionIngest, tenantA[1].Action)

	all, err := store.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRecentDefaultsLimit(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Log(ctx, "tenant-a", ActionIngest, "doc", "corr"))
	}
	rows, err := store.Recent(ctx, "tenant-a", 0)
	require.NoError(t, err)
	require.Len(t, rows, 5)
}
