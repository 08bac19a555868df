// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package users

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/northbound/ragvault/internal/identity"
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

func TestCreateFirstAccountBecomesAdmin(t *testing.T) {
	store := newStore(t)

	first, err := store.Create("alice@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, identity.RoleAdmin, first.Role)

	second, err := store.Create("bob@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, identity.RoleUser, second.Role)
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	store := newStore(t)

	_, err := store.Create("alice@example.com", "password123")
	require.NoError(t, err)

	_, err = store.Create("alice@example.com", "different-password")
	require.Error(t, err)
}

func TestGetByEmailReturnsNilWhenMissing(t *testing.T) {
	store := newStore(t)
	u, err := store.GetByEmail("nobody@example.com")
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestVerifyPasswordAcceptsCorrectAndRejectsWrong(t *testing.T) {
	store := newStore(t)
	account, err := store.Create("alice@example.com", "correct-horse")
	require.NoError(t, err)

	require.True(t, store.VerifyPassword(account, "correct-horse"))
	require.False(t, store.VerifyPassword(account, "wrong-password"))
}
