// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northbound/ragvault/internal/kvstore"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	kv, err := kvstore.New(context.Background(), client)
	require.NoError(t, err)

	return NewGateway(Config{
		Secret:          "test-secret",
		AccessLifetime:  time.Hour,
		RefreshLifetime: 24 * time.Hour,
		AnonymousTTL:    30 * 24 * time.Hour,
	}, kv)
}

func TestResolveMintsFreshAnonymousWhenNoCredentials(t *testing.T) {
	g := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	p, cookie, err := g.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, KindAnonymous, p.Kind)
	require.NotNil(t, cookie)
	require.True(t, len(p.SessionID) > len(AnonPrefix))
}

func TestResolveReusesExistingAnonymousCookie(t *testing.T) {
	g := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "anon_existing123"})

	p, cookie, err := g.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "anon_existing123", p.SessionID)
	require.Nil(t, cookie)
}

func TestResolveAuthenticatesValidBearerToken(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway(t)

	access, _, err := g.IssuePair(ctx, "user-1", "u@example.com", RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)

	p, _, err := g.Resolve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, KindAuthenticated, p.Kind)
	require.Equal(t, "user-1", p.UserID)
}

func TestRotateRefreshIsSingleUse(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway(t)

	_, refresh, err := g.IssuePair(ctx, "user-1", "u@example.com", RoleUser)
	require.NoError(t, err)

	_, newRefresh, err := g.RotateRefresh(ctx, refresh)
	require.NoError(t, err)
	require.NotEmpty(t, newRefresh)

	_, _, err = g.RotateRefresh(ctx, refresh)
	require.Error(t, err)
}

func TestBlocklistedTokenIsRejected(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway(t)

	access, _, err := g.IssuePair(ctx, "user-1", "u@example.com", RoleUser)
	require.NoError(t, err)

	c, err := g.parse(access)
	require.NoError(t, err)
	require.NoError(t, g.Blocklist(ctx, c.ID, time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	_, _, err = g.Resolve(ctx, req)
	require.Error(t, err)
}
