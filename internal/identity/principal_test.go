// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVisibleTenantKeysIncludesSharedOnlyWhenAuthenticated(t *testing.T) {
	auth := Authenticated("user-1", "u@example.com", RoleUser)
	require.ElementsMatch(t, []string{"user-1", SharedSentinel}, auth.VisibleTenantKeys())

	anon := Anonymous("anon_abc")
	require.Equal(t, []string{"anon_abc"}, anon.VisibleTenantKeys())
}

func TestIsAdminRequiresAuthenticatedAdminRole(t *testing.T) {
	require.True(t, Authenticated("u", "e", RoleAdmin).IsAdmin())
	require.False(t, Authenticated("u", "e", RoleUser).IsAdmin())
	require.False(t, Anonymous("anon_x").IsAdmin())
}
