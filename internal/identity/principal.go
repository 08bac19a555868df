// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package identity produces and validates the Principal that every
// request carries: Authenticated, Anonymous, or the synthetic shared
// sentinel. Generalized from the teacher's context-embedded `user` value
// (internal/server/auth_middleware.go) into the pure tagged-variant value
// type spec.md §9's design note calls for — no inheritance, every store
// call takes a *Principal.
package identity

// Kind distinguishes the Principal variants.
type Kind string

const (
	KindAuthenticated Kind = "authenticated"
	KindAnonymous     Kind = "anonymous"
)

// Role is the authenticated role enum.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// SharedSentinel is the synthetic tenant key for company-wide knowledge.
// It cannot collide with a real user_id (UUID) or anonymous session id
// (anon_-prefixed).
const SharedSentinel = "__shared__"

// Principal is the acting identity of a request.
type Principal struct {
	Kind      Kind
	UserID    string // Authenticated only
	Email     string // Authenticated only
	Role      Role   // Authenticated only
	SessionID string // Anonymous only, "anon_..." prefixed
}

// Authenticated constructs an Authenticated principal.
func Authenticated(userID, email string, role Role) *Principal {
	return &Principal{Kind: KindAuthenticated, UserID: userID, Email: email, Role: role}
}

// Anonymous constructs an Anonymous principal from a session id.
func Anonymous(sessionID string) *Principal {
	return &Principal{Kind: KindAnonymous, SessionID: sessionID}
}

// TenantKey is the string every store call filters on: user_id for
// Authenticated, the anon_... session id for Anonymous.
func (p *Principal) TenantKey() string {
	if p.Kind == KindAuthenticated {
		return p.UserID
	}
	return p.SessionID
}

// IsAdmin is a pure function over the principal; anonymous principals
// always fail.
func (p *Principal) IsAdmin() bool {
	return p.Kind == KindAuthenticated && p.Role == RoleAdmin
}

// CanReadShared reports whether this principal may read __shared__ data.
// Only Authenticated principals can; Anonymous cannot.
func (p *Principal) CanReadShared() bool {
	return p.Kind == KindAuthenticated
}

// VisibleTenantKeys returns every tenant_key this principal may read:
// its own, plus __shared__ if authenticated.
func (p *Principal) VisibleTenantKeys() []string {
	if p.CanReadShared() {
		return []string{p.TenantKey(), SharedSentinel}
	}
	return []string{p.TenantKey()}
}
