// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/kvstore"
)

const (
	sessionCookieName = "session_id"
	// AnonPrefix marks every anonymous session id and tenant_key, so the
	// Reaper can select anonymous-only rows with a single LIKE-prefix
	// filter across graph, vector, and memory stores.
	AnonPrefix       = "anon_"
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Config carries the wire-contract parameters of spec §6.
type Config struct {
	Secret          string
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
	AnonymousTTL    time.Duration
	CookieSecure    bool
}

// Gateway produces and validates Principals per spec.md §4.1.
type Gateway struct {
	cfg Config
	kv  kvstore.Store
}

// NewGateway constructs a Gateway.
func NewGateway(cfg Config, kv kvstore.Store) *Gateway {
	return &Gateway{cfg: cfg, kv: kv}
}

type claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Type   string `json:"type,omitempty"`
}

// Resolve implements the 3-step resolution order: bearer JWT, then
// anonymous cookie, then mint a fresh anonymous session. It returns the
// Principal and, when a new cookie needs to be set, the cookie to attach
// to the response.
func (g *Gateway) Resolve(ctx context.Context, r *http.Request) (*Principal, *http.Cookie, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		token, err := bearerToken(auth)
		if err == nil {
			p, verr := g.verifyAccess(ctx, token)
			if verr != nil {
				return nil, nil, verr
			}
			return p, nil, nil
		}
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil && isWellFormedAnon(cookie.Value) {
		return Anonymous(cookie.Value), nil, nil
	}

	sessionID, err := mintAnonSessionID()
	if err != nil {
		return nil, nil, apperror.Wrap(apperror.Internal, "failed to mint anonymous session", err)
	}
	newCookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   g.cfg.CookieSecure,
		MaxAge:   int(g.cfg.AnonymousTTL.Seconds()),
		Path:     "/",
	}
	return Anonymous(sessionID), newCookie, nil
}

func bearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", errors.New("identity: missing bearer prefix")
	}
	return header[len(prefix):], nil
}

func isWellFormedAnon(v string) bool {
	return len(v) > len(AnonPrefix) && v[:len(AnonPrefix)] == AnonPrefix
}

func mintAnonSessionID() (string, error) {
	buf := make([]byte, 24) // >= 192 bits of entropy
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return AnonPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssuePair mints a fresh {access, refresh} token pair for a newly
// authenticated user, persisting the refresh hash.
func (g *Gateway) IssuePair(ctx context.Context, userID, email string, role Role) (access, refresh string, err error) {
	now := time.Now()
	jti := uuid.NewString()

	access, err = g.sign(claims{
		UserID: userID,
		Role:   string(role),
		Type:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.cfg.AccessLifetime)),
		},
	})
	if err != nil {
		return "", "", err
	}

	refreshJTI := uuid.NewString()
	refresh, err = g.sign(claims{
		UserID: userID,
		Role:   string(role),
		Type:   tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        refreshJTI,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.cfg.RefreshLifetime)),
		},
	})
	if err != nil {
		return "", "", err
	}

	if err := g.kv.SaveRefresh(ctx, userID, refreshJTI, hashToken(refresh), g.cfg.RefreshLifetime); err != nil {
		return "", "", apperror.Wrap(apperror.Internal, "failed to persist refresh token", err)
	}
	return access, refresh, nil
}

func (g *Gateway) sign(c claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(g.cfg.Secret))
	if err != nil {
		return "", apperror.Wrap(apperror.Internal, "failed to sign token", err)
	}
	return signed, nil
}

func (g *Gateway) verifyAccess(ctx context.Context, token string) (*Principal, error) {
	c, err := g.parse(token)
	if err != nil {
		return nil, err
	}
	if c.Type != tokenTypeAccess {
		return nil, apperror.New(apperror.Unauthorized, "wrong token type")
	}

	blocked, err := g.kv.IsBlocklisted(ctx, c.ID)
	if err != nil {
		return nil, apperror.Wrap(apperror.DependencyFailed, "blocklist check failed", err)
	}
	if blocked {
		return nil, apperror.New(apperror.Unauthorized, "token revoked")
	}

	return Authenticated(c.UserID, c.Subject, Role(c.Role)), nil
}

func (g *Gateway) parse(token string) (*claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(g.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, apperror.Wrap(apperror.Unauthorized, "invalid token", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, apperror.New(apperror.Unauthorized, "invalid token")
	}
	return c, nil
}

// CurrentAccessJTI extracts the jti and remaining lifetime of the bearer
// access token on r, for handlers (logout) that need to blocklist the
// token presented on the current request rather than one passed in a body.
func (g *Gateway) CurrentAccessJTI(r *http.Request) (jti string, remaining time.Duration, err error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", 0, apperror.New(apperror.Unauthorized, "missing authorization header")
	}
	token, err := bearerToken(auth)
	if err != nil {
		return "", 0, apperror.Wrap(apperror.Unauthorized, "missing bearer prefix", err)
	}
	c, err := g.parse(token)
	if err != nil {
		return "", 0, err
	}
	if c.Type != tokenTypeAccess {
		return "", 0, apperror.New(apperror.Unauthorized, "wrong token type")
	}
	remaining = time.Until(c.ExpiresAt.Time)
	return c.ID, remaining, nil
}

// Blocklist revokes the jti of the given access token for the remainder
// of its lifetime.
func (g *Gateway) Blocklist(ctx context.Context, jti string, remaining time.Duration) error {
	if remaining <= 0 {
		remaining = time.Minute
	}
	if err := g.kv.Blocklist(ctx, jti, remaining); err != nil {
		return apperror.Wrap(apperror.Internal, "failed to blocklist token", err)
	}
	return nil
}

// RotateRefresh implements single-use rotation: validate shape/signature/
// expiry, then atomically validate-and-delete the stored hash; any
// failure to delete refuses to issue a new pair. Returns a fresh pair.
func (g *Gateway) RotateRefresh(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	c, err := g.parse(refreshToken)
	if err != nil {
		return "", "", err
	}
	if c.Type != tokenTypeRefresh {
		return "", "", apperror.New(apperror.Unauthorized, "wrong token type")
	}

	if err := g.kv.ConsumeRefresh(ctx, c.UserID, c.ID, hashToken(refreshToken)); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return "", "", apperror.New(apperror.Unauthorized, "refresh token already used or unknown")
		}
		return "", "", apperror.Wrap(apperror.Unauthorized, "refresh token invalid", err)
	}

	return g.IssuePair(ctx, c.UserID, c.Subject, Role(c.Role))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
