// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Rewritten from the teacher's session-cookie login/logout pair
// (HandleLogin/HandleLogout/HandleMe) into the JWT access/refresh pair of
// spec.md §4.1/§6, with registration synchronously folding an anonymous
// session's data via internal/migrator per spec.md §4.7.
package server

import (
	"net/http"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/migrator"
	"github.com/northbound/ragvault/internal/users"
)

type AuthHandler struct {
	gw       *identity.Gateway
	accounts *users.Store
	migrate  *migrator.Migrator
	deps     *Dependencies
}

func NewAuthHandler(deps *Dependencies) *AuthHandler {
	return &AuthHandler{gw: deps.Gateway, accounts: deps.Users, migrate: deps.Migrator, deps: deps}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	Access    string          `json:"access"`
	Refresh   string          `json:"refresh"`
	Migration *migrator.Stats `json:"migration,omitempty"`
}

// HandleRegister implements POST /auth/register: creates the account,
// folds any pre-existing anonymous session onto it, then issues a token
// pair, all before responding — per spec.md §4.7's "invoked synchronously
// inside registration before success response".
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		writeError(w, r, h.deps.Log, apperror.Validationf("email and an at-least-8-character password are required"))
		return
	}

	account, err := h.accounts.Create(req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}

	resp := registerResponse{}
	if anon := principalFrom(r); anon != nil && anon.Kind == identity.KindAnonymous {
		stats := h.migrate.Migrate(r.Context(), anon.SessionID, account.ID)
		resp.Migration = &stats
	}

	access, refresh, err := h.gw.IssuePair(r.Context(), account.ID, account.Email, account.Role)
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	resp.Access, resp.Refresh = access, refresh
	writeJSON(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// HandleLogin implements POST /auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}

	account, err := h.accounts.GetByEmail(req.Email)
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	if account == nil || !h.accounts.VerifyPassword(account, req.Password) {
		writeError(w, r, h.deps.Log, apperror.Unauthorizedf("invalid email or password"))
		return
	}

	access, refresh, err := h.gw.IssuePair(r.Context(), account.ID, account.Email, account.Role)
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{Access: access, Refresh: refresh})
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// HandleRefresh implements POST /auth/refresh: single-use rotation.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	access, refresh, err := h.gw.RotateRefresh(r.Context(), req.Refresh)
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{Access: access, Refresh: refresh})
}

// HandleLogout implements POST /auth/logout: blocklists the bearer
// token's jti for the remainder of its lifetime.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	jti, remaining, err := h.gw.CurrentAccessJTI(r)
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	if err := h.gw.Blocklist(r.Context(), jti, remaining); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
