// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"net/http"
	"time"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/memorystore"
)

const defaultMemoryListLimit = 50

type MemoryHandler struct {
	deps *Dependencies
}

func NewMemoryHandler(deps *Dependencies) *MemoryHandler {
	return &MemoryHandler{deps: deps}
}

type memoryAddRequest struct {
	Text string           `json:"text"`
	Type memorystore.Type `json:"type,omitempty"`
}

type memoryAddResponse struct {
	ID string `json:"id"`
}

// HandleList implements GET /memory.
func (h *MemoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveInt(r.URL.Query().Get("limit"), defaultMemoryListLimit)
	entries, err := h.deps.Memory.List(r.Context(), principalFrom(r).TenantKey(), limit)
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to list memory", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HandleAdd implements POST /memory.
func (h *MemoryHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req memoryAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	if req.Text == "" {
		writeError(w, r, h.deps.Log, apperror.Validationf("text must not be empty"))
		return
	}
	typ := req.Type
	if typ == "" {
		typ = memorystore.TypeFact
	}

	id, err := h.deps.Memory.Add(r.Context(), principalFrom(r).TenantKey(), req.Text, memorystore.Metadata{
		Type:      typ,
		Timestamp: time.Now(),
	})
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, memoryAddResponse{ID: id})
}

// HandleDelete implements DELETE /memory/{id}: owner-only, scoped to the
// caller's own tenant_key so no principal can delete another's entry by id.
func (h *MemoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request, memoryID string) {
	if err := h.deps.Memory.Delete(r.Context(), principalFrom(r).TenantKey(), memoryID); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
