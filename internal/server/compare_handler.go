// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"net/http"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/auditlog"
)

type CompareHandler struct {
	deps *Dependencies
}

func NewCompareHandler(deps *Dependencies) *CompareHandler {
	return &CompareHandler{deps: deps}
}

type compareRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Query       string   `json:"query"`
	SessionID   string   `json:"session_id"`
}

// HandleCompare implements POST /compare, requiring authentication per
// spec.md §6's Auth column — the checkpointed workflow keys off the
// caller-supplied session_id, not the identity resolution session_id.
func (h *CompareHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	if len(req.DocumentIDs) < 2 {
		writeError(w, r, h.deps.Log, apperror.Validationf("at least two document_ids are required to compare"))
		return
	}
	if req.Query == "" {
		writeError(w, r, h.deps.Log, apperror.Validationf("query must not be empty"))
		return
	}
	if req.SessionID == "" {
		writeError(w, r, h.deps.Log, apperror.Validationf("session_id is required to key the comparison checkpoint"))
		return
	}

	result, err := h.deps.Comparison.Run(r.Context(), principalFrom(r), req.SessionID, req.Query, req.DocumentIDs)
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	h.deps.audit(r.Context(), principalFrom(r).TenantKey(), auditlog.ActionCompare, req.Query, correlationIDFrom(r))
	writeJSON(w, http.StatusOK, result)
}
