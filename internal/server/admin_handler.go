// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// AdminHandler fronts the __shared__ sentinel's write path — the only
// memory partition an ordinary owner check can't gate, since it has no
// single owning tenant_key. Every route here runs behind requireAdmin.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/auditlog"
	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/memorystore"
)

const defaultSharedMemoryListLimit = 100

type AdminHandler struct {
	deps *Dependencies
}

func NewAdminHandler(deps *Dependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type sharedMemoryAddRequest struct {
	Text string `json:"text"`
}

// HandleAddShared implements POST /admin/memory/shared.
func (h *AdminHandler) HandleAddShared(w http.ResponseWriter, r *http.Request) {
	var req sharedMemoryAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	if req.Text == "" {
		writeError(w, r, h.deps.Log, apperror.Validationf("text must not be empty"))
		return
	}
	id, err := h.deps.Memory.AddShared(r.Context(), req.Text, memorystore.Metadata{
		Type:      memorystore.TypeShared,
		Timestamp: time.Now(),
	})
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	h.deps.audit(r.Context(), identity.SharedSentinel, auditlog.ActionSharedWrite, req.Text, correlationIDFrom(r))
	writeJSON(w, http.StatusCreated, memoryAddResponse{ID: id})
}

// HandleListShared implements GET /admin/memory/shared.
func (h *AdminHandler) HandleListShared(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveInt(r.URL.Query().Get("limit"), defaultSharedMemoryListLimit)
	entries, err := h.deps.Memory.List(r.Context(), identity.SharedSentinel, limit)
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to list shared memory", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HandleDeleteShared implements DELETE /admin/memory/shared/{id}.
func (h *AdminHandler) HandleDeleteShared(w http.ResponseWriter, r *http.Request, memoryID string) {
	if err := h.deps.Memory.Delete(r.Context(), identity.SharedSentinel, memoryID); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	h.deps.audit(r.Context(), identity.SharedSentinel, auditlog.ActionSharedDelete, memoryID, correlationIDFrom(r))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

const defaultAuditListLimit = 100

// HandleListAudit implements GET /admin/audit: the admin-only, all-tenant
// view of the append-only audit trail. A non-empty tenant_key query
// parameter narrows the view to a single tenant.
func (h *AdminHandler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	if h.deps.Audit == nil {
		writeError(w, r, h.deps.Log, apperror.New(apperror.Internal, "audit log is not configured"))
		return
	}
	limit := parsePositiveInt(r.URL.Query().Get("limit"), defaultAuditListLimit)
	tenantKey := r.URL.Query().Get("tenant_key")
	records, err := h.deps.Audit.Recent(r.Context(), tenantKey, limit)
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to list audit log", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": records})
}

// HandleLogStream implements GET /admin/logs/stream: a live tail of the
// server's log lines over SSE, admin-only. Grounded directly on the
// teacher's internal/server/logs_handler.go HandleLogStream, which
// subscribes to the same broadcasting *logger.Logger and relays every
// line as an SSE "data:" frame until the client disconnects.
func (h *AdminHandler) HandleLogStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, h.deps.Log, apperror.New(apperror.Internal, "streaming unsupported by response writer"))
		return
	}

	lines, unsub := h.deps.Log.Subscribe()
	if lines == nil {
		writeError(w, r, h.deps.Log, apperror.New(apperror.Internal, "log stream is not available"))
		return
	}
	defer h.deps.Log.Unsubscribe(unsub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: status\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: log\ndata: %s\n\n", line); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
