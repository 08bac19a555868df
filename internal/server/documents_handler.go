// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Rewritten from the teacher's internal/server/ingest_handler.go (a
// single synchronous Qdrant-upsert handler) into the five endpoints of
// spec.md §6 that front internal/ingestor's async pipeline and
// internal/graphstore's Document records.
package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/auditlog"
	"github.com/northbound/ragvault/internal/generator"
	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/ingestor"
)

type DocumentsHandler struct {
	ing  *ingestor.Ingestor
	gen  *generator.Generator
	deps *Dependencies
}

func NewDocumentsHandler(deps *Dependencies) *DocumentsHandler {
	return &DocumentsHandler{ing: deps.Ingestor, gen: deps.Generator, deps: deps}
}

type uploadResponse struct {
	DocumentID string `json:"document_id"`
}

const maxMultipartMemory = 32 << 20

// HandleUpload implements POST /documents/upload.
func (h *DocumentsHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, r, h.deps.Log, apperror.Validationf("failed to parse multipart upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Validationf("missing file field: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.Internal, "failed to read upload", err))
		return
	}

	tenantKey := principalFrom(r).TenantKey()
	docID, err := h.ing.Ingest(r.Context(), tenantKey, header.Filename, data)
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	h.deps.audit(r.Context(), tenantKey, auditlog.ActionIngest, header.Filename, correlationIDFrom(r))
	writeJSON(w, http.StatusAccepted, uploadResponse{DocumentID: docID})
}

type documentView struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	ByteSize   int64  `json:"byte_size"`
	ChunkCount int    `json:"chunk_count"`
}

func viewOf(d graphstore.Document) documentView {
	return documentView{ID: d.ID, Filename: d.Filename, FileType: d.FileType, ByteSize: d.ByteSize, ChunkCount: d.ChunkCount}
}

// HandleList implements GET /documents.
func (h *DocumentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.deps.Graph.ListDocuments(r.Context(), principalFrom(r).VisibleTenantKeys())
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to list documents", err))
		return
	}
	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, viewOf(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": views})
}

// HandleGet implements GET /documents/{id}.
func (h *DocumentsHandler) HandleGet(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, err := h.deps.Graph.GetDocument(r.Context(), documentID, principalFrom(r).VisibleTenantKeys())
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to load document", err))
		return
	}
	if doc == nil {
		writeError(w, r, h.deps.Log, apperror.NotFoundf("document not found"))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*doc))
}

// HandleStatus implements GET /documents/{id}/status.
func (h *DocumentsHandler) HandleStatus(w http.ResponseWriter, r *http.Request, documentID string) {
	rec, ok := h.ing.Tasks().Get(documentID)
	if !ok {
		writeError(w, r, h.deps.Log, apperror.NotFoundf("no ingest task found for document"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleDelete implements DELETE /documents/{id}: only the owning tenant
// (never a shared-sentinel reader) may delete, per spec.md §3's Document
// invariant.
func (h *DocumentsHandler) HandleDelete(w http.ResponseWriter, r *http.Request, documentID string) {
	principal := principalFrom(r)
	doc, err := h.deps.Graph.GetDocument(r.Context(), documentID, []string{principal.TenantKey()})
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to load document", err))
		return
	}
	if doc == nil {
		writeError(w, r, h.deps.Log, apperror.NotFoundf("document not found"))
		return
	}
	if err := h.deps.Graph.DeleteDocument(r.Context(), documentID); err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to delete document", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleSummary implements GET /documents/{id}/summary?format=...: returns
// the cached brief summary on a brief-format hit, else generates on the
// fly — "generates on miss" per spec.md §6 — reconstituting the document
// text from its chunks since the raw upload is not retained past ingest.
func (h *DocumentsHandler) HandleSummary(w http.ResponseWriter, r *http.Request, documentID string) {
	principal := principalFrom(r)
	doc, err := h.deps.Graph.GetDocument(r.Context(), documentID, principal.VisibleTenantKeys())
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to load document", err))
		return
	}
	if doc == nil {
		writeError(w, r, h.deps.Log, apperror.NotFoundf("document not found"))
		return
	}

	format := generator.SummaryFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = generator.SummaryBrief
	}
	if format == generator.SummaryBrief && doc.SummaryCache != "" {
		writeJSON(w, http.StatusOK, map[string]string{"format": string(format), "summary": doc.SummaryCache})
		return
	}

	chunks, err := h.deps.Graph.ChunksByDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to load chunks", err))
		return
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	documentText := strings.Join(texts, "\n\n")

	summary, err := h.gen.Summarize(r.Context(), documentText, format)
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to generate summary", err))
		return
	}
	if format == generator.SummaryBrief {
		if err := h.deps.Graph.SetSummaryCache(r.Context(), documentID, summary); err != nil && h.deps.Log != nil {
			h.deps.Log.Warnf("documents: failed to persist brief summary cache for %s: %v", documentID, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"format": string(format), "summary": summary})
}

// parsePositiveInt is a tiny helper shared by handlers that accept an
// optional integer query parameter with a default.
func parsePositiveInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
