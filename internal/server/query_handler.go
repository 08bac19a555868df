// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Rewritten from the teacher's internal/server/chat_handler.go, whose
// HandleChatStream hand-rolled SSE writes inline in the handler body.
// Here this file emits the leading status (retrieving) event itself;
// the rest of the event order comes from internal/generator's channel,
// which this file translates onto the wire.
package server

import (
	"bufio"
	"fmt"
	"net/http"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/auditlog"
	"github.com/northbound/ragvault/internal/generator"
	"github.com/northbound/ragvault/internal/memorystore"
	"github.com/northbound/ragvault/internal/retriever"
)

const defaultRetrieveK = 8

type QueryHandler struct {
	deps *Dependencies
}

func NewQueryHandler(deps *Dependencies) *QueryHandler {
	return &QueryHandler{deps: deps}
}

type queryRequest struct {
	Query        string   `json:"query"`
	DocumentIDs  []string `json:"document_ids,omitempty"`
	IncludeGraph bool     `json:"include_graph,omitempty"`
}

type queryResponse struct {
	Answer     string               `json:"answer"`
	Citations  []generator.Citation `json:"citations"`
	Confidence generator.Confidence `json:"confidence"`
}

func (h *QueryHandler) retrieveAndRecallMemory(r *http.Request, req queryRequest) (retriever.RetrieveResult, []memorystore.Entry, error) {
	principal := principalFrom(r)

	var result retriever.RetrieveResult
	var err error
	if len(req.DocumentIDs) > 0 {
		result, err = h.deps.Retriever.RetrieveFor(r.Context(), principal, req.Query, req.DocumentIDs, defaultRetrieveK)
	} else {
		result, err = h.deps.Retriever.Retrieve(r.Context(), principal, req.Query, defaultRetrieveK, retriever.RetrieveOptions{IncludeGraph: req.IncludeGraph})
	}
	if err != nil {
		return retriever.RetrieveResult{}, nil, err
	}

	memEntries, err := h.deps.Memory.SearchWithShared(r.Context(), principal, req.Query, defaultRetrieveK)
	if err != nil {
		if h.deps.Log != nil {
			h.deps.Log.Warnf("query: memory recall failed, proceeding without it: %v", err)
		}
		memEntries = nil
	}
	return result, memEntries, nil
}

// HandleQuery implements POST /query: a single non-streamed answer.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	if req.Query == "" {
		writeError(w, r, h.deps.Log, apperror.Validationf("query must not be empty"))
		return
	}

	retrieved, memEntries, err := h.retrieveAndRecallMemory(r, req)
	if err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}

	answer, err := h.deps.Generator.Answer(r.Context(), principalFrom(r), req.Query, retrieved, memEntries)
	if err != nil {
		writeError(w, r, h.deps.Log, apperror.Wrap(apperror.DependencyFailed, "failed to generate answer", err))
		return
	}
	h.deps.audit(r.Context(), principalFrom(r).TenantKey(), auditlog.ActionQuery, req.Query, correlationIDFrom(r))
	writeJSON(w, http.StatusOK, queryResponse{Answer: answer.Text, Citations: answer.Citations, Confidence: answer.Confidence})
}

type sseEvent struct {
	name string
	data any
}

func writeSSE(bw *bufio.Writer, flusher http.Flusher, ev sseEvent) error {
	if _, err := fmt.Fprintf(bw, "event: %s\n", ev.name); err != nil {
		return err
	}
	payload, err := jsonMarshalCompact(ev.data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(bw, "data: %s\n\n", payload); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// HandleQueryStream implements POST /query/stream, emitting the ordered
// SSE sequence of spec.md §4.4/§6: status(retrieving), citations,
// status(generating), token*, confidence, done — or an error event in
// place of the tail. Retrieval runs synchronously on this goroutine so
// the retrieving beacon can be flushed before it starts.
func (h *QueryHandler) HandleQueryStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.deps.Log, err)
		return
	}
	if req.Query == "" {
		writeError(w, r, h.deps.Log, apperror.Validationf("query must not be empty"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, h.deps.Log, apperror.New(apperror.Internal, "streaming unsupported by response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	if err := writeSSE(bw, flusher, sseEvent{name: "status", data: map[string]string{"stage": "retrieving"}}); err != nil {
		return
	}

	retrieved, memEntries, err := h.retrieveAndRecallMemory(r, req)
	if err != nil {
		writeSSE(bw, flusher, sseEvent{name: "error", data: map[string]string{"error": err.Error()}})
		return
	}

	events, err := h.deps.Generator.StreamAnswer(r.Context(), principalFrom(r), req.Query, retrieved, memEntries)
	if err != nil {
		writeSSE(bw, flusher, sseEvent{name: "error", data: map[string]string{"error": err.Error()}})
		return
	}

	h.deps.audit(r.Context(), principalFrom(r).TenantKey(), auditlog.ActionQuery, req.Query, correlationIDFrom(r))

	for ev := range events {
		if err := translateGeneratorEvent(bw, flusher, ev); err != nil {
			if h.deps.Log != nil {
				h.deps.Log.Warnf("query: client disconnected mid-stream: %v", err)
			}
			return
		}
		if ev.Type == generator.EventDone || ev.Type == generator.EventError {
			return
		}
	}
}

func translateGeneratorEvent(bw *bufio.Writer, flusher http.Flusher, ev generator.Event) error {
	switch ev.Type {
	case generator.EventStatus:
		return writeSSE(bw, flusher, sseEvent{name: "status", data: map[string]string{"stage": ev.Stage}})
	case generator.EventCitations:
		return writeSSE(bw, flusher, sseEvent{name: "citations", data: ev.Citations})
	case generator.EventToken:
		return writeSSE(bw, flusher, sseEvent{name: "token", data: map[string]string{"token": ev.Token}})
	case generator.EventConfidence:
		return writeSSE(bw, flusher, sseEvent{name: "confidence", data: ev.Confidence})
	case generator.EventDone:
		return writeSSE(bw, flusher, sseEvent{name: "done", data: map[string]bool{"done": true}})
	case generator.EventError:
		return writeSSE(bw, flusher, sseEvent{name: "error", data: map[string]string{"error": ev.Err}})
	}
	return nil
}
