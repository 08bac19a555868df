// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package comparison implements the ComparisonWorkflow of spec.md §4.6: a
// fixed 4-node state machine (retrieve → expand_graph → compare →
// generate) checkpointed after every node so a killed worker resumes from
// the last completed node rather than restarting. Grounded on the
// teacher's internal/jobs/recalc_job.go (typed payload, one function per
// stage) generalized from a single fire-and-forget queue job into a
// multi-stage resumable run, persisted through internal/checkpoint rather
// than a durable-execution engine: the workflow is a fixed, small node
// count known at compile time, which a hand-rolled switch over
// State.LastNode serves as well as an external orchestrator would, without
// the operational cost of one.
package comparison

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/checkpoint"
	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/llmprovider"
	"github.com/northbound/ragvault/internal/logger"
	"github.com/northbound/ragvault/internal/retriever"
)

const (
	nodeRetrieve    = "retrieve"
	nodeExpandGraph = "expand_graph"
	nodeCompare     = "compare"
	nodeGenerate    = "generate"
)

var nodeOrder = []string{nodeRetrieve, nodeExpandGraph, nodeCompare, nodeGenerate}

const (
	minDocuments  = 2
	maxDocuments  = 5
	minQueryLen   = 10
	chunksPerDoc  = 5
	maxHops       = 2
	maxEdgesTotal = 50
	excerptLen    = 500
)

// RetrievedChunk is the slimmed-down chunk shape a comparison keeps in its
// state; unlike retriever.RetrievedChunk it is JSON-serializable as-is,
// since State is persisted as a JSON blob by the checkpoint store.
type RetrievedChunk struct {
	ID       string  `json:"id"`
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// GraphEdge mirrors retriever.GraphContext's payload, dropping the chunk
// id since it is already grouped by document in State.GraphContext.
type GraphEdge struct {
	EntityName string `json:"entity_name"`
	EntityType string `json:"entity_type"`
	Relation   string `json:"relation"`
	Hop        int    `json:"hop"`
}

// Citation is a reference into a specific document's retrieved chunks,
// attached to the final generated response.
type Citation struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Excerpt    string `json:"excerpt"`
}

// State is the full ComparisonState of spec.md §3, persisted at every node
// boundary.
type State struct {
	Query           string                      `json:"query"`
	TenantKey       string                      `json:"tenant_key"`
	DocumentIDs     []string                    `json:"document_ids"`
	RetrievedChunks map[string][]RetrievedChunk `json:"retrieved_chunks"`
	GraphContext    map[string][]GraphEdge      `json:"graph_context"`
	Similarities    []string                    `json:"similarities"`
	Differences     []string                    `json:"differences"`
	Insights        []string                    `json:"insights"`
	Response        string                      `json:"response"`
	Citations       []Citation                  `json:"citations"`
	Status          string                      `json:"status"`
}

// Result is what Run returns to the caller once the workflow completes.
type Result struct {
	Similarities []string
	Differences  []string
	Insights     []string
	Response     string
	Citations    []Citation
}

// documentRetriever is the slice of *retriever.Retriever the retrieve node
// needs. Declared locally, same structural-interface pattern as
// internal/memorystore.EntityExtractor, so tests can substitute a fake
// without the concrete Retriever depending on comparison in return.
type documentRetriever interface {
	RetrieveFor(ctx context.Context, principal *identity.Principal, query string, documentIDs []string, k int) (retriever.RetrieveResult, error)
}

// Workflow drives the 4-node state machine over a Retriever and an LLM,
// persisting progress through a checkpoint.Store.
type Workflow struct {
	retriever   documentRetriever
	graph       graphstore.Store
	llm         llmprovider.LLM
	checkpoints checkpoint.Store
	log         *logger.Logger
}

func New(r documentRetriever, graph graphstore.Store, llm llmprovider.LLM, checkpoints checkpoint.Store, log *logger.Logger) *Workflow {
	return &Workflow{retriever: r, graph: graph, llm: llm, checkpoints: checkpoints, log: log}
}

// ThreadID builds the checkpoint key spec.md §4.6 mandates, namespaced by
// tenant so two tenants racing the same session_id can never collide.
func ThreadID(tenantKey, sessionID string) string {
	return fmt.Sprintf("%s:doc_compare:%s", tenantKey, sessionID)
}

// Run executes (or resumes) a comparison for sessionID, validating the
// document_ids/query constraints of spec.md §4.6 before touching any
// stored checkpoint.
func (w *Workflow) Run(ctx context.Context, principal *identity.Principal, sessionID, query string, documentIDs []string) (Result, error) {
	if len(query) < minQueryLen {
		return Result{}, apperror.Validationf("query must be at least %d characters", minQueryLen)
	}
	if len(documentIDs) < minDocuments || len(documentIDs) > maxDocuments {
		return Result{}, apperror.Validationf("comparison requires between %d and %d documents", minDocuments, maxDocuments)
	}
	visible := principal.VisibleTenantKeys()
	for _, id := range documentIDs {
		doc, err := w.graph.GetDocument(ctx, id, visible)
		if err != nil {
			return Result{}, apperror.Wrap(apperror.DependencyFailed, "failed to resolve document visibility", err)
		}
		if doc == nil {
			return Result{}, apperror.Forbiddenf("document %s is not visible to this principal", id)
		}
	}

	threadID := ThreadID(principal.TenantKey(), sessionID)
	state, lastNode, err := w.load(ctx, threadID)
	if err != nil {
		return Result{}, err
	}
	if state == nil {
		state = &State{Query: query, TenantKey: principal.TenantKey(), DocumentIDs: documentIDs, Status: "running"}
	}

	for _, node := range nodeOrder {
		if completedBefore(lastNode, node) {
			continue
		}
		var nodeErr error
		switch node {
		case nodeRetrieve:
			nodeErr = w.runRetrieve(ctx, principal, state)
		case nodeExpandGraph:
			nodeErr = w.runExpandGraph(ctx, visible, state)
		case nodeCompare:
			nodeErr = w.runCompare(ctx, state)
		case nodeGenerate:
			nodeErr = w.runGenerate(ctx, state)
		}
		if nodeErr != nil {
			return Result{}, nodeErr
		}
		if err := w.save(ctx, threadID, state, node); err != nil {
			return Result{}, err
		}
		lastNode = node
	}

	state.Status = "complete"
	if err := w.checkpoints.Delete(ctx, threadID); err != nil && w.log != nil {
		w.log.Warnf("comparison: failed to clear completed checkpoint %s: %v", threadID, err)
	}

	return Result{
		Similarities: state.Similarities,
		Differences:  state.Differences,
		Insights:     state.Insights,
		Response:     state.Response,
		Citations:    state.Citations,
	}, nil
}

// completedBefore reports whether node is at or before lastNode in
// nodeOrder, meaning a prior invocation already ran it and it must not be
// re-run on resume.
func completedBefore(lastNode, node string) bool {
	if lastNode == "" {
		return false
	}
	return nodeIndex(node) <= nodeIndex(lastNode)
}

func nodeIndex(node string) int {
	for i, n := range nodeOrder {
		if n == node {
			return i
		}
	}
	return -1
}

func (w *Workflow) load(ctx context.Context, threadID string) (*State, string, error) {
	rec, err := w.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, "", apperror.Wrap(apperror.DependencyFailed, "failed to load comparison checkpoint", err)
	}
	if rec == nil {
		return nil, "", nil
	}
	var state State
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return nil, "", apperror.Wrap(apperror.Internal, "failed to decode comparison checkpoint", err)
	}
	return &state, rec.LastNode, nil
}

func (w *Workflow) save(ctx context.Context, threadID string, state *State, lastNode string) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return apperror.Wrap(apperror.Internal, "failed to encode comparison state", err)
	}
	rec := checkpoint.Record{ThreadID: threadID, State: blob, LastNode: lastNode, UpdatedAt: time.Now().UTC()}
	if err := w.checkpoints.Save(ctx, rec); err != nil {
		return apperror.Wrap(apperror.DependencyFailed, "failed to checkpoint comparison state", err)
	}
	return nil
}
