// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package comparison

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/northbound/ragvault/internal/checkpoint"
	"github.com/northbound/ragvault/internal/embeddings"
	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/llmprovider"
	"github.com/northbound/ragvault/internal/retriever"
	"github.com/northbound/ragvault/internal/vectorstore"
)

func newGraph(t *testing.T) *graphstore.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := graphstore.New(db)
	require.NoError(t, err)
	return store
}

func newCheckpoints(t *testing.T) *checkpoint.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := checkpoint.New(db)
	require.NoError(t, err)
	return store
}

func seedTwoDocuments(t *testing.T, ctx context.Context, graph *graphstore.SQLiteStore, vector vectorstore.Store, embedder embeddings.Embedder, tenantKey string) {
	t.Helper()
	vecA, err := embedder.EmbedText(ctx, "doc-a chunk")
	require.NoError(t, err)
	vecB, err := embedder.EmbedText(ctx, "doc-b chunk")
	require.NoError(t, err)

	require.NoError(t, graph.CreateDocument(ctx, graphstore.Document{ID: "doc-a", TenantKey: tenantKey, Filename: "a.pdf", FileType: "pdf"}))
	require.NoError(t, graph.CreateChunk(ctx, graphstore.Chunk{ID: "doc-a-0", DocumentID: "doc-a", TenantKey: tenantKey, Position: 0, Text: "Acme posted strong revenue growth this quarter."}))
	require.NoError(t, vector.Upsert(ctx, vectorstore.CollectionDocuments, "doc-a-0", vecA, map[string]string{
		"tenant_key": tenantKey, "document_id": "doc-a", "position": "0", "text": "Acme posted strong revenue growth this quarter.",
	}))
	entityID, err := graph.UpsertEntity(ctx, "Acme", "org", tenantKey)
	require.NoError(t, err)
	require.NoError(t, graph.LinkChunkEntity(ctx, "doc-a-0", entityID))

	require.NoError(t, graph.CreateDocument(ctx, graphstore.Document{ID: "doc-b", TenantKey: tenantKey, Filename: "b.pdf", FileType: "pdf"}))
	require.NoError(t, graph.CreateChunk(ctx, graphstore.Chunk{ID: "doc-b-0", DocumentID: "doc-b", TenantKey: tenantKey, Position: 0, Text: "Acme revenue declined slightly versus last year."}))
	require.NoError(t, vector.Upsert(ctx, vectorstore.CollectionDocuments, "doc-b-0", vecB, map[string]string{
		"tenant_key": tenantKey, "document_id": "doc-b", "position": "0", "text": "Acme revenue declined slightly versus last year.",
	}))
}

func TestRunRejectsTooFewDocuments(t *testing.T) {
	graph := newGraph(t)
	vector := vectorstore.NewMemStore(4)
	embedder := embeddings.NewMockEmbedder(4)
	llm := llmprovider.NewMockProvider(`{"similarities":[],"differences":[],"insights":[]}`)
	cp := newCheckpoints(t)
	r := retriever.New(vector, graph, embedder, nil, nil)
	w := New(r, graph, llm, cp, nil)
	principal := identity.Authenticated("user-1", "u@example.com", identity.RoleUser)

	_, err := w.Run(context.Background(), principal, "s1", "a long enough query", []string{"doc-a"})
	require.Error(t, err)
}

func TestRunRejectsShortQuery(t *testing.T) {
	graph := newGraph(t)
	vector := vectorstore.NewMemStore(4)
	embedder := embeddings.NewMockEmbedder(4)
	llm := llmprovider.NewMockProvider(`{"similarities":[],"differences":[],"insights":[]}`)
	cp := newCheckpoints(t)
	r := retriever.New(vector, graph, embedder, nil, nil)
	w := New(r, graph, llm, cp, nil)
	principal := identity.Authenticated("user-1", "u@example.com", identity.RoleUser)

	_, err := w.Run(context.Background(), principal, "s1", "short", []string{"doc-a", "doc-b"})
	require.Error(t, err)
}

func TestRunRejectsDocumentNotVisibleToPrincipal(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)
	vector := vectorstore.NewMemStore(4)
	embedder := embeddings.NewMockEmbedder(4)
	seedTwoDocuments(t, ctx, graph, vector, embedder, "user-1")
	llm := llmprovider.NewMockProvider(`{"similarities":[],"differences":[],"insights":[]}`)
	cp := newCheckpoints(t)
	r := retriever.New(vector, graph, embedder, nil, nil)
	w := New(r, graph, llm, cp, nil)

	outsider := identity.Authenticated("user-2", "u2@example.com", identity.RoleUser)
	_, err := w.Run(ctx, outsider, "s1", "a long enough query about acme", []string{"doc-a", "doc-b"})
	require.Error(t, err)
}

func TestRunCompletesAndReturnsAnalysisWithCitations(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)
	vector := vectorstore.NewMemStore(4)
	embedder := embeddings.NewMockEmbedder(4)
	seedTwoDocuments(t, ctx, graph, vector, embedder, "user-1")
	llm := llmprovider.NewMockProvider(`{"similarities":["both mention Acme revenue"],"differences":["doc-a reports growth, doc-b reports decline"],"insights":["the documents may cover different periods"]}`)
	cp := newCheckpoints(t)
	r := retriever.New(vector, graph, embedder, nil, nil)
	w := New(r, graph, llm, cp, nil)
	principal := identity.Authenticated("user-1", "u@example.com", identity.RoleUser)

	result, err := w.Run(ctx, principal, "s1", "how does revenue compare across documents", []string{"doc-a", "doc-b"})
	require.NoError(t, err)
	require.Equal(t, []string{"both mention Acme revenue"}, result.Similarities)
	require.Equal(t, []string{"doc-a reports growth, doc-b reports decline"}, result.Differences)
	require.Equal(t, []string{"the documents may cover different periods"}, result.Insights)
	require.NotEmpty(t, result.Response)
	require.Len(t, result.Citations, 2)

	got, err := cp.Load(ctx, ThreadID("user-1", "s1"))
	require.NoError(t, err)
	require.Nil(t, got, "a completed workflow must clear its checkpoint")
}

// TestRunResumesFromLastCompletedNode simulates a worker killed between
// expand_graph and compare: it runs the workflow through node 2 by hand,
// persists that checkpoint, then reinvokes Run and asserts retrieve was
// not recomputed (via a retriever that fails the test if asked to
// retrieve again) while the run still completes with non-empty
// similarities.
func TestRunResumesFromLastCompletedNode(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)
	vector := vectorstore.NewMemStore(4)
	embedder := embeddings.NewMockEmbedder(4)
	seedTwoDocuments(t, ctx, graph, vector, embedder, "user-1")
	llm := llmprovider.NewMockProvider(`{"similarities":["match"],"differences":["diff"],"insights":["insight"]}`)
	cp := newCheckpoints(t)
	principal := identity.Authenticated("user-1", "u@example.com", identity.RoleUser)

	primer := New(retriever.New(vector, graph, embedder, nil, nil), graph, llm, cp, nil)
	state := &State{Query: "how does revenue compare", TenantKey: "user-1", DocumentIDs: []string{"doc-a", "doc-b"}, Status: "running"}
	require.NoError(t, primer.runRetrieve(ctx, principal, state))
	require.NoError(t, primer.save(ctx, ThreadID("user-1", "s1"), state, nodeRetrieve))
	require.NoError(t, primer.runExpandGraph(ctx, principal.VisibleTenantKeys(), state))
	require.NoError(t, primer.save(ctx, ThreadID("user-1", "s1"), state, nodeExpandGraph))

	resumed := New(&explodingRetriever{t: t}, graph, llm, cp, nil)
	result, err := resumed.Run(ctx, principal, "s1", "how does revenue compare", []string{"doc-a", "doc-b"})
	require.NoError(t, err)
	require.Equal(t, []string{"match"}, result.Similarities)
}

// explodingRetriever stands in for retriever.Retriever in the resume test:
// any call means a completed node was re-run, which is the bug under test.
type explodingRetriever struct{ t *testing.T }

func (e *explodingRetriever) RetrieveFor(context.Context, *identity.Principal, string, []string, int) (retriever.RetrieveResult, error) {
	e.t.Fatal("retrieve node must not re-run after resuming past it")
	return retriever.RetrieveResult{}, errors.New("unreachable")
}

func TestParseCompareHeadingsFallsBackOnNonJSONResponse(t *testing.T) {
	raw := "Similarities:\n- both are quarterly reports\nDifferences:\n- different fiscal years\nInsights:\n- seasonal effect likely"
	out := parseCompareHeadings(raw)
	require.Equal(t, []string{"both are quarterly reports"}, out.Similarities)
	require.Equal(t, []string{"different fiscal years"}, out.Differences)
	require.Equal(t, []string{"seasonal effect likely"}, out.Insights)
}

func TestRunFallsBackToEmptyAnalysisWhenLLMFails(t *testing.T) {
	ctx := context.Background()
	graph := newGraph(t)
	vector := vectorstore.NewMemStore(4)
	embedder := embeddings.NewMockEmbedder(4)
	seedTwoDocuments(t, ctx, graph, vector, embedder, "user-1")
	llm := failingLLM{err: errors.New("provider down")}
	cp := newCheckpoints(t)
	r := retriever.New(vector, graph, embedder, nil, nil)
	w := New(r, graph, llm, cp, nil)
	principal := identity.Authenticated("user-1", "u@example.com", identity.RoleUser)

	result, err := w.Run(ctx, principal, "s2", "how does revenue compare please", []string{"doc-a", "doc-b"})
	require.NoError(t, err)
	require.Empty(t, result.Similarities)
	require.Empty(t, result.Differences)
	require.Empty(t, result.Insights)
	require.NotEmpty(t, result.Response)
}

type failingLLM struct{ err error }

func (f failingLLM) Complete(context.Context, []llmprovider.Message) (llmprovider.Result, error) {
	return llmprovider.Result{}, f.err
}
func (f failingLLM) Stream(context.Context, []llmprovider.Message, func(llmprovider.Delta)) error {
	return f.err
}
