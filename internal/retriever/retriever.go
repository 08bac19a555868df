// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package retriever implements the hybrid retrieval step of spec.md §4.3:
// a vector search and a best-effort graph entity lookup run concurrently,
// are merged with a hybrid score boost, then optionally expanded with a
// bounded multi-hop graph traversal. Generalized from the teacher's
// server/chat_handler.go (embed query, search Qdrant, assemble context)
// into a dual-source fan-out, using golang.org/x/sync/errgroup the way
// intelligencedev-manifold's agent orchestration does for concurrent,
// error-isolated branches.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/northbound/ragvault/internal/embeddings"
	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/logger"
	"github.com/northbound/ragvault/internal/vectorstore"
)

// Method identifies which source(s) surfaced a RetrievedChunk.
type Method string

const (
	MethodVector Method = "vector"
	MethodGraph  Method = "graph"
	MethodHybrid Method = "hybrid"
)

const (
	hybridBoost    = 1.2
	graphOnlyScore = 0.7
	maxHops        = 2
	maxEdgesPerHop = 15
	entityBudget   = 3 * time.Second
)

// RetrievedChunk is one scored chunk returned from Retrieve, per §4.3.
type RetrievedChunk struct {
	ID         string
	DocumentID string
	Filename   string
	Position   int
	Text       string
	Score      float64
	Method     Method
}

// GraphContext is one hop of the bounded multi-hop expansion, annotated
// with the chunk it was expanded from and its hop distance (1 or 2).
type GraphContext struct {
	ChunkID    string
	EntityName string
	EntityType string
	Relation   string
	Hop        int
}

// RetrieveOptions toggles optional, more expensive retrieval behavior.
type RetrieveOptions struct {
	IncludeGraph bool
}

// RetrieveResult is the full output of a Retrieve/RetrieveFor call.
type RetrieveResult struct {
	Chunks []RetrievedChunk
	Graph  []GraphContext
}

// EntityExtractor pulls named entities out of a natural-language query so
// the graph lookup has something to match against. Implementations MUST
// return a non-error empty slice rather than block indefinitely; Retrieve
// additionally enforces entityBudget as a hard timeout.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, query string) ([]string, error)
}

// Retriever fuses vector similarity search with graph entity expansion.
type Retriever struct {
	vector   vectorstore.Store
	graph    graphstore.Store
	embedder embeddings.Embedder
	entities EntityExtractor
	log      *logger.Logger
}

// New constructs a Retriever. entities may be nil, in which case the graph
// lookup is skipped entirely and every result comes from vector search.
func New(vector vectorstore.Store, graph graphstore.Store, embedder embeddings.Embedder, entities EntityExtractor, log *logger.Logger) *Retriever {
	return &Retriever{vector: vector, graph: graph, embedder: embedder, entities: entities, log: log}
}

// Retrieve implements spec.md §4.3's algorithm: parallel vector + graph
// lookup, hybrid merge/rerank, optional bounded graph expansion.
func (r *Retriever) Retrieve(ctx context.Context, principal *identity.Principal, query string, k int, opts RetrieveOptions) (RetrieveResult, error) {
	return r.retrieve(ctx, principal, query, k, opts, nil)
}

// RetrieveFor is the document-scoped variant: identical to Retrieve but
// additionally restricted to documentIDs. A caller naming a document_id
// outside its visible tenant keys gets zero results, never an error.
func (r *Retriever) RetrieveFor(ctx context.Context, principal *identity.Principal, query string, documentIDs []string, k int) (RetrieveResult, error) {
	return r.retrieve(ctx, principal, query, k, RetrieveOptions{}, documentIDs)
}

func (r *Retriever) retrieve(ctx context.Context, principal *identity.Principal, query string, k int, opts RetrieveOptions, documentIDs []string) (RetrieveResult, error) {
	queryVector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return RetrieveResult{}, fmt.Errorf("embed query: %w", err)
	}
	visible := principal.VisibleTenantKeys()

	var vectorMatches []vectorstore.Match
	var graphChunks []graphstore.Chunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		matches, err := r.vector.Search(gctx, vectorstore.CollectionDocuments, queryVector, k, vectorstore.Filter{TenantKeys: visible})
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		vectorMatches = matches
		return nil
	})
	g.Go(func() error {
		graphChunks = r.graphLookup(ctx, query, visible, k)
		return nil
	})
	if err := g.Wait(); err != nil {
		return RetrieveResult{}, err
	}

	if len(documentIDs) > 0 {
		allowed := make(map[string]bool, len(documentIDs))
		for _, id := range documentIDs {
			allowed[id] = true
		}
		vectorMatches = filterMatchesByDocument(vectorMatches, allowed)
		graphChunks = filterChunksByDocument(graphChunks, allowed)
	}

	merged := merge(vectorMatches, graphChunks)
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].DocumentID != merged[j].DocumentID {
			return merged[i].DocumentID < merged[j].DocumentID
		}
		return merged[i].Position < merged[j].Position
	})
	if len(merged) > k {
		merged = merged[:k]
	}

	if err := r.fillFilenames(ctx, merged, visible); err != nil {
		return RetrieveResult{}, err
	}

	result := RetrieveResult{Chunks: merged}
	if opts.IncludeGraph && len(merged) > 0 {
		ids := make([]string, len(merged))
		for i, c := range merged {
			ids[i] = c.ID
		}
		expanded, err := r.graph.ExpandEntities(ctx, visible, ids, maxHops, maxEdgesPerHop)
		if err != nil {
			if r.log != nil {
				r.log.Warnf("retriever: graph expansion failed, omitting context: %v", err)
			}
		} else {
			for chunkID, edges := range expanded {
				for _, e := range edges {
					result.Graph = append(result.Graph, GraphContext{
						ChunkID:    chunkID,
						EntityName: e.EntityName,
						EntityType: e.EntityType,
						Relation:   e.Relation,
						Hop:        e.Hop,
					})
				}
			}
		}
	}
	return result, nil
}

// graphLookup is the best-effort branch: entity extraction and the graph
// query are both allowed to fail or time out, in which case it returns an
// empty slice and the caller silently falls back to vector-only results.
func (r *Retriever) graphLookup(ctx context.Context, query string, visible []string, k int) []graphstore.Chunk {
	if r.entities == nil {
		return nil
	}
	ectx, cancel := context.WithTimeout(ctx, entityBudget)
	defer cancel()

	names, err := r.entities.ExtractEntities(ectx, query)
	if err != nil || len(names) == 0 {
		if err != nil && r.log != nil {
			r.log.Warnf("retriever: entity extraction failed, falling back to vector-only: %v", err)
		}
		return nil
	}

	chunks, err := r.graph.ChunksForEntityNames(ctx, visible, names, k)
	if err != nil {
		if r.log != nil {
			r.log.Warnf("retriever: graph entity lookup failed, falling back to vector-only: %v", err)
		}
		return nil
	}
	return chunks
}

func merge(vectorMatches []vectorstore.Match, graphChunks []graphstore.Chunk) []RetrievedChunk {
	byID := make(map[string]*RetrievedChunk, len(vectorMatches)+len(graphChunks))
	var order []string

	for _, m := range vectorMatches {
		c := RetrievedChunk{
			ID:         m.ID,
			DocumentID: m.Payload["document_id"],
			Text:       m.Payload["text"],
			Position:   atoiSafe(m.Payload["position"]),
			Score:      float64(m.Score),
			Method:     MethodVector,
		}
		byID[m.ID] = &c
		order = append(order, m.ID)
	}

	for _, ch := range graphChunks {
		if existing, ok := byID[ch.ID]; ok {
			existing.Score *= hybridBoost
			existing.Method = MethodHybrid
			continue
		}
		c := RetrievedChunk{
			ID:         ch.ID,
			DocumentID: ch.DocumentID,
			Text:       ch.Text,
			Position:   ch.Position,
			Score:      graphOnlyScore,
			Method:     MethodGraph,
		}
		byID[ch.ID] = &c
		order = append(order, ch.ID)
	}

	out := make([]RetrievedChunk, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

// fillFilenames resolves each chunk's document_id to its filename, caching
// by document so a result page with repeated documents issues one lookup
// per distinct document rather than one per chunk.
func (r *Retriever) fillFilenames(ctx context.Context, chunks []RetrievedChunk, visible []string) error {
	cache := make(map[string]string)
	for i := range chunks {
		docID := chunks[i].DocumentID
		if name, ok := cache[docID]; ok {
			chunks[i].Filename = name
			continue
		}
		doc, err := r.graph.GetDocument(ctx, docID, visible)
		if err != nil {
			return fmt.Errorf("resolve filename for document %s: %w", docID, err)
		}
		name := ""
		if doc != nil {
			name = doc.Filename
		}
		cache[docID] = name
		chunks[i].Filename = name
	}
	return nil
}

func filterMatchesByDocument(matches []vectorstore.Match, allowed map[string]bool) []vectorstore.Match {
	out := matches[:0]
	for _, m := range matches {
		if allowed[m.Payload["document_id"]] {
			out = append(out, m)
		}
	}
	return out
}

func filterChunksByDocument(chunks []graphstore.Chunk, allowed map[string]bool) []graphstore.Chunk {
	out := chunks[:0]
	for _, c := range chunks {
		if allowed[c.DocumentID] {
			out = append(out, c)
		}
	}
	return out
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
