// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package comparison

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/llmprovider"
)

// runRetrieve is node 1: for each document, retrieve its top chunksPerDoc
// chunks for the comparison query, scoped to that document only.
func (w *Workflow) runRetrieve(ctx context.Context, principal *identity.Principal, state *State) error {
	state.RetrievedChunks = make(map[string][]RetrievedChunk, len(state.DocumentIDs))
	for _, docID := range state.DocumentIDs {
		result, err := w.retriever.RetrieveFor(ctx, principal, state.Query, []string{docID}, chunksPerDoc)
		if err != nil {
			return apperror.Wrap(apperror.DependencyFailed, fmt.Sprintf("retrieval failed for document %s", docID), err)
		}
		chunks := make([]RetrievedChunk, 0, len(result.Chunks))
		for _, c := range result.Chunks {
			chunks = append(chunks, RetrievedChunk{ID: c.ID, Position: c.Position, Text: c.Text, Score: c.Score})
		}
		state.RetrievedChunks[docID] = chunks
	}
	return nil
}

// runExpandGraph is node 2: a bounded multi-hop entity lookup per document,
// seeded from that document's retrieved chunk ids. The per-chunk edge cap
// is kept well under maxEdgesTotal/len(chunks) so the post-hoc truncation
// below rarely has to discard anything; it exists as a second, explicit
// bound rather than trusting the per-chunk cap alone.
func (w *Workflow) runExpandGraph(ctx context.Context, visibleTenantKeys []string, state *State) error {
	state.GraphContext = make(map[string][]GraphEdge, len(state.DocumentIDs))
	for _, docID := range state.DocumentIDs {
		chunks := state.RetrievedChunks[docID]
		if len(chunks) == 0 {
			continue
		}
		chunkIDs := make([]string, len(chunks))
		for i, c := range chunks {
			chunkIDs[i] = c.ID
		}
		expanded, err := w.graph.ExpandEntities(ctx, visibleTenantKeys, chunkIDs, maxHops, 5)
		if err != nil {
			if w.log != nil {
				w.log.Warnf("comparison: graph expansion failed for document %s, continuing without it: %v", docID, err)
			}
			continue
		}
		var edges []GraphEdge
		for _, perChunk := range expanded {
			for _, e := range perChunk {
				edges = append(edges, GraphEdge{EntityName: e.EntityName, EntityType: e.EntityType, Relation: e.Relation, Hop: e.Hop})
				if len(edges) >= maxEdgesTotal {
					break
				}
			}
			if len(edges) >= maxEdgesTotal {
				break
			}
		}
		state.GraphContext[docID] = edges
	}
	return nil
}

const comparePromptTemplate = `Compare the following documents and identify similarities, differences, and insights. Respond with ONLY a JSON object of the exact shape {"similarities": [string], "differences": [string], "insights": [string]}, no other text.

Question guiding the comparison: %s

%s`

type compareOutput struct {
	Similarities []string `json:"similarities"`
	Differences  []string `json:"differences"`
	Insights     []string `json:"insights"`
}

// runCompare is node 3: a single LLM call over every document's top chunks
// and graph edges, expecting a strict JSON object back. A parse failure
// falls back to scanning the raw response for heading-like lines; total
// failure leaves all three arrays empty rather than aborting the workflow,
// per spec.md §4.6.
func (w *Workflow) runCompare(ctx context.Context, state *State) error {
	prompt := fmt.Sprintf(comparePromptTemplate, state.Query, buildCompareContext(state))
	result, err := w.llm.Complete(ctx, []llmprovider.Message{{Role: "user", Content: prompt}})
	if err != nil {
		if w.log != nil {
			w.log.Warnf("comparison: compare LLM call failed, proceeding with empty analysis: %v", err)
		}
		return nil
	}

	out, ok := parseCompareJSON(result.Content)
	if !ok {
		out = parseCompareHeadings(result.Content)
	}
	state.Similarities = out.Similarities
	state.Differences = out.Differences
	state.Insights = out.Insights
	return nil
}

func buildCompareContext(state *State) string {
	var b strings.Builder
	for _, docID := range state.DocumentIDs {
		fmt.Fprintf(&b, "Document %s:\n", docID)
		for _, c := range state.RetrievedChunks[docID] {
			fmt.Fprintf(&b, "- %s\n", truncateRunes(c.Text, excerptLen))
		}
		if edges := state.GraphContext[docID]; len(edges) > 0 {
			var names []string
			for _, e := range edges {
				names = append(names, e.EntityName)
			}
			fmt.Fprintf(&b, "Related entities: %s\n", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func parseCompareJSON(raw string) (compareOutput, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var out compareOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return compareOutput{}, false
	}
	return out, true
}

// parseCompareHeadings is the fallback for a non-JSON response: it looks
// for "Similarities"/"Differences"/"Insights" headings (case-insensitive)
// and collects the bullet lines under each until the next heading.
func parseCompareHeadings(raw string) compareOutput {
	var out compareOutput
	var current *[]string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "similarit"):
			current = &out.Similarities
			continue
		case strings.HasPrefix(lower, "differen"):
			current = &out.Differences
			continue
		case strings.HasPrefix(lower, "insight"):
			current = &out.Insights
			continue
		}
		item := strings.TrimLeft(trimmed, "-*• ")
		if current != nil && item != "" {
			*current = append(*current, item)
		}
	}
	return out
}

// runGenerate is node 4: a markdown response citing the analysis, with
// citations drawn only from retrieved_chunks, one per document.
func (w *Workflow) runGenerate(ctx context.Context, state *State) error {
	var b strings.Builder
	b.WriteString("## Comparison\n\n")
	writeBulletSection(&b, "Similarities", state.Similarities)
	writeBulletSection(&b, "Differences", state.Differences)
	writeBulletSection(&b, "Insights", state.Insights)

	var citations []Citation
	for _, docID := range state.DocumentIDs {
		chunks := state.RetrievedChunks[docID]
		if len(chunks) == 0 {
			continue
		}
		top := chunks[0]
		citations = append(citations, Citation{DocumentID: docID, ChunkID: top.ID, Excerpt: truncateRunes(top.Text, excerptLen)})
	}
	state.Response = b.String()
	state.Citations = citations
	return nil
}

func writeBulletSection(b *strings.Builder, heading string, items []string) {
	fmt.Fprintf(b, "### %s\n", heading)
	if len(items) == 0 {
		b.WriteString("_none found_\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func truncateRunes(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
