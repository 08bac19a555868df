// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/llmprovider"
	"github.com/northbound/ragvault/internal/memorystore"
	"github.com/northbound/ragvault/internal/retriever"
)

// buildPrompt assembles the deterministic block format of spec.md §4.4:
// context blocks in retrieval order, each preceded by "[Source: filename]"
// and optional "(matched entities: …)"/"(hop N)" lines, then memory blocks
// tagged "[User Memory]" or "[Shared Memory]", then the query.
func buildPrompt(query string, retrieved retriever.RetrieveResult, memory []memorystore.Entry) []llmprovider.Message {
	graphByChunk := groupGraphByChunk(retrieved.Graph)

	var b strings.Builder
	for _, chunk := range retrieved.Chunks {
		fmt.Fprintf(&b, "[Source: %s]\n", chunk.Filename)
		if edges := graphByChunk[chunk.ID]; len(edges) > 0 {
			writeGraphLines(&b, edges)
		}
		b.WriteString(chunk.Text)
		b.WriteString("\n\n")
	}

	for _, m := range memory {
		tag := "[User Memory]"
		if m.TenantKey == identity.SharedSentinel {
			tag = "[Shared Memory]"
		}
		fmt.Fprintf(&b, "%s\n%s\n\n", tag, m.Text)
	}

	b.WriteString(query)

	return []llmprovider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// groupGraphByChunk buckets graph edges by chunk id, each bucket sorted by
// hop distance so writeGraphLines can emit hop-1 entities before hop-2.
func groupGraphByChunk(edges []retriever.GraphContext) map[string][]retriever.GraphContext {
	byChunk := make(map[string][]retriever.GraphContext)
	for _, e := range edges {
		byChunk[e.ChunkID] = append(byChunk[e.ChunkID], e)
	}
	for _, bucket := range byChunk {
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].Hop < bucket[j].Hop })
	}
	return byChunk
}

// writeGraphLines renders "(matched entities: …)" for hop-1 edges and a
// "(hop N: …)" line per deeper hop, per spec.md §4.4's context-block grammar.
func writeGraphLines(b *strings.Builder, edges []retriever.GraphContext) {
	byHop := make(map[int][]string)
	var hops []int
	for _, e := range edges {
		if _, seen := byHop[e.Hop]; !seen {
			hops = append(hops, e.Hop)
		}
		byHop[e.Hop] = append(byHop[e.Hop], e.EntityName)
	}
	sort.Ints(hops)
	for _, hop := range hops {
		names := strings.Join(byHop[hop], ", ")
		if hop <= 1 {
			fmt.Fprintf(b, "(matched entities: %s)\n", names)
		} else {
			fmt.Fprintf(b, "(hop %d: %s)\n", hop, names)
		}
	}
}
