// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package migrator implements spec.md §4.7: folding an anonymous
// session's documents, vectors, and memories onto a newly authenticated
// user id. Grounded on the teacher's internal/database/api_keys.go
// migration-step idiom of logging a warning and continuing rather than
// aborting the whole operation on a partial failure, so the most valuable
// section (the graph, which the query path depends on first) always
// completes even if a later section fails.
package migrator

import (
	"context"
	"fmt"

	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/logger"
	"github.com/northbound/ragvault/internal/memorystore"
	"github.com/northbound/ragvault/internal/vectorstore"
)

// Stats reports how many rows/points moved from the anonymous id to the
// authenticated id, surfaced to the client per spec.md §4.7.
type Stats struct {
	Documents int
	Chunks    int
	Vectors   int
	Memories  int
}

// Migrator re-keys an anonymous tenant's data onto an authenticated user
// id at registration time.
type Migrator struct {
	graph      graphstore.Store
	vector     vectorstore.Store
	memory     *memorystore.Store
	scrollPage int
	log        *logger.Logger
}

func New(graph graphstore.Store, vector vectorstore.Store, memory *memorystore.Store, log *logger.Logger) *Migrator {
	return &Migrator{graph: graph, vector: vector, memory: memory, scrollPage: 200, log: log}
}

// Migrate folds anonID's data onto userID, section by section, logging
// but never aborting on a section's failure so the sections that do
// succeed are not rolled back by one that doesn't.
func (m *Migrator) Migrate(ctx context.Context, anonID, userID string) Stats {
	var stats Stats

	if docs, chunks, err := m.graph.RekeyTenant(ctx, anonID, userID); err != nil {
		m.warn("graph rekey failed for %s -> %s (non-fatal): %v", anonID, userID, err)
	} else {
		stats.Documents, stats.Chunks = docs, chunks
	}

	if n, err := m.rekeyVectors(ctx, anonID, userID); err != nil {
		m.warn("vector rekey failed for %s -> %s (non-fatal): %v", anonID, userID, err)
	} else {
		stats.Vectors = n
	}

	if n, err := m.rekeyMemories(ctx, anonID, userID); err != nil {
		m.warn("memory rekey failed for %s -> %s (non-fatal): %v", anonID, userID, err)
	} else {
		stats.Memories = n
	}

	return stats
}

// rekeyVectors scrolls the documents collection under anonID's tenant key
// and overwrites each point's payload in place, since vectorstore has no
// bulk UPDATE-by-filter primitive.
func (m *Migrator) rekeyVectors(ctx context.Context, anonID, userID string) (int, error) {
	count := 0
	offset := ""
	for {
		matches, next, err := m.vector.Scroll(ctx, vectorstore.CollectionDocuments, vectorstore.Filter{TenantKeys: []string{anonID}}, m.scrollPage, offset)
		if err != nil {
			return count, fmt.Errorf("migrator: scroll documents: %w", err)
		}
		for _, match := range matches {
			payload := match.Payload
			if payload == nil {
				payload = map[string]string{}
			}
			payload["tenant_key"] = userID
			if err := m.vector.SetPayload(ctx, vectorstore.CollectionDocuments, match.ID, payload); err != nil {
				return count, fmt.Errorf("migrator: set payload for point %s: %w", match.ID, err)
			}
			count++
		}
		if next == "" {
			break
		}
		offset = next
	}
	return count, nil
}

// rekeyMemories re-adds every anonID memory entry under userID and deletes
// the original, since memorystore offers no in-place tenant_key update
// (the same limitation that forces vectorstore's per-point SetPayload
// approach above, one level higher up the stack).
func (m *Migrator) rekeyMemories(ctx context.Context, anonID, userID string) (int, error) {
	entries, err := m.memory.List(ctx, anonID, 0)
	if err != nil {
		return 0, fmt.Errorf("migrator: list memories for %s: %w", anonID, err)
	}
	count := 0
	for _, e := range entries {
		if _, err := m.memory.Add(ctx, userID, e.Text, e.Metadata); err != nil {
			m.warn("re-add memory %s under %s failed (non-fatal, original left in place): %v", e.ID, userID, err)
			continue
		}
		if err := m.memory.Delete(ctx, anonID, e.ID); err != nil {
			m.warn("delete original memory %s under %s failed (non-fatal): %v", e.ID, anonID, err)
			continue
		}
		count++
	}
	return count, nil
}

func (m *Migrator) warn(format string, args ...any) {
	if m.log != nil {
		m.log.Warnf("migrator: "+format, args...)
	}
}
