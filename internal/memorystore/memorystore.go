// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package memorystore implements the MemoryStore of spec.md §4.5: per-user
// and shared fact/conversation memory, wrapping internal/vectorstore's
// `memory` collection for similarity search and internal/graphstore's
// memory sub-partition for entity edges. Grounded on the teacher's
// internal/rules/store.go (sqlite-backed store with an in-memory
// refresh-after-mutation cache), generalized from a single global rule set
// to per-tenant memory entries.
package memorystore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/embeddings"
	"github.com/northbound/ragvault/internal/graphstore"
	"github.com/northbound/ragvault/internal/identity"
	"github.com/northbound/ragvault/internal/llmprovider"
	"github.com/northbound/ragvault/internal/logger"
	"github.com/northbound/ragvault/internal/vectorstore"
)

// Type is the memory entry's kind, per spec.md §3's Memory entry shape.
type Type string

const (
	TypeFact         Type = "fact"
	TypeConversation Type = "conversation"
	TypePreference   Type = "preference"
	TypeShared       Type = "shared"
)

// Metadata carries the Memory entry's optional fields.
type Metadata struct {
	Type      Type
	SessionID string
	Role      string
	Timestamp time.Time
}

// Entry is one Memory entry, per spec.md §3.
type Entry struct {
	ID        string
	TenantKey string
	Text      string
	Metadata  Metadata
}

// EntityExtractor pulls named entities out of memory text so it can be
// linked into the graph's memory sub-partition. Declared locally, same as
// internal/ingestor.Extractor, so callers can satisfy it with
// *retriever.LLMEntityExtractor without an import cycle.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]string, error)
}

// Config tunes auto-summarization.
type Config struct {
	MaxTokens      int     // soft cap on a tenant's total memory tokens, default ~4000
	SummarizeAtPct float64 // fraction of MaxTokens that triggers folding, default 0.75
	KeepRecent     int     // entries exempt from folding, default 5
}

func (c *Config) setDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4000
	}
	if c.SummarizeAtPct <= 0 {
		c.SummarizeAtPct = 0.75
	}
	if c.KeepRecent <= 0 {
		c.KeepRecent = 5
	}
}

// Store is the MemoryStore.
type Store struct {
	graph    graphstore.Store
	vector   vectorstore.Store
	embedder embeddings.Embedder
	llm      llmprovider.LLM
	entities EntityExtractor
	cfg      Config
	log      *logger.Logger
}

// New constructs a Store. llm and entities may be nil, in which case
// auto-summarization and entity linking are both skipped.
func New(graph graphstore.Store, vector vectorstore.Store, embedder embeddings.Embedder, llm llmprovider.LLM, entities EntityExtractor, log *logger.Logger, cfg Config) *Store {
	cfg.setDefaults()
	return &Store{graph: graph, vector: vector, embedder: embedder, llm: llm, entities: entities, cfg: cfg, log: log}
}

// Add creates a memory entry: embeds the text into the memory collection,
// links any extracted entities in the graph, then runs auto-summarization
// synchronously, per spec.md §4.5.
func (s *Store) Add(ctx context.Context, tenantKey, text string, meta Metadata) (string, error) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	id, err := s.addRaw(ctx, tenantKey, text, meta)
	if err != nil {
		return "", err
	}
	if err := s.maybeSummarize(ctx, tenantKey); err != nil && s.log != nil {
		s.log.Warnf("memorystore: auto-summarization failed for tenant %s: %v", tenantKey, err)
	}
	return id, nil
}

// AddShared writes a company-wide memory entry under the shared sentinel.
// Callers MUST enforce the admin-only restriction before calling this; the
// store itself has no notion of roles.
func (s *Store) AddShared(ctx context.Context, text string, meta Metadata) (string, error) {
	meta.Type = TypeShared
	return s.Add(ctx, identity.SharedSentinel, text, meta)
}

// addRaw writes the entry without triggering summarization, used both by
// Add and by the summarizer itself when persisting the folded entry.
func (s *Store) addRaw(ctx context.Context, tenantKey, text string, meta Metadata) (string, error) {
	id := uuid.NewString()
	vec, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return "", apperror.Wrap(apperror.DependencyFailed, "failed to embed memory entry", err)
	}
	payload := map[string]string{
		"tenant_key": tenantKey,
		"text":       text,
		"type":       string(meta.Type),
		"session_id": meta.SessionID,
		"role":       meta.Role,
		"timestamp":  meta.Timestamp.Format(time.RFC3339),
		// created_at mirrors timestamp explicitly, rather than leaving
		// the vector store to auto-stamp it at upsert time, so the
		// Reaper's CreatedBefore scroll filter keys on the entry's
		// logical time (spec.md §4.8's "every record ingested MUST
		// carry a creation timestamp" invariant) rather than when it
		// happened to be re-indexed by auto-summarization.
		"created_at": meta.Timestamp.Format(time.RFC3339),
	}
	if err := s.vector.Upsert(ctx, vectorstore.CollectionMemory, id, vec, payload); err != nil {
		return "", apperror.Wrap(apperror.DependencyFailed, "failed to index memory entry", err)
	}

	if s.entities != nil {
		names, err := s.entities.ExtractEntities(ctx, text)
		if err != nil {
			if s.log != nil {
				s.log.Warnf("memorystore: entity extraction failed for memory %s: %v", id, err)
			}
		}
		for _, name := range names {
			entityID, err := s.graph.UpsertEntity(ctx, name, "memory_entity", tenantKey)
			if err != nil {
				if s.log != nil {
					s.log.Warnf("memorystore: upsert entity %q failed: %v", name, err)
				}
				continue
			}
			if err := s.graph.LinkMemoryEntity(ctx, id, tenantKey, entityID); err != nil && s.log != nil {
				s.log.Warnf("memorystore: link entity %q to memory %s failed: %v", name, id, err)
			}
		}
	}
	return id, nil
}

// Search runs a similarity search restricted to tenantKey.
func (s *Store) Search(ctx context.Context, tenantKey, query string, k int) ([]Entry, error) {
	return s.search(ctx, query, k, []string{tenantKey})
}

// SearchWithShared unions results with the shared sentinel for
// authenticated principals; anonymous principals only ever see their own.
func (s *Store) SearchWithShared(ctx context.Context, principal *identity.Principal, query string, k int) ([]Entry, error) {
	return s.search(ctx, query, k, principal.VisibleTenantKeys())
}

func (s *Store) search(ctx context.Context, query string, k int, tenantKeys []string) ([]Entry, error) {
	vec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, apperror.Wrap(apperror.DependencyFailed, "failed to embed memory query", err)
	}
	matches, err := s.vector.Search(ctx, vectorstore.CollectionMemory, vec, k, vectorstore.Filter{TenantKeys: tenantKeys})
	if err != nil {
		return nil, apperror.Wrap(apperror.DependencyFailed, "memory search failed", err)
	}
	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		entries = append(entries, matchToEntry(m))
	}
	return entries, nil
}

// List returns up to limit entries for tenantKey, most recent first.
func (s *Store) List(ctx context.Context, tenantKey string, limit int) ([]Entry, error) {
	entries, err := s.listAll(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Metadata.Timestamp.After(entries[j].Metadata.Timestamp) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// listAll pages through every entry for tenantKey via Scroll; memory sets
// stay small by construction (auto-summarization caps cumulative tokens),
// so this never iterates more than a handful of pages.
func (s *Store) listAll(ctx context.Context, tenantKey string) ([]Entry, error) {
	var entries []Entry
	offset := ""
	for {
		matches, next, err := s.vector.Scroll(ctx, vectorstore.CollectionMemory, vectorstore.Filter{TenantKeys: []string{tenantKey}}, 200, offset)
		if err != nil {
			return nil, apperror.Wrap(apperror.DependencyFailed, "failed to list memory entries", err)
		}
		for _, m := range matches {
			entries = append(entries, matchToEntry(m))
		}
		if next == "" {
			break
		}
		offset = next
	}
	return entries, nil
}

// Delete removes both the vector point and its graph edges, the explicit
// cleanup spec.md §4.5 calls for because the underlying memory framework
// does not cascade. A request for an id outside tenantKey is a no-op.
func (s *Store) Delete(ctx context.Context, tenantKey, id string) error {
	entries, err := s.listAll(ctx, tenantKey)
	if err != nil {
		return err
	}
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			break
		}
	}
	if !found {
		return apperror.NotFoundf("memory entry %s not found", id)
	}
	if err := s.vector.Delete(ctx, vectorstore.CollectionMemory, id); err != nil {
		return apperror.Wrap(apperror.DependencyFailed, "failed to delete memory entry", err)
	}
	if err := s.graph.DeleteMemoryEdges(ctx, id); err != nil {
		return apperror.Wrap(apperror.DependencyFailed, "failed to delete memory entry's graph edges", err)
	}
	return nil
}

func matchToEntry(m vectorstore.Match) Entry {
	ts, _ := time.Parse(time.RFC3339, m.Payload["timestamp"])
	return Entry{
		ID:        m.ID,
		TenantKey: m.Payload["tenant_key"],
		Text:      m.Payload["text"],
		Metadata: Metadata{
			Type:      Type(m.Payload["type"]),
			SessionID: m.Payload["session_id"],
			Role:      m.Payload["role"],
			Timestamp: ts,
		},
	}
}
