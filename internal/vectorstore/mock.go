// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory brute-force Store used by tests and by any
// deployment that wants to run without a Qdrant instance.
type MemStore struct {
	mu     sync.RWMutex
	dim    map[string]int
	points map[string]map[string]memPoint // collection -> id -> point
}

type memPoint struct {
	vector  []float32
	payload map[string]string
}

// NewMemStore constructs an empty in-memory Store for the given collection
// dimensions.
func NewMemStore(dim int) *MemStore {
	return &MemStore{
		dim:    map[string]int{CollectionDocuments: dim, CollectionMemory: dim},
		points: map[string]map[string]memPoint{CollectionDocuments: {}, CollectionMemory: {}},
	}
}

func (m *MemStore) Dimension(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim[collection]
}

func (m *MemStore) Upsert(_ context.Context, collection, id string, vector []float32, payload map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if want := m.dim[collection]; want != 0 && want != len(vector) {
		return ErrDimensionMismatch
	}
	if payload["created_at"] == "" {
		payload["created_at"] = nowRFC3339()
	}
	cp := make(map[string]string, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	if m.points[collection] == nil {
		m.points[collection] = map[string]memPoint{}
	}
	m.points[collection][id] = memPoint{vector: append([]float32(nil), vector...), payload: cp}
	return nil
}

func (m *MemStore) Search(_ context.Context, collection string, queryVector []float32, topK int, filter Filter) ([]Match, error) {
	if len(filter.TenantKeys) == 0 {
		return nil, errNoTenant
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed := make(map[string]bool, len(filter.TenantKeys))
	for _, tk := range filter.TenantKeys {
		allowed[tk] = true
	}

	var matches []Match
	for id, p := range m.points[collection] {
		if !allowed[p.payload["tenant_key"]] {
			continue
		}
		if filter.DocumentID != "" && p.payload["document_id"] != filter.DocumentID {
			continue
		}
		matches = append(matches, Match{
			ID:        id,
			Score:     cosine(queryVector, p.vector),
			TenantKey: p.payload["tenant_key"],
			Payload:   p.payload,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK <= 0 {
		topK = 10
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.points[collection], id)
	return nil
}

func (m *MemStore) SetPayload(_ context.Context, collection, id string, payload map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[collection][id]
	if !ok {
		return errNotFound
	}
	for k, v := range payload {
		p.payload[k] = v
	}
	m.points[collection][id] = p
	return nil
}

func (m *MemStore) Scroll(_ context.Context, collection string, filter Filter, pageSize int, offset string) ([]Match, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed := map[string]bool{}
	for _, tk := range filter.TenantKeys {
		allowed[tk] = true
	}

	var ids []string
	for id := range m.points[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Match
	started := offset == ""
	for _, id := range ids {
		if !started {
			if id == offset {
				started = true
			}
			continue
		}
		p := m.points[collection][id]
		if len(allowed) > 0 && !allowed[p.payload["tenant_key"]] {
			continue
		}
		if filter.TenantKeyPrefix != "" && !strings.HasPrefix(p.payload["tenant_key"], filter.TenantKeyPrefix) {
			continue
		}
		if !filter.CreatedBefore.IsZero() {
			if t, err := parseTime(p.payload["created_at"]); err != nil || !t.Before(filter.CreatedBefore) {
				continue
			}
		}
		out = append(out, toMemMatch(id, p))
		if pageSize > 0 && len(out) >= pageSize {
			return out, id, nil
		}
	}
	return out, "", nil
}

func toMemMatch(id string, p memPoint) Match {
	m := Match{ID: id, TenantKey: p.payload["tenant_key"], Payload: p.payload}
	if t, err := parseTime(p.payload["created_at"]); err == nil {
		m.CreatedAt = t
	}
	return m
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
