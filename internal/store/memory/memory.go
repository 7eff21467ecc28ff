// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package memory provides an in-process store.VectorStore backed by a
// chromem-go collection. Contents are lost when the process exits.
package memory

import (
	"context"
	"slices"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/lorebook-dev/lorebook/internal/store"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

const tagKeyPrefix = "tag:"

func init() {
	store.RegisterBackend("memory", func(_ context.Context, cfg store.Config) (store.VectorStore, error) {
		return New(cfg.Collection, cfg.VectorDimensions)
	})
}

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

// VectorStore keeps vectors in chromem and payloads in a map keyed by id.
// Tags are mirrored into chromem metadata as "tag:<name>" keys so that
// conjunctive tag filters become chromem where-clauses.
type VectorStore struct {
	mu         sync.RWMutex
	collection *chromem.Collection
	payloads   map[uint64]store.Payload
	dimensions int
}

// New creates an empty store for vectors of the given size.
func New(collection string, dimensions int) (*VectorStore, error) {
	if dimensions <= 0 {
		return nil, lberr.Errorf(lberr.CodeStoreInvalidInput, "memory: vector dimensions must be positive, got %d", dimensions)
	}
	if collection == "" {
		collection = store.DefaultCollection
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection(collection, nil, nil)
	if err != nil {
		return nil, lberr.Wrap(err, lberr.CodeStoreDatabaseFailure, "memory: creating collection")
	}

	return &VectorStore{
		collection: col,
		payloads:   make(map[uint64]store.Payload),
		dimensions: dimensions,
	}, nil
}

func (v *VectorStore) Upsert(ctx context.Context, point store.Point) error {
	if len(point.Vector) != v.dimensions {
		return lberr.Errorf(lberr.CodeStoreInvalidInput,
			"memory: vector has %d dimensions, store expects %d", len(point.Vector), v.dimensions)
	}

	metadata := make(map[string]string, len(point.Payload.Tags))
	for _, tag := range point.Payload.Tags {
		metadata[tagKeyPrefix+tag] = "1"
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// chromem keeps stale metadata keys on overwrite, so drop the old document first.
	key := docID(point.ID)
	if _, ok := v.payloads[point.ID]; ok {
		if err := v.collection.Delete(ctx, nil, nil, key); err != nil {
			return lberr.Wrap(err, lberr.CodeStoreDatabaseFailure, "memory: replacing point", lberr.FieldEntryID(point.ID))
		}
	}

	err := v.collection.AddDocument(ctx, chromem.Document{
		ID:        key,
		Content:   point.Payload.Text,
		Embedding: slices.Clone(point.Vector),
		Metadata:  metadata,
	})
	if err != nil {
		return lberr.Wrap(err, lberr.CodeStoreDatabaseFailure, "memory: adding point", lberr.FieldEntryID(point.ID))
	}

	v.payloads[point.ID] = clonePayload(point.Payload)
	return nil
}

func (v *VectorStore) Get(_ context.Context, id uint64) (*store.Point, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, ok := v.payloads[id]
	if !ok {
		return nil, store.NotFound(id)
	}
	return &store.Point{ID: id, Payload: clonePayload(p)}, nil
}

func (v *VectorStore) Delete(ctx context.Context, ids []uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := v.payloads[id]; ok {
			keys = append(keys, docID(id))
		}
	}
	if len(keys) == 0 {
		return nil
	}

	if err := v.collection.Delete(ctx, nil, nil, keys...); err != nil {
		return lberr.Wrap(err, lberr.CodeStoreDatabaseFailure, "memory: deleting points")
	}
	for _, id := range ids {
		delete(v.payloads, id)
	}
	return nil
}

// Scroll returns matching points in ascending id order.
func (v *VectorStore) Scroll(_ context.Context, filter store.Filter, limit int) ([]store.Point, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []store.Point
	for _, id := range v.sortedIDs() {
		if len(out) >= limit {
			break
		}
		p := v.payloads[id]
		if filter.Matches(p.Tags) {
			out = append(out, store.Point{ID: id, Payload: clonePayload(p)})
		}
	}
	return out, nil
}

func (v *VectorStore) Search(ctx context.Context, vector []float32, filter store.Filter, limit int) ([]store.ScoredPoint, error) {
	if len(vector) != v.dimensions {
		return nil, lberr.Errorf(lberr.CodeStoreInvalidInput,
			"memory: query has %d dimensions, store expects %d", len(vector), v.dimensions)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	// chromem rejects nResults above the collection size.
	n := min(limit, v.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	var where map[string]string
	if !filter.IsEmpty() {
		where = make(map[string]string, len(filter.Tags))
		for _, tag := range filter.Tags {
			where[tagKeyPrefix+tag] = "1"
		}
	}

	results, err := v.collection.QueryEmbedding(ctx, slices.Clone(vector), n, where, nil)
	if err != nil {
		return nil, lberr.Wrap(err, lberr.CodeStoreDatabaseFailure, "memory: querying")
	}

	out := make([]store.ScoredPoint, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseUint(r.ID, 10, 64)
		if err != nil {
			continue
		}
		p, ok := v.payloads[id]
		if !ok {
			continue
		}
		out = append(out, store.ScoredPoint{
			Point: store.Point{ID: id, Payload: clonePayload(p)},
			Score: r.Similarity,
		})
	}
	return out, nil
}

func (v *VectorStore) IDs(_ context.Context) ([]uint64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.sortedIDs(), nil
}

func (v *VectorStore) Close() error { return nil }

func (v *VectorStore) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(v.payloads))
	for id := range v.payloads {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func docID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func clonePayload(p store.Payload) store.Payload {
	p.Tags = slices.Clone(p.Tags)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p
}
