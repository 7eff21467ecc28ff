// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package storetest provides an in-memory store.VectorStore with error
// injection for tests of packages built on the store.
package storetest

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/lorebook-dev/lorebook/internal/store"
)

// Fake is a map-backed VectorStore. Search ranks by cosine similarity.
// Setting one of the Err fields makes the matching method fail.
type Fake struct {
	mu     sync.Mutex
	points map[uint64]store.Point

	UpsertErr error
	GetErr    error
	DeleteErr error
	ScrollErr error
	SearchErr error
	IDsErr    error

	// Calls counts invocations by method name.
	Calls map[string]int
	// LastScrollLimit and LastSearchLimit record the most recent limits.
	LastScrollLimit int
	LastSearchLimit int
	LastFilter      store.Filter
}

// Compile-time interface check.
var _ store.VectorStore = (*Fake)(nil)

func New() *Fake {
	return &Fake{points: make(map[uint64]store.Point), Calls: make(map[string]int)}
}

// Put stores a point directly, bypassing error injection and call counting.
func (f *Fake) Put(p store.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[p.ID] = clonePoint(p)
}

// Len returns the number of stored points.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

// Point returns a stored point and whether it exists.
func (f *Fake) Point(id uint64) (store.Point, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.points[id]
	return clonePoint(p), ok
}

func (f *Fake) Upsert(_ context.Context, p store.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["Upsert"]++
	if f.UpsertErr != nil {
		return f.UpsertErr
	}
	f.points[p.ID] = clonePoint(p)
	return nil
}

func (f *Fake) Get(_ context.Context, id uint64) (*store.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["Get"]++
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	p, ok := f.points[id]
	if !ok {
		return nil, store.NotFound(id)
	}
	p = clonePoint(p)
	return &p, nil
}

func (f *Fake) Delete(_ context.Context, ids []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["Delete"]++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	for _, id := range ids {
		delete(f.points, id)
	}
	return nil
}

func (f *Fake) Scroll(_ context.Context, filter store.Filter, limit int) ([]store.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["Scroll"]++
	f.LastScrollLimit = limit
	f.LastFilter = filter
	if f.ScrollErr != nil {
		return nil, f.ScrollErr
	}

	var out []store.Point
	for _, id := range f.sortedIDs() {
		if len(out) >= limit {
			break
		}
		if p := f.points[id]; filter.Matches(p.Payload.Tags) {
			out = append(out, clonePoint(p))
		}
	}
	return out, nil
}

func (f *Fake) Search(_ context.Context, vector []float32, filter store.Filter, limit int) ([]store.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["Search"]++
	f.LastSearchLimit = limit
	f.LastFilter = filter
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}

	var hits []store.ScoredPoint
	for _, id := range f.sortedIDs() {
		p := f.points[id]
		if !filter.Matches(p.Payload.Tags) {
			continue
		}
		hits = append(hits, store.ScoredPoint{Point: clonePoint(p), Score: cosine(vector, p.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *Fake) IDs(context.Context) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["IDs"]++
	if f.IDsErr != nil {
		return nil, f.IDsErr
	}
	return f.sortedIDs(), nil
}

func (f *Fake) Close() error { return nil }

func (f *Fake) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(f.points))
	for id := range f.points {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func clonePoint(p store.Point) store.Point {
	p.Vector = slices.Clone(p.Vector)
	p.Payload.Tags = slices.Clone(p.Payload.Tags)
	return p
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
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
