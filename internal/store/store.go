// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package store

import (
	"context"
	"slices"
)

// Payload is the document stored next to every vector. Its JSON shape is the
// point payload schema shared by all backends.
type Payload struct {
	Name string   `json:"name"`
	Text string   `json:"text"`
	Tags []string `json:"tags"`
}

// Point is a single stored vector with its numeric id and payload.
// Vector is left nil by read paths that do not need it.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload Payload
}

// ScoredPoint is a search hit. Score is a similarity (higher = closer).
type ScoredPoint struct {
	Point
	Score float32
}

// Filter restricts scroll and search to points carrying every listed tag.
// The zero value matches everything.
type Filter struct {
	Tags []string
}

// IsEmpty reports whether the filter places no constraint.
func (f Filter) IsEmpty() bool {
	return len(f.Tags) == 0
}

// Matches reports whether tags contains every tag of the filter.
func (f Filter) Matches(tags []string) bool {
	for _, want := range f.Tags {
		if !slices.Contains(tags, want) {
			return false
		}
	}
	return true
}

// VectorStore is the vector database holding entries. It is the only source
// of truth for entry state.
type VectorStore interface {
	// Upsert inserts the point or replaces the point with the same id.
	Upsert(ctx context.Context, point Point) error

	// Get returns the point with the given id, or an error for which
	// errors.Is(err, ErrNotFound) holds.
	Get(ctx context.Context, id uint64) (*Point, error)

	// Delete removes points by id. Absent ids are not an error.
	Delete(ctx context.Context, ids []uint64) error

	// Scroll returns up to limit points matching filter in store-native order.
	Scroll(ctx context.Context, filter Filter, limit int) ([]Point, error)

	// Search returns up to limit points matching filter ordered by
	// descending similarity to vector.
	Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error)

	// IDs returns every stored id. Implementations page through the whole
	// collection; the result is not bounded by any listing limit.
	IDs(ctx context.Context) ([]uint64, error)

	Close() error
}
