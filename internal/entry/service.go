// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package entry

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/lorebook-dev/lorebook/internal/store"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

// DefaultListLimit caps GET /entries and the scan behind GET /tags.
const DefaultListLimit = 1000

// Embedder is the part of embedding.Embedder the service needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options tunes a Service.
type Options struct {
	ListLimit    int           // 0 uses DefaultListLimit.
	StrictUpdate bool          // Update on an absent id fails with not found.
	OnWrite      func(Outcome) // called after every successful create or update.
}

// Service implements entry CRUD on top of a vector store.
//
// Creates and updates run under one mutex: id allocation reads the complete
// id listing and writes the new point before the next writer starts. This
// only protects writers inside one process.
type Service struct {
	store    store.VectorStore
	embedder Embedder
	opts     Options

	writeMu sync.Mutex
}

func NewService(vs store.VectorStore, embedder Embedder, opts Options) *Service {
	if opts.ListLimit <= 0 {
		opts.ListLimit = DefaultListLimit
	}
	return &Service{store: vs, embedder: embedder, opts: opts}
}

// Create validates p, embeds it, allocates the next id and stores the entry.
func (s *Service) Create(ctx context.Context, p Payload) (*Entry, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, BuildEmbeddingText(p.Name, p.Text, p.Tags))
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ids, err := s.store.IDs(ctx)
	if err != nil {
		return nil, err
	}
	id, err := NextID(ids)
	if err != nil {
		return nil, err
	}

	if err := s.store.Upsert(ctx, store.Point{ID: id, Vector: vec, Payload: p.toStore()}); err != nil {
		return nil, lberr.With(err, lberr.FieldEntryID(id))
	}

	slog.Info("entry created", "id", id, "name", p.Name, "tags", p.Tags)
	s.recordWrite(OutcomeCreated)
	return &Entry{ID: id, Name: p.Name, Text: p.Text, Tags: slices.Clone(p.Tags)}, nil
}

// Update replaces the entry with the given id, recomputing its vector. An
// absent id is created unless StrictUpdate is set.
func (s *Service) Update(ctx context.Context, id uint64, p Payload) (*Entry, Outcome, error) {
	if err := Validate(p); err != nil {
		return nil, "", err
	}
	if id == 0 || id > MaxID {
		return nil, "", lberr.Errorf(lberr.CodeEntryIDInvalid, "entry id must be between 1 and %d", MaxID)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	outcome := OutcomeUpdated
	if _, err := s.store.Get(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, "", err
		}
		if s.opts.StrictUpdate {
			return nil, "", lberr.New(lberr.CodeEntryNotFound, "Entry not found", lberr.FieldEntryID(id))
		}
		outcome = OutcomeCreated
	}

	vec, err := s.embedder.Embed(ctx, BuildEmbeddingText(p.Name, p.Text, p.Tags))
	if err != nil {
		return nil, "", err
	}

	if err := s.store.Upsert(ctx, store.Point{ID: id, Vector: vec, Payload: p.toStore()}); err != nil {
		return nil, "", lberr.With(err, lberr.FieldEntryID(id))
	}

	slog.Info("entry written", "id", id, "outcome", string(outcome), "name", p.Name)
	s.recordWrite(outcome)
	return &Entry{ID: id, Name: p.Name, Text: p.Text, Tags: slices.Clone(p.Tags)}, outcome, nil
}

// Get returns a single entry.
func (s *Service) Get(ctx context.Context, id uint64) (*Entry, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, lberr.New(lberr.CodeEntryNotFound, "Entry not found", lberr.FieldEntryID(id))
		}
		return nil, err
	}
	e := FromPoint(*p)
	return &e, nil
}

// Delete removes an entry. Deleting an absent id succeeds.
func (s *Service) Delete(ctx context.Context, id uint64) error {
	if err := s.store.Delete(ctx, []uint64{id}); err != nil {
		return lberr.With(err, lberr.FieldEntryID(id))
	}
	slog.Info("entry deleted", "id", id)
	return nil
}

// List returns up to ListLimit entries in store order.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	points, err := s.store.Scroll(ctx, store.Filter{}, s.opts.ListLimit)
	if err != nil {
		return nil, err
	}
	return FromPoints(points), nil
}

// Tags returns the sorted, deduplicated union of tags over the first
// ListLimit entries.
func (s *Service) Tags(ctx context.Context) ([]string, error) {
	points, err := s.store.Scroll(ctx, store.Filter{}, s.opts.ListLimit)
	if err != nil {
		return nil, err
	}
	return UnionTags(points), nil
}

// UnionTags collects every tag of points, sorted and deduplicated.
func UnionTags(points []store.Point) []string {
	tags := []string{}
	for _, p := range points {
		tags = append(tags, p.Payload.Tags...)
	}
	slices.Sort(tags)
	return slices.Compact(tags)
}

func (s *Service) recordWrite(o Outcome) {
	if s.opts.OnWrite != nil {
		s.opts.OnWrite(o)
	}
}
