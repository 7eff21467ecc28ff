// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package server

import (
	"context"

	"github.com/lorebook-dev/lorebook/internal/entry"
	"github.com/lorebook-dev/lorebook/internal/search"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/lorebook-dev/lorebook/pkg/health"
)

// EntryService provides entry operations for REST handlers.
type EntryService interface {
	Create(ctx context.Context, p entry.Payload) (*entry.Entry, error)
	Update(ctx context.Context, id uint64, p entry.Payload) (*entry.Entry, entry.Outcome, error)
	Get(ctx context.Context, id uint64) (*entry.Entry, error)
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context) ([]entry.Entry, error)
	Tags(ctx context.Context) ([]string, error)
}

// SearchService runs composed searches.
type SearchService interface {
	Search(ctx context.Context, q search.Query) ([]entry.Entry, error)
}

// HealthService reports dependency health for /health.
type HealthService interface {
	Components(ctx context.Context) []health.Component
}

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
type Services struct {
	entries EntryService
	search  SearchService
	health  HealthService // optional; nil reports no components
}

// NewServices returns an error if a required service is nil.
func NewServices(entries EntryService, searcher SearchService, hs ...HealthService) (*Services, error) {
	if entries == nil {
		return nil, lberr.New(lberr.CodeServerConfigInvalid, "entry service is required")
	}
	if searcher == nil {
		return nil, lberr.New(lberr.CodeServerConfigInvalid, "search service is required")
	}
	if len(hs) > 1 {
		return nil, lberr.New(lberr.CodeServerConfigInvalid, "at most one health service may be supplied")
	}

	s := &Services{entries: entries, search: searcher}
	if len(hs) == 1 {
		s.health = hs[0]
	}
	return s, nil
}

// NewServicesForTest is NewServices that panics on invalid input.
func NewServicesForTest(entries EntryService, searcher SearchService, hs ...HealthService) *Services {
	svc, err := NewServices(entries, searcher, hs...)
	if err != nil {
		panic(err)
	}
	return svc
}

func (s *Services) Entries() EntryService { return s.entries }
func (s *Services) Search() SearchService { return s.search }
func (s *Services) Health() HealthService { return s.health }
