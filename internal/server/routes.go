// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lorebook-dev/lorebook/internal/entry"
	"github.com/lorebook-dev/lorebook/internal/search"
	"github.com/lorebook-dev/lorebook/pkg/health"
)

// OutcomeHeader reports whether a write created or updated the entry.
const OutcomeHeader = "Entry-Outcome"

const (
	corsTestMessage = "CORS is working!"
	deletedMessage  = "Entry deleted"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "list-entries",
		Method:        http.MethodGet,
		Path:          "/entries",
		Summary:       "List entries",
		Tags:          []string{"entries"},
		DefaultStatus: http.StatusOK,
	}, s.handleListEntries)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-entry",
		Method:        http.MethodPost,
		Path:          "/entry",
		Summary:       "Create an entry",
		Tags:          []string{"entries"},
		DefaultStatus: http.StatusOK,
	}, s.handleCreateEntry)

	huma.Register(s.api, huma.Operation{
		OperationID:   "get-entry",
		Method:        http.MethodGet,
		Path:          "/entry/{id}",
		Summary:       "Get an entry",
		Tags:          []string{"entries"},
		DefaultStatus: http.StatusOK,
	}, s.handleGetEntry)

	huma.Register(s.api, huma.Operation{
		OperationID:   "update-entry",
		Method:        http.MethodPut,
		Path:          "/entry/{id}",
		Summary:       "Replace an entry, creating it when absent",
		Tags:          []string{"entries"},
		DefaultStatus: http.StatusOK,
	}, s.handleUpdateEntry)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-entry",
		Method:        http.MethodDelete,
		Path:          "/entry/{id}",
		Summary:       "Delete an entry",
		Tags:          []string{"entries"},
		DefaultStatus: http.StatusOK,
	}, s.handleDeleteEntry)

	huma.Register(s.api, huma.Operation{
		OperationID:   "search-entries",
		Method:        http.MethodGet,
		Path:          "/search",
		Summary:       "Search entries by text and tags",
		Tags:          []string{"search"},
		DefaultStatus: http.StatusOK,
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID:   "list-tags",
		Method:        http.MethodGet,
		Path:          "/tags",
		Summary:       "List all tags",
		Tags:          []string{"search"},
		DefaultStatus: http.StatusOK,
	}, s.handleTags)

	huma.Register(s.api, huma.Operation{
		OperationID:   "cors-test",
		Method:        http.MethodGet,
		Path:          "/test",
		Summary:       "CORS check",
		Tags:          []string{"system"},
		DefaultStatus: http.StatusOK,
	}, s.handleTest)

	huma.Register(s.api, huma.Operation{
		OperationID:   "health",
		Method:        http.MethodGet,
		Path:          "/health",
		Summary:       "Health check",
		Tags:          []string{"system"},
		DefaultStatus: http.StatusOK,
	}, s.handleHealth)
}

// --- Request/Response types for huma ---

// entryBody is validated by entry.Validate rather than by schema so every
// incomplete payload gets the same message.
type entryBody struct {
	_    struct{} `json:"-" additionalProperties:"true"`
	Name string   `json:"name,omitempty" doc:"Entry name"`
	Text string   `json:"text,omitempty" doc:"Entry text"`
	Tags []string `json:"tags,omitempty" doc:"At least one tag"`
}

// payload treats a missing body as an empty one so it fails validation with
// the usual message.
func (b *entryBody) payload() entry.Payload {
	if b == nil {
		return entry.Payload{}
	}
	return entry.Payload{Name: b.Name, Text: b.Text, Tags: b.Tags}
}

type entryIDInput struct {
	ID string `path:"id" doc:"Entry id"`
}

type createEntryInput struct {
	Body *entryBody
}

type updateEntryInput struct {
	ID   string     `path:"id" doc:"Entry id"`
	Body *entryBody
}

type entryOutput struct {
	Body entry.Entry
}

type entryWriteOutput struct {
	Outcome string `header:"Entry-Outcome" doc:"created or updated"`
	Body    entry.Entry
}

type entriesOutput struct {
	Body []entry.Entry
}

type searchInput struct {
	Q    string `query:"q" doc:"Free-text query"`
	Tags string `query:"tags" doc:"Comma-separated tags; entries must carry all of them"`
}

type tagsOutput struct {
	Body struct {
		Tags []string `json:"tags" doc:"Sorted union of all tags"`
	}
}

type messageOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

type healthOutput struct {
	Body health.Report
}

// --- Handlers ---

func (s *Server) handleListEntries(ctx context.Context, _ *struct{}) (*entriesOutput, error) {
	entries, err := s.services.Entries().List(ctx)
	if err != nil {
		return nil, apiError("listing entries", err)
	}
	return &entriesOutput{Body: entries}, nil
}

func (s *Server) handleCreateEntry(ctx context.Context, input *createEntryInput) (*entryWriteOutput, error) {
	e, err := s.services.Entries().Create(ctx, input.Body.payload())
	if err != nil {
		return nil, apiError("creating entry", err)
	}
	return &entryWriteOutput{Outcome: string(entry.OutcomeCreated), Body: *e}, nil
}

func (s *Server) handleGetEntry(ctx context.Context, input *entryIDInput) (*entryOutput, error) {
	id, err := entry.ParseID(input.ID)
	if err != nil {
		return nil, apiError("getting entry", err)
	}
	e, err := s.services.Entries().Get(ctx, id)
	if err != nil {
		return nil, apiError("getting entry", err)
	}
	return &entryOutput{Body: *e}, nil
}

func (s *Server) handleUpdateEntry(ctx context.Context, input *updateEntryInput) (*entryWriteOutput, error) {
	id, err := entry.ParseID(input.ID)
	if err != nil {
		return nil, apiError("updating entry", err)
	}
	e, outcome, err := s.services.Entries().Update(ctx, id, input.Body.payload())
	if err != nil {
		return nil, apiError("updating entry", err)
	}
	return &entryWriteOutput{Outcome: string(outcome), Body: *e}, nil
}

func (s *Server) handleDeleteEntry(ctx context.Context, input *entryIDInput) (*messageOutput, error) {
	id, err := entry.ParseID(input.ID)
	if err != nil {
		return nil, apiError("deleting entry", err)
	}
	if err := s.services.Entries().Delete(ctx, id); err != nil {
		return nil, apiError("deleting entry", err)
	}
	out := &messageOutput{}
	out.Body.Message = deletedMessage
	return out, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*entriesOutput, error) {
	results, err := s.services.Search().Search(ctx, search.ParseQuery(input.Q, input.Tags))
	if err != nil {
		return nil, apiError("searching", err)
	}
	return &entriesOutput{Body: results}, nil
}

func (s *Server) handleTags(ctx context.Context, _ *struct{}) (*tagsOutput, error) {
	tags, err := s.services.Entries().Tags(ctx)
	if err != nil {
		return nil, apiError("listing tags", err)
	}
	out := &tagsOutput{}
	out.Body.Tags = tags
	return out, nil
}

func (s *Server) handleTest(_ context.Context, _ *struct{}) (*messageOutput, error) {
	out := &messageOutput{}
	out.Body.Message = corsTestMessage
	return out, nil
}

func (s *Server) handleHealth(ctx context.Context, _ *struct{}) (*healthOutput, error) {
	var components []health.Component
	if hs := s.services.Health(); hs != nil {
		components = hs.Components(ctx)
	}
	return &healthOutput{Body: health.NewReport(s.cfg.Version, components...)}, nil
}
