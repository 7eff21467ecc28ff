// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package search combines an optional free-text query with an optional tag
// conjunction and runs the matching store operation.
package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lorebook-dev/lorebook/internal/entry"
	"github.com/lorebook-dev/lorebook/internal/store"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

// DefaultTopK bounds similarity searches.
const DefaultTopK = 20

// Mode is the store operation chosen for a query.
type Mode string

const (
	ModeList             Mode = "list"
	ModeFilter           Mode = "filter"
	ModeSemantic         Mode = "semantic"
	ModeFilteredSemantic Mode = "filtered_semantic"
)

// Query is a parsed search request. An empty Text means no query.
type Query struct {
	Text string
	Tags []string
}

// ParseQuery builds a Query from the raw q and tags request parameters.
func ParseQuery(q, tags string) Query {
	return Query{Text: strings.TrimSpace(q), Tags: entry.ParseTags(tags)}
}

// Mode reports which operation Search runs for q.
func (q Query) Mode() Mode {
	switch {
	case q.Text == "" && len(q.Tags) == 0:
		return ModeList
	case q.Text == "":
		return ModeFilter
	case len(q.Tags) == 0:
		return ModeSemantic
	default:
		return ModeFilteredSemantic
	}
}

// Options tunes a Composer.
type Options struct {
	ListLimit int        // bound for list and filter scans; 0 uses entry.DefaultListLimit.
	TopK      int        // bound for similarity searches; 0 uses DefaultTopK.
	OnSearch  func(Mode) // called once per search, before it runs.
}

// Composer runs searches. It holds no mutable state.
type Composer struct {
	store    store.VectorStore
	embedder entry.Embedder
	opts     Options
}

func NewComposer(vs store.VectorStore, embedder entry.Embedder, opts Options) *Composer {
	if opts.ListLimit <= 0 {
		opts.ListLimit = entry.DefaultListLimit
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Composer{store: vs, embedder: embedder, opts: opts}
}

// Search returns the entries matching q. Scans keep store order; similarity
// searches are ordered by descending similarity. Failures are logged and
// returned as a single search failure carrying the underlying message.
func (c *Composer) Search(ctx context.Context, q Query) ([]entry.Entry, error) {
	mode := q.Mode()
	if c.opts.OnSearch != nil {
		c.opts.OnSearch(mode)
	}

	results, err := c.run(ctx, mode, q)
	if err != nil {
		slog.Error("search failed", "query", q.Text, "tags", q.Tags, "mode", string(mode), "error", err)
		return nil, lberr.New(lberr.CodeSearchQueryFailure, err.Error(), lberr.Field("mode", string(mode)))
	}
	return results, nil
}

func (c *Composer) run(ctx context.Context, mode Mode, q Query) ([]entry.Entry, error) {
	filter := store.Filter{Tags: q.Tags}

	switch mode {
	case ModeList, ModeFilter:
		points, err := c.store.Scroll(ctx, filter, c.opts.ListLimit)
		if err != nil {
			return nil, err
		}
		return entry.FromPoints(points), nil

	default:
		vec, err := c.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, err
		}
		hits, err := c.store.Search(ctx, vec, filter, c.opts.TopK)
		if err != nil {
			return nil, err
		}
		out := make([]entry.Entry, 0, len(hits))
		for _, h := range hits {
			out = append(out, entry.FromPoint(h.Point))
		}
		return out, nil
	}
}
