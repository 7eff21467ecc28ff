// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package sqlite

import (
	"context"

	"github.com/lorebook-dev/lorebook/internal/store"
)

// DefaultPath is the database file used when no path is configured.
const DefaultPath = "lorebook.db"

func init() {
	store.RegisterBackend("sqlite", open)
}

func open(_ context.Context, cfg store.Config) (store.VectorStore, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	return NewVectorStore(path, cfg.VectorDimensions)
}
