// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package store

import (
	"context"
	"sort"
	"sync"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

// Factory opens a VectorStore for a backend. cfg has defaults applied.
type Factory func(ctx context.Context, cfg Config) (VectorStore, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers the factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates the VectorStore selected by cfg.Backend.
func Open(ctx context.Context, cfg Config) (VectorStore, error) {
	cfg = cfg.WithDefaults()

	factoriesMu.RLock()
	factory, ok := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, lberr.New(lberr.CodeStoreBackendUnsupported,
			"unsupported storage backend: "+cfg.Backend, lberr.FieldBackend(cfg.Backend))
	}

	vs, err := factory(ctx, cfg)
	if err != nil {
		return nil, lberr.With(err, lberr.FieldBackend(cfg.Backend))
	}
	return vs, nil
}
