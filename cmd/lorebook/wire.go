// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lorebook-dev/lorebook/internal/config"
	"github.com/lorebook-dev/lorebook/internal/embedding"
	_ "github.com/lorebook-dev/lorebook/internal/embedding/ollama" // register ollama provider
	_ "github.com/lorebook-dev/lorebook/internal/embedding/openai" // register openai provider
	"github.com/lorebook-dev/lorebook/internal/entry"
	"github.com/lorebook-dev/lorebook/internal/metrics"
	"github.com/lorebook-dev/lorebook/internal/search"
	"github.com/lorebook-dev/lorebook/internal/server"
	"github.com/lorebook-dev/lorebook/internal/store"
	_ "github.com/lorebook-dev/lorebook/internal/store/memory" // register memory backend
	_ "github.com/lorebook-dev/lorebook/internal/store/qdrant" // register qdrant backend
	_ "github.com/lorebook-dev/lorebook/internal/store/sqlite" // register sqlite backend
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/lorebook-dev/lorebook/pkg/health"
)

// App holds the wired subsystems of a running server.
type App struct {
	Server   *server.Server
	Store    store.VectorStore
	Embedder *embedding.Tracked
	Metrics  *metrics.Metrics
}

// openEmbedder is replaced in tests to avoid real providers.
var openEmbedder = embedding.Open

// WireApp opens the store and the embedding provider and builds the server
// on top of them.
func WireApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Storage.Backend == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath()), 0o755); err != nil {
			return nil, lberr.Errorf(lberr.CodeCLISetupFailure, "creating data directory: %w", err)
		}
	}

	vs, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, lberr.Wrapf(err, lberr.CodeCLISetupFailure, "opening %s store", cfg.Storage.Backend)
	}

	wired := false
	defer func() {
		if !wired {
			_ = vs.Close()
		}
	}()

	raw, err := openEmbedder(cfg.EmbeddingConfig())
	if err != nil {
		return nil, lberr.Wrapf(err, lberr.CodeCLISetupFailure, "opening %s embedder", cfg.Embedding.Provider)
	}
	defer func() {
		if !wired {
			_ = raw.Close()
		}
	}()

	m := metrics.New()

	tracker, err := embedding.NewHealthTracker(embedding.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewTracked(raw, tracker, m.ObserveEmbedding)

	entries := entry.NewService(vs, embedder, entry.Options{
		ListLimit:    cfg.Entries.ListLimit,
		StrictUpdate: cfg.Entries.StrictUpdate,
		OnWrite:      func(o entry.Outcome) { m.RecordEntryWrite(string(o)) },
	})
	searcher := search.NewComposer(vs, embedder, search.Options{
		ListLimit: cfg.Entries.ListLimit,
		TopK:      cfg.Search.TopK,
		OnSearch:  func(mode search.Mode) { m.RecordSearch(string(mode)) },
	})

	services, err := server.NewServices(entries, searcher, &healthService{
		embedder: embedder,
		store:    vs,
		backend:  cfg.Storage.Backend,
	})
	if err != nil {
		return nil, lberr.Wrapf(err, lberr.CodeCLISetupFailure, "creating services")
	}

	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Networking.Listen,
		CORSOrigins:  cfg.Networking.CORSOrigins,
		ReadTimeout:  cfg.Networking.ReadTimeout,
		WriteTimeout: cfg.Networking.WriteTimeout,
		Version:      version,
		Services:     services,
		Metrics:      m,
	})
	if err != nil {
		return nil, lberr.Wrapf(err, lberr.CodeCLISetupFailure, "creating server")
	}

	slog.Info("lorebook wired",
		"store", cfg.Storage.Backend,
		"collection", cfg.Storage.Collection,
		"embedding", embedder.Name(),
		"model", embedder.Model(),
	)

	wired = true
	return &App{Server: srv, Store: vs, Embedder: embedder, Metrics: m}, nil
}

// Start runs the HTTP server until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases the embedder and the store.
func (a *App) Close() error {
	var errs []error
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// healthService reports the embedder's failure tracking and whether the
// store answers a one-point scroll.
type healthService struct {
	embedder *embedding.Tracked
	store    store.VectorStore
	backend  string
}

func (h *healthService) Components(ctx context.Context) []health.Component {
	em := h.embedder.Health()
	components := []health.Component{{
		Name:    h.embedder.Name(),
		Kind:    "embedding",
		Metrics: &em,
	}}

	sc := health.Component{Name: h.backend, Kind: "store"}
	if _, err := h.store.Scroll(ctx, store.Filter{}, 1); err != nil {
		sc.Error = err.Error()
	}
	return append(components, sc)
}
