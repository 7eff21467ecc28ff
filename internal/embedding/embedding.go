// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package embedding turns entry text into vectors using a hosted or local
// embedding model.
package embedding

import (
	"context"
	"sort"
	"sync"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

// Embedder produces a fixed-size vector for a piece of text.
type Embedder interface {
	// Name is the provider name, e.g. "openai".
	Name() string
	// Model is the embedding model identifier sent upstream.
	Model() string
	// Dimensions is the vector size the model produces.
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// Pinger is implemented by providers that can check reachability without
// embedding anything.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	Endpoint   string // base URL override; required for ollama.
	Dimensions int    // expected vector size; 0 uses the provider default.
}

// Factory builds an Embedder from configuration.
type Factory func(cfg Config) (Embedder, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterProvider makes a provider available to Open. Provider packages call
// this from init().
func RegisterProvider(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Providers returns the registered provider names in sorted order.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the embedder named by cfg.Provider.
func Open(cfg Config) (Embedder, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, lberr.New(lberr.CodeEmbeddingNotFound,
			"embedding provider not found: "+cfg.Provider, lberr.FieldProvider(cfg.Provider))
	}
	return f(cfg)
}
