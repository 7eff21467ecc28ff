// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package storetest

import (
	"context"
	"sync"
)

// Embedder returns canned vectors keyed by input text and records every call.
type Embedder struct {
	mu      sync.Mutex
	Vectors map[string][]float32
	// Default is returned for texts missing from Vectors.
	Default []float32
	Err     error
	Inputs  []string
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Inputs = append(e.Inputs, text)
	if e.Err != nil {
		return nil, e.Err
	}
	if v, ok := e.Vectors[text]; ok {
		return v, nil
	}
	return e.Default, nil
}

// CallCount returns the number of Embed calls.
func (e *Embedder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Inputs)
}
