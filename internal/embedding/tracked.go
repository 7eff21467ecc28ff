// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package embedding

import (
	"context"
	"time"

	"github.com/lorebook-dev/lorebook/pkg/health"
)

// Observer is notified after every embedding call.
type Observer func(provider string, elapsed time.Duration, err error)

// Tracked wraps an Embedder, feeding call outcomes into a HealthTracker and
// an optional Observer.
type Tracked struct {
	Embedder
	tracker  *HealthTracker
	observer Observer
	nowFunc  func() time.Time
}

// Compile-time interface check.
var _ Embedder = (*Tracked)(nil)

// NewTracked decorates e. observer may be nil.
func NewTracked(e Embedder, tracker *HealthTracker, observer Observer) *Tracked {
	return &Tracked{Embedder: e, tracker: tracker, observer: observer, nowFunc: time.Now}
}

func (t *Tracked) Embed(ctx context.Context, text string) ([]float32, error) {
	start := t.nowFunc()
	vec, err := t.Embedder.Embed(ctx, text)
	if err != nil {
		t.tracker.RecordFailure()
	} else {
		t.tracker.RecordSuccess()
	}
	if t.observer != nil {
		t.observer(t.Name(), t.nowFunc().Sub(start), err)
	}
	return vec, err
}

// Health returns the provider's current health snapshot.
func (t *Tracked) Health() health.Metrics {
	return t.tracker.Metrics()
}
