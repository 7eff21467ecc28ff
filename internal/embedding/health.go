// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package embedding

import (
	"sync"
	"time"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/lorebook-dev/lorebook/pkg/health"
)

// DefaultHealthCooldown is how long a provider is reported unavailable after
// a failed call.
const DefaultHealthCooldown = 30 * time.Second

// HealthTracker records the outcome of embedding calls. A provider starts
// healthy, becomes unhealthy on failure and is reported available again once
// the cooldown has elapsed or a call succeeds.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time
}

// NewHealthTracker returns a healthy tracker. cooldown must be positive.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, lberr.Errorf(lberr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{healthy: true, cooldown: cooldown, nowFunc: time.Now}, nil
}

// caller holds h.mu.
func (h *HealthTracker) availableLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.availableLocked()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Metrics returns a snapshot of the tracker state.
func (h *HealthTracker) Metrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{FailureCount: h.failureCount, Available: h.availableLocked()}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	if !h.healthy {
		until := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &until
	}
	return m
}
