// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package health holds the serializable health types shared by the server,
// the embedding layer and the CLI.
package health

import "time"

// Metrics is a point-in-time snapshot of an upstream dependency's health.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// Status values reported by /health.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Component describes one dependency in a Report.
type Component struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Metrics *Metrics `json:"metrics,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Healthy reports whether the component has no error and, when metrics are
// present, is available.
func (c Component) Healthy() bool {
	if c.Error != "" {
		return false
	}
	return c.Metrics == nil || c.Metrics.Available
}

// Report is the body of the /health endpoint.
type Report struct {
	Status     string      `json:"status"`
	Version    string      `json:"version,omitempty"`
	Components []Component `json:"components"`
}

// NewReport derives the overall status from its components.
func NewReport(version string, components ...Component) Report {
	status := StatusOK
	for _, c := range components {
		if !c.Healthy() {
			status = StatusDegraded
			break
		}
	}
	if components == nil {
		components = []Component{}
	}
	return Report{Status: status, Version: version, Components: components}
}
