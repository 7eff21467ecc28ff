// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package health_test

import (
	"testing"

	"github.com/lorebook-dev/lorebook/pkg/health"
	"github.com/stretchr/testify/assert"
)

func TestNewReport(t *testing.T) {
	tests := []struct {
		name       string
		components []health.Component
		want       string
	}{
		{name: "no components", want: health.StatusOK},
		{
			name:       "all available",
			components: []health.Component{{Name: "openai", Metrics: &health.Metrics{Available: true}}, {Name: "qdrant"}},
			want:       health.StatusOK,
		},
		{
			name:       "provider in cooldown",
			components: []health.Component{{Name: "openai", Metrics: &health.Metrics{Available: false, FailureCount: 2}}},
			want:       health.StatusDegraded,
		},
		{
			name:       "store error",
			components: []health.Component{{Name: "qdrant", Error: "connection refused"}},
			want:       health.StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := health.NewReport("dev", tt.components...)
			assert.Equal(t, tt.want, r.Status)
			assert.Equal(t, "dev", r.Version)
			assert.NotNil(t, r.Components)
		})
	}
}
