// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorebook-dev/lorebook/internal/metrics"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := metrics.New()
	b := metrics.New()

	a.RecordSearch("semantic")
	assert.InDelta(t, 1, testutil.ToFloat64(a.Searches.WithLabelValues("semantic")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.Searches.WithLabelValues("semantic")), 0)
}

func TestObserveEmbedding(t *testing.T) {
	m := metrics.New()

	m.ObserveEmbedding("openai", 120*time.Millisecond, nil)
	m.ObserveEmbedding("openai", time.Second, errors.New("boom"))

	assert.Equal(t, 1, testutil.CollectAndCount(m.EmbeddingDuration))
	assert.InDelta(t, 1, testutil.ToFloat64(m.EmbeddingErrors.WithLabelValues("openai")), 0)
}

func TestRecordEntryWrite(t *testing.T) {
	m := metrics.New()
	m.RecordEntryWrite("created")
	m.RecordEntryWrite("created")
	m.RecordEntryWrite("updated")

	assert.InDelta(t, 2, testutil.ToFloat64(m.EntryWrites.WithLabelValues("created")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EntryWrites.WithLabelValues("updated")), 0)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Delete("/entry/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/entry/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/entry/{id}", "DELETE", "200")), 0)
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := metrics.New()
	m.RecordSearch("filter")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lorebook_searches_total{mode="filter"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
