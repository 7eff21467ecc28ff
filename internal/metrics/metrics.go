// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package metrics exposes Prometheus metrics for the lorebook server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lorebook"

// Metrics holds every collector on a private registry so that several
// servers (and tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	EmbeddingDuration *prometheus.HistogramVec
	EmbeddingErrors   *prometheus.CounterVec
	EntryWrites       *prometheus.CounterVec
	Searches          *prometheus.CounterVec
}

// New creates and registers all metrics, including Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and method.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"route", "method"}),
		EmbeddingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Embedding call latency by provider.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"provider"}),
		EmbeddingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_errors_total",
			Help:      "Failed embedding calls by provider.",
		}, []string{"provider"}),
		EntryWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entry_writes_total",
			Help:      "Entry writes by outcome (created or updated).",
		}, []string{"outcome"}),
		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches by mode.",
		}, []string{"mode"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEmbedding matches embedding.Observer.
func (m *Metrics) ObserveEmbedding(provider string, elapsed time.Duration, err error) {
	m.EmbeddingDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if err != nil {
		m.EmbeddingErrors.WithLabelValues(provider).Inc()
	}
}

// RecordEntryWrite counts a create or update outcome.
func (m *Metrics) RecordEntryWrite(outcome string) {
	m.EntryWrites.WithLabelValues(outcome).Inc()
}

// RecordSearch counts a search by mode.
func (m *Metrics) RecordSearch(mode string) {
	m.Searches.WithLabelValues(mode).Inc()
}

// Middleware records request count and latency. The route label is the chi
// route pattern so ids in paths do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
