// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lorebook-dev/lorebook/internal/entry"
	"github.com/lorebook-dev/lorebook/internal/metrics"
	"github.com/lorebook-dev/lorebook/internal/search"
	"github.com/lorebook-dev/lorebook/internal/server"
	"github.com/lorebook-dev/lorebook/internal/store"
	"github.com/lorebook-dev/lorebook/internal/store/storetest"
	"github.com/lorebook-dev/lorebook/pkg/health"
)

type fixture struct {
	handler  http.Handler
	store    *storetest.Fake
	embedder *storetest.Embedder
	metrics  *metrics.Metrics
}

type fixtureOptions struct {
	strictUpdate bool
	health       server.HealthService
}

type staticHealth []health.Component

func (h staticHealth) Components(context.Context) []health.Component { return h }

// newFixture wires real entry and search services onto an in-memory store.
func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	fake := storetest.New()
	emb := &storetest.Embedder{Default: []float32{1, 0}}
	m := metrics.New()

	entries := entry.NewService(fake, emb, entry.Options{StrictUpdate: opts.strictUpdate})
	composer := search.NewComposer(fake, emb, search.Options{})

	var svc *server.Services
	if opts.health != nil {
		svc = server.NewServicesForTest(entries, composer, opts.health)
	} else {
		svc = server.NewServicesForTest(entries, composer)
	}

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Version:    "test",
		Services:   svc,
		Metrics:    m,
	})
	require.NoError(t, err)

	return &fixture{handler: srv.Handler(), store: fake, embedder: emb, metrics: m}
}

func (f *fixture) seed(id uint64, name string, vec []float32, tags ...string) {
	f.store.Put(store.Point{ID: id, Vector: vec, Payload: store.Payload{Name: name, Text: name + " text", Tags: tags}})
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}
