// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/lorebook-dev/lorebook/internal/embedding"
	"github.com/lorebook-dev/lorebook/internal/entry"
	"github.com/lorebook-dev/lorebook/internal/search"
	"github.com/lorebook-dev/lorebook/internal/server"
	"github.com/lorebook-dev/lorebook/internal/store"
	"github.com/lorebook-dev/lorebook/internal/store/storetest"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestMain(m *testing.M) {
	// Keep tests off the real OS keyring.
	keyring.MockInit()
	os.Exit(m.Run())
}

// execute runs the root command with an isolated HOME and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeIn(t, t.TempDir(), "", args...)
}

// executeIn runs the root command with HOME set to home and stdin fed from
// input.
func executeIn(t *testing.T, home, input string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := NewRootCmd()
	root.SetIn(strings.NewReader(input))
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

// testServer is a lorebook API backed by an in-memory fake store.
type testServer struct {
	addr     string
	store    *storetest.Fake
	embedder *storetest.Embedder
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	fake := storetest.New()
	emb := &storetest.Embedder{Default: []float32{1, 0}}

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Version:    "test",
		Services: server.NewServicesForTest(
			entry.NewService(fake, emb, entry.Options{}),
			search.NewComposer(fake, emb, search.Options{}),
		),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{
		addr:     strings.TrimPrefix(ts.URL, "http://"),
		store:    fake,
		embedder: emb,
	}
}

func (s *testServer) seed(id uint64, name string, vec []float32, tags ...string) {
	s.store.Put(store.Point{ID: id, Vector: vec, Payload: store.Payload{Name: name, Text: name + " text", Tags: tags}})
}

// fakeEmbedder is a complete embedding.Embedder with fixed output.
type fakeEmbedder struct {
	vec    []float32
	err    error
	closed bool
}

var _ embedding.Embedder = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Name() string    { return "fake" }
func (f *fakeEmbedder) Model() string   { return "fake-model" }
func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }
func (f *fakeEmbedder) Close() error    { f.closed = true; return nil }

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

// useEmbedder swaps the provider registry lookup for e during a test.
func useEmbedder(t *testing.T, e embedding.Embedder) {
	t.Helper()
	old := openEmbedder
	openEmbedder = func(embedding.Config) (embedding.Embedder, error) { return e, nil }
	t.Cleanup(func() { openEmbedder = old })
}
