// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorebook-dev/lorebook/internal/embedding"
	"github.com/lorebook-dev/lorebook/internal/embedding/openai"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

type recordedRequest struct {
	Path  string
	Auth  string
	Model string `json:"model"`
	Input string `json:"input"`
}

// newEmbeddingServer serves /embeddings with the given vector and records
// the last request it received.
func newEmbeddingServer(t *testing.T, vector []float64, status int) (*httptest.Server, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.Path = r.URL.Path
		rec.Auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(rec)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
			return
		}

		data := []map[string]any{}
		if vector != nil {
			data = append(data, map[string]any{"object": "embedding", "index": 0, "embedding": vector})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  rec.Model,
			"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, lberr.HasCode(err, lberr.CodeEmbeddingRequestInvalid))
}

func TestNew_Defaults(t *testing.T) {
	e, err := openai.New(openai.Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", e.Name())
	assert.Equal(t, openai.DefaultModel, e.Model())
	assert.Equal(t, openai.DefaultDimensions, e.Dimensions())
}

func TestEmbed(t *testing.T) {
	srv, rec := newEmbeddingServer(t, []float64{0.25, -0.5, 1}, http.StatusOK)
	e, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "text-embedding-3-small", Dimensions: 3})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "Name: a\nText: b\nTags: c")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)

	assert.Equal(t, "/embeddings", rec.Path)
	assert.Equal(t, "Bearer sk-test", rec.Auth)
	assert.Equal(t, "text-embedding-3-small", rec.Model)
	assert.Equal(t, "Name: a\nText: b\nTags: c", rec.Input)
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv, _ := newEmbeddingServer(t, []float64{1, 2}, http.StatusOK)
	e, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL, Dimensions: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, lberr.HasCode(err, lberr.CodeEmbeddingResponseInvalid))
}

func TestEmbed_EmptyResponse(t *testing.T) {
	srv, _ := newEmbeddingServer(t, nil, http.StatusOK)
	e, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL, Dimensions: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, lberr.HasCode(err, lberr.CodeEmbeddingResponseInvalid))
}

func TestEmbed_UpstreamError(t *testing.T) {
	srv, _ := newEmbeddingServer(t, nil, http.StatusUnauthorized)
	e, err := openai.New(openai.Config{APIKey: "sk-bad", BaseURL: srv.URL, Dimensions: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, lberr.IsUpstreamFailure(err))
}

func TestEmbed_EmptyInput(t *testing.T) {
	e, err := openai.New(openai.Config{APIKey: "sk-test"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "")
	require.Error(t, err)
	assert.True(t, lberr.IsInvalidInput(err))
}

func TestRegisteredProvider(t *testing.T) {
	e, err := embedding.Open(embedding.Config{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", e.Name())
}
