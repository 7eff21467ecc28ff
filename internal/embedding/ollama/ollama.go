// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package ollama embeds text with a local Ollama server's /api/embed endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lorebook-dev/lorebook/internal/embedding"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

const (
	DefaultEndpoint   = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultDimensions = 768

	requestTimeout = 120 * time.Second
)

func init() {
	embedding.RegisterProvider("ollama", func(cfg embedding.Config) (embedding.Embedder, error) {
		return New(Config{Endpoint: cfg.Endpoint, Model: cfg.Model, Dimensions: cfg.Dimensions}), nil
	})
}

// Config holds Ollama embedder configuration.
type Config struct {
	Endpoint   string
	Model      string
	Dimensions int
	HTTPClient *http.Client
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embedder implements embedding.Embedder.
type Embedder struct {
	endpoint   string
	model      string
	dimensions int
	httpClient *http.Client
}

// Compile-time interface check.
var _ embedding.Embedder = (*Embedder)(nil)

func New(cfg Config) *Embedder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: requestTimeout}
	}
	return &Embedder{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		httpClient: cfg.HTTPClient,
	}
}

func (e *Embedder) Name() string    { return "ollama" }
func (e *Embedder) Model() string   { return e.model }
func (e *Embedder) Dimensions() int { return e.dimensions }
func (e *Embedder) Close() error    { return nil }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, lberr.New(lberr.CodeEmbeddingRequestInvalid, "ollama: empty input", lberr.FieldProvider("ollama"))
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, lberr.Wrap(err, lberr.CodeEmbeddingRequestInvalid, "ollama: marshal embed request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, lberr.Wrap(err, lberr.CodeEmbeddingRequestInvalid, "ollama: building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, lberr.Wrap(err, lberr.CodeEmbeddingUpstreamFailure, "ollama: embed request", lberr.FieldProvider("ollama"))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, lberr.New(lberr.CodeEmbeddingUpstreamFailure,
			fmt.Sprintf("ollama: embed returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			lberr.FieldProvider("ollama"))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, lberr.Wrap(err, lberr.CodeEmbeddingResponseInvalid, "ollama: decode embed response")
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, lberr.New(lberr.CodeEmbeddingResponseInvalid, "ollama: returned empty embeddings", lberr.FieldProvider("ollama"))
	}

	vec := result.Embeddings[0]
	if len(vec) != e.dimensions {
		return nil, lberr.Errorf(lberr.CodeEmbeddingResponseInvalid,
			"ollama: model %s returned %d dimensions, expected %d", e.model, len(vec), e.dimensions)
	}
	return vec, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Ping checks that the server is reachable and has the configured model
// pulled. Ollama lists models with a tag suffix, so "nomic-embed-text"
// matches "nomic-embed-text:latest".
func (e *Embedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/api/tags", nil)
	if err != nil {
		return lberr.Wrap(err, lberr.CodeEmbeddingRequestInvalid, "ollama: building request")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return lberr.Wrap(err, lberr.CodeEmbeddingUpstreamFailure, "ollama: listing models", lberr.FieldProvider("ollama"))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return lberr.Errorf(lberr.CodeEmbeddingUpstreamFailure, "ollama: tags returned status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return lberr.Wrap(err, lberr.CodeEmbeddingResponseInvalid, "ollama: decode tags response")
	}
	for _, m := range tags.Models {
		if m.Name == e.model || strings.HasPrefix(m.Name, e.model+":") {
			return nil
		}
	}
	return lberr.Errorf(lberr.CodeEmbeddingNotFound, "ollama: model %s is not pulled (run `ollama pull %s`)", e.model, e.model)
}
