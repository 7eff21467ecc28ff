// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lorebook-dev/lorebook/internal/embedding"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

const (
	DefaultModel      = "text-embedding-ada-002"
	DefaultDimensions = 1536
)

func init() {
	embedding.RegisterProvider("openai", func(cfg embedding.Config) (embedding.Embedder, error) {
		return New(Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	})
}

// Config holds OpenAI embedder configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int
}

// Embedder implements embedding.Embedder.
type Embedder struct {
	client     openaisdk.Client
	model      string
	dimensions int
}

// Compile-time interface check.
var _ embedding.Embedder = (*Embedder)(nil)

// New creates an OpenAI embedder. Returns an error if the API key is missing.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, lberr.New(lberr.CodeEmbeddingRequestInvalid,
			"openai: missing api_key in config", lberr.FieldProvider("openai"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Embedder{
		client:     openaisdk.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (e *Embedder) Name() string    { return "openai" }
func (e *Embedder) Model() string   { return e.model }
func (e *Embedder) Dimensions() int { return e.dimensions }
func (e *Embedder) Close() error    { return nil }

// Embed requests a single embedding and converts it to float32.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, lberr.New(lberr.CodeEmbeddingRequestInvalid, "openai: empty input", lberr.FieldProvider("openai"))
	}

	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model: openaisdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, lberr.Wrap(err, lberr.CodeEmbeddingUpstreamFailure, "openai: creating embedding",
			lberr.FieldProvider("openai"), lberr.Field("model", e.model))
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, lberr.New(lberr.CodeEmbeddingResponseInvalid, "openai: response contained no embedding",
			lberr.FieldProvider("openai"), lberr.Field("model", e.model))
	}

	raw := resp.Data[0].Embedding
	if len(raw) != e.dimensions {
		return nil, lberr.Errorf(lberr.CodeEmbeddingResponseInvalid,
			"openai: model %s returned %d dimensions, expected %d", e.model, len(raw), e.dimensions)
	}

	vec := make([]float32, len(raw))
	for i, f := range raw {
		vec[i] = float32(f)
	}
	return vec, nil
}
