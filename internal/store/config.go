// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package store

const (
	// DefaultCollection is the collection holding entries.
	DefaultCollection = "chatbot_context"

	// DefaultVectorDimensions matches OpenAI text-embedding-ada-002.
	DefaultVectorDimensions = 1536

	// DefaultGRPCPort is the Qdrant gRPC port.
	DefaultGRPCPort = 6334

	defaultBackend = "qdrant"
)

// Config controls which backend the store factory opens and how.
type Config struct {
	Backend          string // "qdrant", "sqlite" or "memory"; empty means qdrant.
	URL              string // Qdrant endpoint, e.g. https://xyz.cloud.qdrant.io:6333
	APIKey           string
	GRPCPort         int    // 0 uses DefaultGRPCPort.
	Collection       string // empty uses DefaultCollection.
	CreateCollection bool   // create the collection and tag index when missing.
	Path             string // sqlite database file.
	VectorDimensions int    // 0 uses DefaultVectorDimensions.
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Backend == "" {
		c.Backend = defaultBackend
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.GRPCPort == 0 {
		c.GRPCPort = DefaultGRPCPort
	}
	if c.VectorDimensions <= 0 {
		c.VectorDimensions = DefaultVectorDimensions
	}
	return c
}
