// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package secrets keeps API keys out of config files by storing them in the
// OS keyring.
package secrets

// DefaultService is the keyring service lorebook stores its keys under.
const DefaultService = "lorebook"

// Store provides secret storage operations.
type Store interface {
	// Store saves value under service and key, replacing any previous value.
	Store(service, key, value string) error

	// Retrieve fetches the value for service and key. A missing key yields
	// an error with code secret.get.not_found.
	Retrieve(service, key string) (string, error)

	// Delete removes the value for service and key. A missing key yields
	// an error with code secret.get.not_found.
	Delete(service, key string) error

	// List returns the key names stored under service, sorted.
	List(service string) ([]string, error)
}

// Fallbacks maps well-known keyring keys under DefaultService to the config
// keys they fill when the config leaves them empty.
var Fallbacks = map[string]string{
	"openai_api_key": "embedding.api_key",
	"qdrant_api_key": "storage.api_key",
}
