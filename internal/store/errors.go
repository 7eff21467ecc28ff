// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package store

import (
	"errors"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

// Sentinel errors for store operations.
// These errors can be checked using errors.Is() for classification.
var (
	// ErrNotFound indicates the requested point does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input parameters are invalid or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates the backing service could not be reached or
	// answered with a failure.
	ErrUnavailable = errors.New("vector store unavailable")
)

// NotFound returns a coded error wrapping ErrNotFound for the given id.
func NotFound(id uint64) error {
	return lberr.Wrapf(ErrNotFound, lberr.CodeStoreEntryNotFound, "entry %d", id)
}
