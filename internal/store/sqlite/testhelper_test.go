// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/lorebook-dev/lorebook/internal/store"
	"github.com/lorebook-dev/lorebook/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}

// newTestStore opens a 3-dimensional store that is closed on cleanup.
func newTestStore(t *testing.T, name string) *sqlite.VectorStore {
	t.Helper()
	vs, err := sqlite.NewVectorStore(testDBPath(t, name), 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	return vs
}

func point(id uint64, vec []float32, name string, tags ...string) store.Point {
	return store.Point{
		ID:      id,
		Vector:  vec,
		Payload: store.Payload{Name: name, Text: name + " text", Tags: tags},
	}
}
