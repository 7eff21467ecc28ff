// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

//go:build !windows

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(NewLogger(&buf, LoggingConfig{Level: "debug", Format: "text"}, false))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestWarnInsecurePermissions(t *testing.T) {
	tests := map[os.FileMode]bool{
		0o600: false,
		0o400: false,
		0o640: true,
		0o604: true,
		0o644: true,
		0o666: true,
	}

	for perm, warn := range tests {
		t.Run(perm.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lorebook.yaml")
			require.NoError(t, os.WriteFile(path, []byte("embedding:\n  api_key: sk-test\n"), 0o600))
			// Chmod so the umask does not mask the bits under test.
			require.NoError(t, os.Chmod(path, perm))

			logs := captureLogs(t)
			WarnInsecurePermissions(path)

			if !warn {
				assert.NotContains(t, logs.String(), "insecure permissions")
				return
			}
			assert.Contains(t, logs.String(), "level=WARN")
			assert.Contains(t, logs.String(), "insecure permissions")
			assert.Contains(t, logs.String(), path)
			assert.Contains(t, logs.String(), "recommended=0600")
		})
	}
}

func TestWarnInsecurePermissions_NoFile(t *testing.T) {
	logs := captureLogs(t)

	WarnInsecurePermissions("")
	assert.Empty(t, logs.String())

	WarnInsecurePermissions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Contains(t, logs.String(), "level=DEBUG")
	assert.NotContains(t, logs.String(), "level=WARN")
}
