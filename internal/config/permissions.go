// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

const (
	groupRead fs.FileMode = 0o040
	otherRead fs.FileMode = 0o004
)

// WarnInsecurePermissions logs a warning when the config file at path is
// readable by group or others. The Qdrant and OpenAI keys may live in it.
// It never fails startup.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	if info.Mode().Perm()&(groupRead|otherRead) != 0 {
		slog.Warn("config file has insecure permissions, api keys may be readable by other users",
			"path", path,
			"mode", info.Mode(),
			"recommended", "0600",
		)
	}
}
