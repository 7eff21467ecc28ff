// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

//go:build windows

package config

import "log/slog"

// WarnInsecurePermissions only logs at debug on Windows, where access is
// governed by ACLs instead of mode bits.
func WarnInsecurePermissions(path string) {
	if path != "" {
		slog.Debug("config permission check not implemented on Windows", "path", path)
	}
}
