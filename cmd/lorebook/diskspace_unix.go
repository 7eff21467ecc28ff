// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

//go:build !windows

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); err != nil {
		// The data directory is created on first serve.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	return formatBytes(stat.Bavail*uint64(stat.Bsize)) + " available"
}
