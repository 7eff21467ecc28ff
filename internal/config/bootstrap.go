// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

//go:embed lorebook.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/lorebook/lorebook.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", lberr.Errorf(lberr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "lorebook", "lorebook.yaml"), nil
}

// BootstrapConfig writes the commented default config when none exists yet.
// It returns the path written, or "" when the file already existed or could
// not be created. Failures are logged at debug and never fatal.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}
	return bootstrapAt(cfgPath)
}

func bootstrapAt(cfgPath string) string {
	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	// 0600: the file may later hold an API key.
	if err := os.WriteFile(cfgPath, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
