// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{
		"init", "serve", "status", "doctor", "entries", "show",
		"search", "tags", "add", "delete", "secret", "version",
	} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_GlobalFlags(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"config", "data-dir", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "c", root.PersistentFlags().Lookup("config").Shorthand)
	assert.Equal(t, "v", root.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lorebook dev")
	assert.Contains(t, out, "commit:")
}

func TestRootCmd_BootstrapsConfig(t *testing.T) {
	home := t.TempDir()

	_, err := executeIn(t, home, "", "version")
	require.NoError(t, err)

	path := filepath.Join(home, ".config", "lorebook", "lorebook.yaml")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRootCmd_InitSkipsBootstrap(t *testing.T) {
	home := t.TempDir()

	// init fails without a terminal, but must not have created a config.
	_, err := executeIn(t, home, "", "init")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(home, ".config", "lorebook", "lorebook.yaml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, lberr.HasCode(err, lberr.CodeConfigLoadReadFailure), "got %v", err)
}

func TestServeCmd_RequiresOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LOREBOOK_EMBEDDING_API_KEY", "")
	useSecretStore(t, newMockSecretStore())

	cfg := filepath.Join(t.TempDir(), "lorebook.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("storage:\n  backend: memory\n"), 0o600))

	_, err := execute(t, "serve", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.api_key is required")
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "lorebook.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("storage:\n  backend: mongo\n"), 0o600))

	_, err := execute(t, "serve", "--config", cfg)
	require.Error(t, err)
	assert.True(t, lberr.HasCode(err, lberr.CodeConfigValidateInvalidValue), "got %v", err)
}

func TestDialAddress(t *testing.T) {
	tests := map[string]string{
		"0.0.0.0:5000":   "127.0.0.1:5000",
		":5000":          "127.0.0.1:5000",
		"[::]:5000":      "127.0.0.1:5000",
		"10.0.0.2:8080":  "10.0.0.2:8080",
		"localhost:5000": "localhost:5000",
		"not-an-address": "not-an-address",
	}
	for in, want := range tests {
		assert.Equal(t, want, dialAddress(in), "listen %q", in)
	}
}

func TestNewAPIClient_Scheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:5000", newAPIClient("127.0.0.1:5000").baseURL)
	assert.Equal(t, "https://lore.example.com", newAPIClient("https://lore.example.com/").baseURL)
}
