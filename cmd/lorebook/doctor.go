// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/lorebook-dev/lorebook/internal/config"
	"github.com/lorebook-dev/lorebook/internal/secrets"
	"github.com/lorebook-dev/lorebook/internal/store"
	"github.com/lorebook-dev/lorebook/internal/store/qdrant"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const doctorProbeTimeout = 15 * time.Second

func newDoctorCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, configuration, store and embedding settings, the running server and free disk space. --probe also contacts the store and the embedding provider.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, v)
		},
	}

	addAddressFlag(cmd)
	cmd.Flags().Bool("probe", false, "open the store and call the embedding provider")

	return cmd
}

func runDoctor(cmd *cobra.Command, v *viper.Viper) error {
	w := cmd.OutOrStdout()
	probe, _ := cmd.Flags().GetBool("probe")

	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(v, cfg) }},
		{"Store", func() string { return checkStore(cmd.Context(), cfg, probe) }},
		{"Embedding", func() string { return checkEmbedding(cmd.Context(), cfg, probe) }},
		{"Server", func() string { return checkServer(cmd, clientFor(cmd, v)) }},
		{"Disk Space", func() string { return checkDiskSpace(cfg.DataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}
	return nil
}

func checkBinary() string {
	return fmt.Sprintf("lorebook %s (commit %s)", version, commit)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(v *viper.Viper, cfg *config.Config) string {
	source := "using defaults (no config file found)"
	if f := v.ConfigFileUsed(); f != "" {
		source = "loaded from " + f
	}

	errs := cfg.Validate()
	if len(errs) == 0 {
		return source
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%s, %d problem(s): %s", source, len(errs), strings.Join(msgs, "; "))
}

func checkStore(ctx context.Context, cfg *config.Config, probe bool) string {
	var desc string
	switch cfg.Storage.Backend {
	case "qdrant":
		if cfg.Storage.URL == "" {
			return "qdrant: storage.url is not set (QDRANT_URL)"
		}
		ep, err := qdrant.ParseEndpoint(cfg.Storage.URL, cfg.Storage.GRPCPort)
		if err != nil {
			return "qdrant: " + err.Error()
		}
		desc = fmt.Sprintf("qdrant at %s, collection %s, api key %s", ep, cfg.Storage.Collection, presence(cfg.Storage.APIKey))
	case "sqlite":
		path := cfg.SQLitePath()
		if _, err := os.Stat(path); err != nil {
			desc = fmt.Sprintf("sqlite at %s (not created yet)", path)
		} else {
			desc = "sqlite at " + path
		}
	default:
		desc = cfg.Storage.Backend + " (entries are lost on restart)"
	}

	if !probe {
		return desc
	}

	ctx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()

	sc := cfg.StoreConfig()
	sc.CreateCollection = false
	vs, err := store.Open(ctx, sc)
	if err != nil {
		return desc + ", probe failed: " + err.Error()
	}
	defer func() { _ = vs.Close() }()

	ids, err := vs.IDs(ctx)
	if err != nil {
		return desc + ", probe failed: " + err.Error()
	}
	return fmt.Sprintf("%s, reachable, %d entries", desc, len(ids))
}

func checkEmbedding(ctx context.Context, cfg *config.Config, probe bool) string {
	desc := fmt.Sprintf("%s model %s (%d dimensions)", cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	if cfg.Embedding.Provider == "openai" {
		if cfg.Embedding.APIKey == "" {
			return desc + ", api key missing (set OPENAI_API_KEY or run `lorebook secret set openai_api_key`)"
		}
		if secrets.IsKeyringURI(cfg.Embedding.APIKey) {
			return desc + ", api key keyring reference unresolved"
		}
		desc += ", api key set"
	}

	if !probe {
		return desc
	}

	ctx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()
	if err := probeEmbedder(ctx, cfg.EmbeddingConfig()); err != nil {
		return desc + ", probe failed: " + err.Error()
	}
	return desc + ", reachable"
}

func checkServer(cmd *cobra.Command, c *apiClient) string {
	var ping struct {
		Message string `json:"message"`
	}
	if err := c.getJSON(cmd.Context(), "/test", &ping); err != nil {
		if lberr.HasCode(err, lberr.CodeCLIServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'lorebook serve')", c.baseURL)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return "running at " + c.baseURL
}

func presence(s string) string {
	if s == "" {
		return "not set"
	}
	return "set"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
