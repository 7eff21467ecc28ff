// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lorebook-dev/lorebook/internal/config"
	"github.com/lorebook-dev/lorebook/internal/secrets"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lorebook API server",
		Long:  "Load configuration, open the vector store and embedding provider, and serve the REST API until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		v.Set("networking.listen", listen)
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if err := checkServeSecrets(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := WireApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("closing lorebook", "error", err)
		}
	}()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving lorebook on %s (store: %s, embedding: %s)\n",
		cfg.Networking.Listen, cfg.Storage.Backend, cfg.Embedding.Provider)

	return app.Start(ctx)
}

// checkServeSecrets fails fast on credentials serve cannot work without.
func checkServeSecrets(cfg *config.Config) error {
	for key, val := range map[string]string{
		"embedding.api_key": cfg.Embedding.APIKey,
		"storage.api_key":   cfg.Storage.APIKey,
	} {
		if secrets.IsKeyringURI(val) {
			return lberr.Errorf(lberr.CodeCLISetupFailure, "%s: keyring reference %q could not be resolved", key, val)
		}
	}

	if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey == "" {
		return lberr.New(lberr.CodeCLISetupFailure,
			"embedding.api_key is required for the openai provider (set OPENAI_API_KEY or run `lorebook secret set openai_api_key`)")
	}
	if cfg.Storage.Backend == "qdrant" && cfg.Storage.URL == "" {
		return lberr.New(lberr.CodeCLISetupFailure, "storage.url is required for the qdrant backend (set QDRANT_URL)")
	}
	if cfg.Storage.Backend == "qdrant" && cfg.Storage.APIKey == "" {
		slog.Warn("storage.api_key is empty, connecting to qdrant without authentication")
	}
	return nil
}

