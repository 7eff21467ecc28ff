// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/lorebook-dev/lorebook/internal/config"
	"github.com/lorebook-dev/lorebook/internal/secrets"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// secretStoreFactory is replaced in tests with an in-memory store.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// NewRootCmd creates the root lorebook command with all subcommands
// registered. Each root owns its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "lorebook",
		Short:         "Lorebook, tagged text entries with semantic search",
		Long:          "Lorebook stores named, tagged text entries in a vector database and serves tag and semantic search over REST.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd, v)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(v),
		newStatusCmd(v),
		newDoctorCmd(v),
		newEntriesCmd(v),
		newShowCmd(v),
		newSearchCmd(v),
		newTagsCmd(v),
		newAddCmd(v),
		newDeleteCmd(v),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper applies defaults, environment, the config file and flags to v
// so the precedence flag > env > file > defaults holds for every command.
func initViper(cmd *cobra.Command, v *viper.Viper) error {
	config.SetDefaults(v)
	config.SetupEnv(v)

	if err := readConfig(cmd, v); err != nil {
		return err
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return lberr.Errorf(lberr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return lberr.Errorf(lberr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	slog.SetDefault(config.NewLogger(cmd.ErrOrStderr(), config.LoggingConfig{
		Level:  v.GetString("logging.level"),
		Format: v.GetString("logging.format"),
	}, v.GetBool("verbose")))

	config.WarnInsecurePermissions(v.ConfigFileUsed())

	store := secretStoreFactory()
	if err := secrets.ResolveViperSecrets(v, store); err != nil {
		// serve refuses to start with an unresolved reference; other
		// commands may not need the value at all.
		slog.Warn("unresolved keyring references in config", "error", err)
	}
	if filled := secrets.ApplyFallbacks(v, store); len(filled) > 0 {
		slog.Debug("filled config from keyring", "keys", filled)
	}

	return nil
}

func readConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return lberr.Errorf(lberr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
		return nil
	}

	// No SetConfigType: viper would then also try the bare name, which is
	// the ./lorebook binary in a source checkout.
	v.SetConfigName("lorebook")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/lorebook")
	v.AddConfigPath("/etc/lorebook")

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) {
		return lberr.Errorf(lberr.CodeConfigLoadReadFailure, "reading config: %w", err)
	}

	if cmd.Annotations[annotationNoBootstrap] != "" {
		return nil
	}
	if path := config.BootstrapConfig(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return lberr.Errorf(lberr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
		}
	}
	return nil
}
