// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package main

import (
	"fmt"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/lorebook-dev/lorebook/pkg/health"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long:  "Check that a running server answers /test and print its /health report.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, clientFor(cmd, v))
		},
	}
	addAddressFlag(cmd)
	return cmd
}

func runStatus(cmd *cobra.Command, c *apiClient) error {
	out := cmd.OutOrStdout()

	var ping struct {
		Message string `json:"message"`
	}
	if err := c.getJSON(cmd.Context(), "/test", &ping); err != nil {
		if lberr.HasCode(err, lberr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", c.baseURL)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Server at %s: %s\n", c.baseURL, err)
		return nil
	}

	var report health.Report
	if err := c.getJSON(cmd.Context(), "/health", &report); err != nil {
		_, _ = fmt.Fprintf(out, "Server at %s: up, health unavailable: %s\n", c.baseURL, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Server at %s: %s (version %s)\n", c.baseURL, report.Status, report.Version)
	for _, comp := range report.Components {
		state := "ok"
		switch {
		case comp.Error != "":
			state = "error: " + comp.Error
		case comp.Metrics != nil && !comp.Metrics.Available:
			state = fmt.Sprintf("cooling down after %d failure(s)", comp.Metrics.FailureCount)
		}
		_, _ = fmt.Fprintf(out, "  %-10s %-8s %s\n", comp.Kind, comp.Name, state)
	}
	return nil
}
