// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Command openapi-gen writes the OpenAPI document of the lorebook REST API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lorebook-dev/lorebook/internal/entry"
	"github.com/lorebook-dev/lorebook/internal/search"
	"github.com/lorebook-dev/lorebook/internal/server"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

const defaultOutPath = "api/openapi.json"

func main() {
	outPath := defaultOutPath
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := run(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OpenAPI document written to %s\n", outPath)
}

func run(outPath string) error {
	doc, err := generateSpec()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return lberr.Errorf(lberr.CodeCLISetupFailure, "creating output dir: %w", err)
	}
	if err := os.WriteFile(outPath, append(doc, '\n'), 0o644); err != nil {
		return lberr.Errorf(lberr.CodeCLISetupFailure, "writing %s: %w", outPath, err)
	}
	return nil
}

// generateSpec registers every route on a server backed by no-op services
// and returns the document huma derives from the handler types.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Services:   server.NewServicesForTest(stubEntries{}, stubSearch{}),
	})
	if err != nil {
		return nil, lberr.Errorf(lberr.CodeCLISetupFailure, "creating server: %w", err)
	}
	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// Handlers are never invoked during generation.

type stubEntries struct{}

func (stubEntries) Create(context.Context, entry.Payload) (*entry.Entry, error) { return nil, nil }
func (stubEntries) Update(context.Context, uint64, entry.Payload) (*entry.Entry, entry.Outcome, error) {
	return nil, "", nil
}
func (stubEntries) Get(context.Context, uint64) (*entry.Entry, error) { return nil, nil }
func (stubEntries) Delete(context.Context, uint64) error              { return nil }
func (stubEntries) List(context.Context) ([]entry.Entry, error)       { return nil, nil }
func (stubEntries) Tags(context.Context) ([]string, error)            { return nil, nil }

type stubSearch struct{}

func (stubSearch) Search(context.Context, search.Query) ([]entry.Entry, error) { return nil, nil }
