// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/lorebook-dev/lorebook/internal/entry"
	"github.com/lorebook-dev/lorebook/internal/server"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newEntriesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List entries on a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var entries []entry.Entry
			if err := clientFor(cmd, v).getJSON(cmd.Context(), "/entries", &entries); err != nil {
				return err
			}
			return printEntries(cmd, entries)
		},
	}
	addAddressFlag(cmd)
	addJSONFlag(cmd)
	return cmd
}

func newShowCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e entry.Entry
			if err := clientFor(cmd, v).getJSON(cmd.Context(), entryPath(args[0]), &e); err != nil {
				return err
			}
			if asJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), e)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "ID:   %d\nName: %s\nTags: %s\n\n%s\n", e.ID, e.Name, strings.Join(e.Tags, ", "), e.Text)
			return nil
		},
	}
	addAddressFlag(cmd)
	addJSONFlag(cmd)
	return cmd
}

func newSearchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search entries by text and tags",
		Long:  "Search entries. With --query results are ranked by similarity; every --tag must be present on a result.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, _ := cmd.Flags().GetString("query")
			tags, _ := cmd.Flags().GetStringSlice("tag")

			params := url.Values{}
			if q != "" {
				params.Set("q", q)
			}
			if len(tags) > 0 {
				params.Set("tags", strings.Join(tags, ","))
			}
			path := "/search"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			var entries []entry.Entry
			if err := clientFor(cmd, v).getJSON(cmd.Context(), path, &entries); err != nil {
				return err
			}
			return printEntries(cmd, entries)
		},
	}
	cmd.Flags().StringP("query", "q", "", "free-text query")
	cmd.Flags().StringSliceP("tag", "t", nil, "required tag (repeatable or comma-separated)")
	addAddressFlag(cmd)
	addJSONFlag(cmd)
	return cmd
}

func newTagsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List every tag in use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var body struct {
				Tags []string `json:"tags"`
			}
			if err := clientFor(cmd, v).getJSON(cmd.Context(), "/tags", &body); err != nil {
				return err
			}
			if asJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), body)
			}
			out := cmd.OutOrStdout()
			if len(body.Tags) == 0 {
				_, _ = fmt.Fprintln(out, "No tags.")
				return nil
			}
			for _, tag := range body.Tags {
				_, _ = fmt.Fprintln(out, tag)
			}
			return nil
		},
	}
	addAddressFlag(cmd)
	addJSONFlag(cmd)
	return cmd
}

func newAddCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an entry, or replace one with --id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			text, _ := cmd.Flags().GetString("text")
			tags, _ := cmd.Flags().GetStringSlice("tag")
			id, _ := cmd.Flags().GetString("id")

			if text == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return lberr.Wrap(err, lberr.CodeCLIInputInvalid, "reading text from stdin")
				}
				text = strings.TrimRight(string(raw), "\n")
			}

			payload := entry.Payload{Name: name, Text: text, Tags: tags}
			method, path := http.MethodPost, "/entry"
			if id != "" {
				if _, err := strconv.ParseUint(id, 10, 64); err != nil {
					return lberr.Errorf(lberr.CodeCLIInputInvalid, "invalid --id %q", id)
				}
				method, path = http.MethodPut, entryPath(id)
			}

			var e entry.Entry
			hdr, err := clientFor(cmd, v).do(cmd.Context(), method, path, payload, &e)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), e)
			}

			outcome := hdr.Get(server.OutcomeHeader)
			if outcome == "" {
				outcome = string(entry.OutcomeCreated)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Entry %d %s\n", e.ID, outcome)
			return nil
		},
	}
	cmd.Flags().String("name", "", "entry name")
	cmd.Flags().String("text", "", `entry text ("-" reads stdin)`)
	cmd.Flags().StringSlice("tag", nil, "tag (repeatable or comma-separated)")
	cmd.Flags().String("id", "", "replace the entry with this id instead of creating one")
	addAddressFlag(cmd)
	addJSONFlag(cmd)
	return cmd
}

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body struct {
				Message string `json:"message"`
			}
			if _, err := clientFor(cmd, v).do(cmd.Context(), http.MethodDelete, entryPath(args[0]), nil, &body); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", body.Message, args[0])
			return nil
		},
	}
	addAddressFlag(cmd)
	return cmd
}

func addJSONFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "print raw JSON")
}

func asJSON(cmd *cobra.Command) bool {
	b, _ := cmd.Flags().GetBool("json")
	return b
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEntries(cmd *cobra.Command, entries []entry.Entry) error {
	out := cmd.OutOrStdout()
	if asJSON(cmd) {
		if entries == nil {
			entries = []entry.Entry{}
		}
		return writeJSON(out, entries)
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "No entries.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tTAGS\tTEXT")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.Name, strings.Join(e.Tags, ","), preview(e.Text, 60))
	}
	return tw.Flush()
}

// preview shortens text to one line of at most n runes.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n-1]) + "…"
}
