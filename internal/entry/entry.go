// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package entry holds the entry model, the composition rules used to embed
// entries and the service that writes them to the vector store.
package entry

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/lorebook-dev/lorebook/internal/store"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

// MaxID is the largest entry id. Ids stay within int64 so every backend
// stores them without wrapping.
const MaxID uint64 = math.MaxInt64

// ValidationMessage is returned to clients for any invalid payload.
const ValidationMessage = "Name, text, and at least one tag are required"

// Entry is a stored record as returned to clients. The vector is never exposed.
type Entry struct {
	ID   uint64   `json:"id"`
	Name string   `json:"name"`
	Text string   `json:"text"`
	Tags []string `json:"tags"`
}

// Payload is the client-supplied part of an entry.
type Payload struct {
	Name string   `json:"name,omitempty"`
	Text string   `json:"text,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

// Outcome tells whether a write created a new entry or replaced one.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// Validate reports whether p has a name, a text and at least one non-blank tag.
func Validate(p Payload) error {
	valid := p.Name != "" && p.Text != "" && len(p.Tags) > 0 &&
		!slices.ContainsFunc(p.Tags, func(t string) bool { return strings.TrimSpace(t) == "" })
	if !valid {
		return lberr.New(lberr.CodeEntryValidateInvalid, ValidationMessage)
	}
	return nil
}

// BuildEmbeddingText returns the canonical text embedded for an entry:
// "{name}: {text} {tags joined by space}", or "{name}: {text}" without tags.
// Create and update must both use it so stored vectors stay comparable.
func BuildEmbeddingText(name, text string, tags []string) string {
	if len(tags) == 0 {
		return name + ": " + text
	}
	return name + ": " + text + " " + strings.Join(tags, " ")
}

// NextID returns one more than the largest id, or 1 when ids is empty. It
// fails once the largest id has reached MaxID.
func NextID(ids []uint64) (uint64, error) {
	if len(ids) == 0 {
		return 1, nil
	}
	highest := slices.Max(ids)
	if highest >= MaxID {
		return 0, lberr.New(lberr.CodeEntryIDExhausted, "no entry id left above "+strconv.FormatUint(highest, 10))
	}
	return highest + 1, nil
}

// ParseTags splits a comma-separated tag parameter, trimming whitespace and
// dropping empty tokens. It returns nil when no tag remains.
func ParseTags(param string) []string {
	var tags []string
	for _, tok := range strings.Split(param, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tags = append(tags, tok)
		}
	}
	return tags
}

// ParseID parses an entry id from a path segment. Ids are between 1 and MaxID.
func ParseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 || id > MaxID {
		return 0, lberr.New(lberr.CodeEntryIDInvalid, "invalid entry id: "+raw)
	}
	return id, nil
}

// FromPoint projects a stored point to an entry.
func FromPoint(p store.Point) Entry {
	tags := p.Payload.Tags
	if tags == nil {
		tags = []string{}
	}
	return Entry{ID: p.ID, Name: p.Payload.Name, Text: p.Payload.Text, Tags: tags}
}

// FromPoints projects points in order.
func FromPoints(points []store.Point) []Entry {
	out := make([]Entry, 0, len(points))
	for _, p := range points {
		out = append(out, FromPoint(p))
	}
	return out
}

func (p Payload) toStore() store.Payload {
	return store.Payload{Name: p.Name, Text: p.Text, Tags: slices.Clone(p.Tags)}
}
