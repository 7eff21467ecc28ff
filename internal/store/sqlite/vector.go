// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lorebook-dev/lorebook/internal/store"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

// VectorStore implements store.VectorStore on a single SQLite table. Ranking
// uses sqlite-vec's vec_distance_cosine over every row matching the tag
// filter, so results are exact rather than approximate.
type VectorStore struct {
	db         *sql.DB
	dimensions int
}

// NewVectorStore opens (or creates) a SQLite database at dbPath and
// initialises the entries table.
func NewVectorStore(dbPath string, dimensions int) (*VectorStore, error) {
	if dimensions <= 0 {
		return nil, lberr.Errorf(lberr.CodeStoreInvalidInput, "sqlite: vector dimensions must be positive, got %d", dimensions)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "migrating entries table: %w", err)
	}

	return &VectorStore{db: db, dimensions: dimensions}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS entries (
	id        INTEGER PRIMARY KEY,
	name      TEXT NOT NULL,
	text      TEXT NOT NULL,
	tags      TEXT NOT NULL DEFAULT '[]',
	embedding BLOB NOT NULL
)`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("creating entries table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a point.
func (v *VectorStore) Upsert(ctx context.Context, point store.Point) error {
	if point.ID > math.MaxInt64 {
		return lberr.Errorf(lberr.CodeStoreInvalidInput, "sqlite: id %d does not fit an integer column", point.ID)
	}
	if len(point.Vector) != v.dimensions {
		return lberr.Errorf(lberr.CodeStoreInvalidInput,
			"sqlite: vector has %d dimensions, store expects %d", len(point.Vector), v.dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(point.Vector)
	if err != nil {
		return lberr.Errorf(lberr.CodeStoreInvalidInput, "serializing embedding: %w", err)
	}

	tags := point.Payload.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return lberr.Errorf(lberr.CodeStoreInvalidInput, "marshalling tags: %w", err)
	}

	const q = `INSERT INTO entries(id, name, text, tags, embedding) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	text = excluded.text,
	tags = excluded.tags,
	embedding = excluded.embedding`
	if _, err := v.db.ExecContext(ctx, q, int64(point.ID), point.Payload.Name, point.Payload.Text, string(tagsJSON), blob); err != nil {
		return lberr.Errorf(lberr.CodeStoreDatabaseFailure, "upserting entry %d: %w", point.ID, err)
	}
	return nil
}

// Get returns a single point without its vector.
func (v *VectorStore) Get(ctx context.Context, id uint64) (*store.Point, error) {
	row := v.db.QueryRowContext(ctx, `SELECT id, name, text, tags FROM entries WHERE id = ?`, int64(id))

	p, err := scanPoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(id)
	}
	if err != nil {
		return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "reading entry %d: %w", id, err)
	}
	return &p, nil
}

// Delete removes points by ID.
func (v *VectorStore) Delete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}

	if _, err := v.db.ExecContext(ctx, `DELETE FROM entries WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return lberr.Errorf(lberr.CodeStoreDatabaseFailure, "deleting entries: %w", err)
	}
	return nil
}

// Scroll returns up to limit points in id order.
func (v *VectorStore) Scroll(ctx context.Context, filter store.Filter, limit int) ([]store.Point, error) {
	where, args := tagClause(filter)
	args = append(args, limit)

	rows, err := v.db.QueryContext(ctx, `SELECT id, name, text, tags FROM entries`+where+` ORDER BY id LIMIT ?`, args...)
	if err != nil {
		return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "scrolling entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []store.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "scanning entry: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "iterating entries: %w", err)
	}
	return points, nil
}

// Search ranks every row matching filter by cosine distance to query.
// Score is reported as similarity (1 - distance).
func (v *VectorStore) Search(ctx context.Context, query []float32, filter store.Filter, limit int) ([]store.ScoredPoint, error) {
	if len(query) != v.dimensions {
		return nil, lberr.Errorf(lberr.CodeStoreInvalidInput,
			"sqlite: query has %d dimensions, store expects %d", len(query), v.dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, lberr.Errorf(lberr.CodeStoreInvalidInput, "serializing query vector: %w", err)
	}

	where, filterArgs := tagClause(filter)
	args := make([]any, 0, len(filterArgs)+2)
	args = append(args, blob)
	args = append(args, filterArgs...)
	args = append(args, limit)

	q := `SELECT id, name, text, tags, vec_distance_cosine(embedding, ?) AS distance
FROM entries` + where + `
ORDER BY distance
LIMIT ?`

	rows, err := v.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "searching entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []store.ScoredPoint
	for rows.Next() {
		var (
			id       int64
			tagsJSON string
			distance float64
			sp       store.ScoredPoint
		)
		if err := rows.Scan(&id, &sp.Payload.Name, &sp.Payload.Text, &tagsJSON, &distance); err != nil {
			return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "scanning search result: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &sp.Payload.Tags); err != nil {
			return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "decoding tags of entry %d: %w", id, err)
		}
		sp.ID = uint64(id)
		sp.Score = float32(1 - distance)
		results = append(results, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "iterating search results: %w", err)
	}
	return results, nil
}

// IDs returns every stored id.
func (v *VectorStore) IDs(ctx context.Context) ([]uint64, error) {
	rows, err := v.db.QueryContext(ctx, `SELECT id FROM entries ORDER BY id`)
	if err != nil {
		return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "listing entry ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "scanning entry id: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, lberr.Errorf(lberr.CodeStoreDatabaseFailure, "iterating entry ids: %w", err)
	}
	return ids, nil
}

// Close closes the underlying database connection.
func (v *VectorStore) Close() error {
	return v.db.Close()
}

// tagClause builds a WHERE clause requiring every filter tag to be present in
// the JSON tags array.
func tagClause(filter store.Filter) (string, []any) {
	if filter.IsEmpty() {
		return "", nil
	}

	conds := make([]string, len(filter.Tags))
	args := make([]any, len(filter.Tags))
	for i, tag := range filter.Tags {
		conds[i] = `EXISTS (SELECT 1 FROM json_each(entries.tags) WHERE json_each.value = ?)`
		args[i] = tag
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPoint(s scanner) (store.Point, error) {
	var (
		id       int64
		tagsJSON string
		p        store.Point
	)
	if err := s.Scan(&id, &p.Payload.Name, &p.Payload.Text, &tagsJSON); err != nil {
		return store.Point{}, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &p.Payload.Tags); err != nil {
		return store.Point{}, fmt.Errorf("decoding tags of entry %d: %w", id, err)
	}
	p.ID = uint64(id)
	return p, nil
}
