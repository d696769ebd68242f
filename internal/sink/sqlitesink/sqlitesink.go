// Package sqlitesink stores managed collections in a SQLite file. Several
// collections can share one database; every row is keyed by collection name.
package sqlitesink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"collection-sync/internal/core/schema"
	"collection-sync/internal/sink"
)

const ddl = `
CREATE TABLE IF NOT EXISTS fields (
  collection TEXT NOT NULL,
  position   INTEGER NOT NULL,
  id         TEXT NOT NULL,
  data       TEXT NOT NULL,
  PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS items (
  collection TEXT NOT NULL,
  id         TEXT NOT NULL,
  slug       TEXT NOT NULL,
  title      TEXT NOT NULL DEFAULT '',
  field_data TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS plugin_data (
  collection TEXT NOT NULL,
  key        TEXT NOT NULL,
  value      TEXT NOT NULL,
  PRIMARY KEY (collection, key)
);`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// Sink is one collection inside a SQLite database.
type Sink struct {
	db         *sql.DB
	collection string
	owned      bool
}

var _ sink.Sink = (*Sink)(nil)
var _ sink.Inspector = (*Sink)(nil)

// Open opens (creating if needed) the database at path and returns the named
// collection. Close releases the database.
func Open(path, collection string) (*Sink, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlitesink: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitesink: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	s, err := New(db, collection)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New uses an already opened database. The caller keeps ownership of db.
func New(db *sql.DB, collection string) (*Sink, error) {
	if collection == "" {
		return nil, fmt.Errorf("sqlitesink: collection name is required")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("sqlitesink: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("sqlitesink: schema: %w", err)
	}
	return &Sink{db: db, collection: collection}, nil
}

func (s *Sink) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Sink) ItemIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM items WHERE collection = ? ORDER BY id`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Sink) SetFields(ctx context.Context, fields []schema.CollectionField) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM fields WHERE collection = ?`, s.collection); err != nil {
		return err
	}
	for i, f := range fields {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO fields (collection, position, id, data) VALUES (?, ?, ?, ?)`,
			s.collection, i, f.ID, string(data)); err != nil {
			return fmt.Errorf("field %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Sink) AddItems(ctx context.Context, items []schema.CollectionItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO items (collection, id, slug, title, field_data, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET
  slug = excluded.slug, title = excluded.title, field_data = excluded.field_data, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, it := range items {
		data, err := sink.EncodeFieldData(it.FieldData)
		if err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, it.ID, it.Slug, it.Title, string(data), now); err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// deleteChunk bounds the ids bound into one DELETE, below SQLite's
// variable limit.
const deleteChunk = 500

func (s *Sink) RemoveItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for start := 0; start < len(ids); start += deleteChunk {
		chunk := ids[start:min(start+deleteChunk, len(ids))]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, s.collection)
		for _, id := range chunk {
			args = append(args, id)
		}
		q := `DELETE FROM items WHERE collection = ? AND id IN (?` + strings.Repeat(", ?", len(chunk)-1) + `)`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Sink) PluginData(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM plugin_data WHERE collection = ? AND key = ?`, s.collection, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Sink) SetPluginData(ctx context.Context, key string, value *string) error {
	if value == nil {
		_, err := s.db.ExecContext(ctx, `DELETE FROM plugin_data WHERE collection = ? AND key = ?`, s.collection, key)
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO plugin_data (collection, key, value) VALUES (?, ?, ?)
ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value`, s.collection, key, *value)
	return err
}

func (s *Sink) Fields(ctx context.Context) ([]schema.CollectionField, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM fields WHERE collection = ? ORDER BY position`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schema.CollectionField
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var f schema.CollectionField
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Items returns the stored items ordered by id.
func (s *Sink) Items(ctx context.Context) ([]schema.CollectionItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, slug, title, field_data FROM items WHERE collection = ? ORDER BY id`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schema.CollectionItem
	for rows.Next() {
		var it schema.CollectionItem
		var data string
		if err := rows.Scan(&it.ID, &it.Slug, &it.Title, &data); err != nil {
			return nil, err
		}
		if it.FieldData, err = sink.DecodeFieldData([]byte(data)); err != nil {
			return nil, fmt.Errorf("item %s: %w", it.ID, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
