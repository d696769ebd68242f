// Package pgsink stores managed collections in PostgreSQL using the same
// table layout as sqlitesink, with field data in JSONB columns.
package pgsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collection-sync/internal/core/schema"
	"collection-sync/internal/sink"
)

const ddl = `
CREATE TABLE IF NOT EXISTS fields (
  collection text NOT NULL,
  position integer NOT NULL,
  id text NOT NULL,
  data jsonb NOT NULL,
  PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS items (
  collection text NOT NULL,
  id text NOT NULL,
  slug text NOT NULL,
  title text NOT NULL DEFAULT '',
  field_data jsonb NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS plugin_data (
  collection text NOT NULL,
  key text NOT NULL,
  value text NOT NULL,
  PRIMARY KEY (collection, key)
);
`

// Sink is one collection inside a PostgreSQL database.
type Sink struct {
	db         *pgxpool.Pool
	collection string
	owned      bool
}

var _ sink.Sink = (*Sink)(nil)
var _ sink.Inspector = (*Sink)(nil)

// Open connects to dsn and ensures the tables exist.
func Open(ctx context.Context, dsn, collection string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgsink: connect: %w", err)
	}
	s, err := New(ctx, pool, collection)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New reuses an existing pool. The caller keeps ownership of pool.
func New(ctx context.Context, pool *pgxpool.Pool, collection string) (*Sink, error) {
	if collection == "" {
		return nil, errors.New("pgsink: collection name is required")
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("pgsink: schema: %w", err)
	}
	return &Sink{db: pool, collection: collection}, nil
}

func (s *Sink) Close() {
	if s.owned {
		s.db.Close()
	}
}

func (s *Sink) ItemIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM items WHERE collection = $1 ORDER BY id`, s.collection)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Sink) SetFields(ctx context.Context, fields []schema.CollectionField) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM fields WHERE collection = $1`, s.collection); err != nil {
		return err
	}
	for i, f := range fields {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.ID, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO fields (collection, position, id, data) VALUES ($1, $2, $3, $4)`,
			s.collection, i, f.ID, data); err != nil {
			return fmt.Errorf("field %s: %w", f.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Sink) AddItems(ctx context.Context, items []schema.CollectionItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		data, err := sink.EncodeFieldData(it.FieldData)
		if err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
		batch.Queue(`INSERT INTO items (collection, id, slug, title, field_data)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (collection, id) DO UPDATE SET
  slug = EXCLUDED.slug, title = EXCLUDED.title, field_data = EXCLUDED.field_data, updated_at = now()`,
			s.collection, it.ID, it.Slug, it.Title, data)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Sink) RemoveItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM items WHERE collection = $1 AND id = ANY($2)`, s.collection, ids)
	return err
}

func (s *Sink) PluginData(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(ctx, `SELECT value FROM plugin_data WHERE collection = $1 AND key = $2`, s.collection, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Sink) SetPluginData(ctx context.Context, key string, value *string) error {
	if value == nil {
		_, err := s.db.Exec(ctx, `DELETE FROM plugin_data WHERE collection = $1 AND key = $2`, s.collection, key)
		return err
	}
	_, err := s.db.Exec(ctx, `INSERT INTO plugin_data (collection, key, value) VALUES ($1, $2, $3)
ON CONFLICT (collection, key) DO UPDATE SET value = EXCLUDED.value`, s.collection, key, *value)
	return err
}

func (s *Sink) Fields(ctx context.Context) ([]schema.CollectionField, error) {
	rows, err := s.db.Query(ctx, `SELECT data FROM fields WHERE collection = $1 ORDER BY position`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schema.CollectionField
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var f schema.CollectionField
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Items returns the stored items ordered by id.
func (s *Sink) Items(ctx context.Context) ([]schema.CollectionItem, error) {
	rows, err := s.db.Query(ctx, `SELECT id, slug, title, field_data FROM items WHERE collection = $1 ORDER BY id`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schema.CollectionItem
	for rows.Next() {
		var it schema.CollectionItem
		var data []byte
		if err := rows.Scan(&it.ID, &it.Slug, &it.Title, &data); err != nil {
			return nil, err
		}
		if it.FieldData, err = sink.DecodeFieldData(data); err != nil {
			return nil, fmt.Errorf("item %s: %w", it.ID, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
