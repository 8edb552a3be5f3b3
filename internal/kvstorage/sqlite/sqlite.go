// Package sqlite implements kvstorage.KVStore on the project database.
// Every table shares the kv_entries relation, namespaced by table name.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskmaster-lite/internal/kvstorage"
	"taskmaster-lite/internal/sqldb"

	"github.com/jmoiron/sqlx"
)

// Store implements kvstorage.KVStore over the kv_entries table.
type Store struct {
	db    *sqlx.DB
	table string
}

// New creates a database-backed KV store for table. The database must
// already be open; the caller owns it.
func New(db *sqlx.DB, table string) (*Store, error) {
	if err := kvstorage.ValidateTableName(table); err != nil {
		return nil, err
	}
	return &Store{db: db, table: table}, nil
}

// Init makes sure the base schema, which holds kv_entries, exists.
func (s *Store) Init(ctx context.Context) error {
	return sqldb.EnsureSchema(ctx, s.db)
}

func (s *Store) Set(ctx context.Context, key string, value []byte, opts kvstorage.SetOptions) error {
	if err := kvstorage.ValidateKey(key); err != nil {
		return err
	}
	now := sqldb.FormatTime(time.Now())
	switch opts.Exists {
	case kvstorage.FailIfExists:
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO kv_entries (table_name, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(table_name, key) DO NOTHING`, s.table, key, value, now)
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", s.table, key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("key %q: %w", key, kvstorage.ErrAlreadyExists)
		}
		return nil
	case kvstorage.FailIfNotExists:
		res, err := s.db.ExecContext(ctx,
			`UPDATE kv_entries SET value = ?, updated_at = ? WHERE table_name = ? AND key = ?`,
			value, now, s.table, key)
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", s.table, key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("key %q: %w", key, kvstorage.ErrKeyNotFound)
		}
		return nil
	default:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO kv_entries (table_name, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(table_name, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			s.table, key, value, now)
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", s.table, key, err)
		}
		return nil
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := kvstorage.ValidateKey(key); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM kv_entries WHERE table_name = ? AND key = ?`, s.table, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("key %q: %w", key, kvstorage.ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.table, key, err)
	}
	return value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := kvstorage.ValidateKey(key); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE table_name = ? AND key = ?`, s.table, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", s.table, key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("key %q: %w", key, kvstorage.ErrKeyNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys,
		`SELECT key FROM kv_entries WHERE table_name = ? ORDER BY key`, s.table)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.table, err)
	}
	return keys, nil
}

var _ kvstorage.KVStore = (*Store)(nil)
