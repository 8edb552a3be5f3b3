// Package filesystem implements kvstorage.KVStore on the project
// filesystem. Each key is stored as a JSON file in a named table
// directory under .taskmaster/.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/kvstorage"
)

// Store implements kvstorage.KVStore using filesystem-backed JSON files.
// Each table is a directory, and each key is a .json file within it.
type Store struct {
	fs  fsutil.FS
	dir string // root-relative table directory
}

// New creates a filesystem KV store for table under dataDir (usually
// ".taskmaster"). Returns an error if the table name is reserved or empty.
func New(fsys fsutil.FS, dataDir, table string) (*Store, error) {
	if err := kvstorage.ValidateTableName(table); err != nil {
		return nil, err
	}
	return &Store{fs: fsys, dir: path.Join(dataDir, table)}, nil
}

// Dir returns the root-relative table directory.
func (s *Store) Dir() string {
	return s.dir
}

// Init creates the table directory if it doesn't exist.
func (s *Store) Init(ctx context.Context) error {
	return s.fs.MkdirAll(s.dir)
}

// Set stores a value for the given key. Writes are atomic.
func (s *Store) Set(ctx context.Context, key string, value []byte, opts kvstorage.SetOptions) error {
	if err := kvstorage.ValidateKey(key); err != nil {
		return err
	}
	p := s.keyPath(key)
	switch opts.Exists {
	case kvstorage.FailIfExists:
		if s.fs.Exists(p) {
			return fmt.Errorf("key %q: %w", key, kvstorage.ErrAlreadyExists)
		}
	case kvstorage.FailIfNotExists:
		if !s.fs.Exists(p) {
			return fmt.Errorf("key %q: %w", key, kvstorage.ErrKeyNotFound)
		}
	}
	return s.fs.WriteFile(p, value)
}

// Get retrieves the value for the given key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := kvstorage.ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := s.fs.ReadFile(s.keyPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("key %q: %w", key, kvstorage.ErrKeyNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Delete removes a key and its value.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := kvstorage.ValidateKey(key); err != nil {
		return err
	}
	if err := s.fs.Remove(s.keyPath(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("key %q: %w", key, kvstorage.ErrKeyNotFound)
		}
		return err
	}
	return nil
}

// List returns all keys in the table. Non-JSON files and subdirectories
// are ignored.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) keyPath(key string) string {
	return path.Join(s.dir, key+".json")
}

var _ kvstorage.KVStore = (*Store)(nil)
