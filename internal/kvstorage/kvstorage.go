// Package kvstorage defines a generic key-value storage interface for
// small JSON documents that live beside the PRD and task indices, such as
// per-PRD version histories.
package kvstorage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned when a key is absent from its table.
	ErrKeyNotFound = errors.New("key not found")
	// ErrAlreadyExists is returned by Set under FailIfExists.
	ErrAlreadyExists = errors.New("key already exists")
	// ErrReservedTable is returned for table names owned by the indices.
	ErrReservedTable = errors.New("reserved table name")
)

// KVStore defines the interface for generic key-value persistence.
// Each store operates on a single "table" (a directory under .taskmaster/
// or a namespace in the database).
type KVStore interface {
	// Init prepares the table for use.
	Init(ctx context.Context) error

	// Set stores a value for the given key, subject to opts.Exists.
	Set(ctx context.Context, key string, value []byte, opts SetOptions) error

	// Get retrieves the value for the given key.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key and its value.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// List returns all keys in the table in ascending order.
	List(ctx context.Context) ([]string, error)
}

// ExistsPolicy constrains Set on whether the key may already exist.
type ExistsPolicy int

const (
	// Upsert creates or overwrites.
	Upsert ExistsPolicy = iota
	// FailIfExists makes Set return ErrAlreadyExists for a present key.
	FailIfExists
	// FailIfNotExists makes Set return ErrKeyNotFound for a missing key.
	FailIfNotExists
)

// SetOptions controls Set behavior.
type SetOptions struct {
	Exists ExistsPolicy
}

// ReservedTableNames are the directories under .taskmaster/ owned by the
// indices and PRD files. They cannot be used as KV table names.
var ReservedTableNames = []string{"tasks", "prd", "templates", "reports"}

// ValidateTableName checks that a table name is not reserved and is non-empty.
func ValidateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	for _, reserved := range ReservedTableNames {
		if name == reserved {
			return fmt.Errorf("table name %q is reserved: %w", name, ErrReservedTable)
		}
	}
	return nil
}

// ValidateKey checks that a key is non-empty and can be used as a file name.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	for _, r := range key {
		if r == '/' || r == '\\' {
			return fmt.Errorf("key %q contains path separator", key)
		}
	}
	if key == "." || key == ".." {
		return fmt.Errorf("key %q is not a valid name", key)
	}
	return nil
}
