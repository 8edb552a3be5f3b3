package metastore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by Store implementations and index helpers.
var (
	ErrNotFound = errors.New("record not found")
	ErrInvalid  = errors.New("invalid record")
)

// IOError reports an index that could not be read or written.
type IOError struct {
	Op   string // "read" or "write"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ParseError reports a malformed index. Field is the JSON path of the
// offending value when it is known (e.g. "prds[3].status").
type ParseError struct {
	Path  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("parse %s: %s: %v", e.Path, e.Field, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Store loads and persists the PRD and task indices.
//
// Load methods return empty indices when nothing has been stored yet. Save
// methods replace the stored collection as a whole; implementations must
// never leave a half-written index behind.
type Store interface {
	// Init prepares the backing storage (directories, tables).
	Init(ctx context.Context) error

	LoadPRDs(ctx context.Context) (*PRDIndex, error)
	LoadTasks(ctx context.Context) (*TaskIndex, error)
	SavePRDs(ctx context.Context, idx *PRDIndex) error
	SaveTasks(ctx context.Context, idx *TaskIndex) error
}

// FindPRDByID loads the PRD index and returns the PRD with the given ID.
func FindPRDByID(ctx context.Context, s Store, id string) (*PRD, error) {
	idx, err := s.LoadPRDs(ctx)
	if err != nil {
		return nil, err
	}
	p := idx.FindByID(id)
	if p == nil {
		return nil, fmt.Errorf("prd %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// FindPRDsByStatus loads the PRD index and returns the PRDs with status.
func FindPRDsByStatus(ctx context.Context, s Store, status PRDStatus) ([]*PRD, error) {
	idx, err := s.LoadPRDs(ctx)
	if err != nil {
		return nil, err
	}
	return idx.FindByStatus(status), nil
}
