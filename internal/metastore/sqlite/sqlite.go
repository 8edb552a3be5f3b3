// Package sqlite implements metastore.Store on the embedded SQLite database.
//
// PRDs map one-to-one onto the prds table. Tasks are stored one row per
// top-level task; the identifier from the JSON index, dependencies, PRD
// source, and subtasks travel in the row's metadata blob so that a load
// gives back exactly what was saved.
package sqlite

import (
	"context"
	"fmt"
	"path/filepath"

	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/migrate"
	"taskmaster-lite/internal/sqldb"

	"github.com/jmoiron/sqlx"
)

// Store implements metastore.Store over a SQLite database.
type Store struct {
	db        *sqlx.DB
	root      string
	projectID string
}

// New creates a Store for the project at root. The database must already
// be open; the caller owns it.
func New(db *sqlx.DB, root string) *Store {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Store{db: db, root: root}
}

// DB exposes the underlying database.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Init applies the base schema and pending schema migrations, and makes
// sure the project row exists.
func (s *Store) Init(ctx context.Context) error {
	if err := sqldb.EnsureSchema(ctx, s.db); err != nil {
		return &metastore.IOError{Op: "init", Path: s.root, Err: err}
	}
	if _, err := migrate.MigrateSchema(ctx, s.db); err != nil {
		return err
	}
	_, err := s.project(ctx)
	return err
}

func (s *Store) project(ctx context.Context) (string, error) {
	if s.projectID != "" {
		return s.projectID, nil
	}
	id, err := sqldb.EnsureProject(ctx, s.db, filepath.Base(s.root), s.root)
	if err != nil {
		return "", &metastore.IOError{Op: "read", Path: "projects", Err: err}
	}
	s.projectID = id
	return id, nil
}

// LoadPRDs returns the project's PRDs in saved order.
func (s *Store) LoadPRDs(ctx context.Context) (*metastore.PRDIndex, error) {
	projectID, err := s.project(ctx)
	if err != nil {
		return nil, err
	}
	var rows []sqldb.PRDRow
	err = s.db.SelectContext(ctx, &rows,
		`SELECT `+sqldb.PRDColumns+` FROM prds WHERE project_id = ? ORDER BY position, id`, projectID)
	if err != nil {
		return nil, &metastore.IOError{Op: "read", Path: "prds", Err: err}
	}
	idx := metastore.NewPRDIndex()
	for _, r := range rows {
		p, err := r.Decode()
		if err != nil {
			return nil, &metastore.ParseError{Path: "prds", Field: r.ID, Err: err}
		}
		idx.PRDs = append(idx.PRDs, p)
	}
	idx.Metadata.TotalPRDs = len(idx.PRDs)
	return idx, nil
}

// LoadTasks returns the project's tasks in saved order.
func (s *Store) LoadTasks(ctx context.Context) (*metastore.TaskIndex, error) {
	projectID, err := s.project(ctx)
	if err != nil {
		return nil, err
	}
	var rows []sqldb.TaskRow
	err = s.db.SelectContext(ctx, &rows,
		`SELECT `+sqldb.TaskColumns+` FROM tasks
		WHERE project_id = ? AND parent_task_id IS NULL ORDER BY position, id`, projectID)
	if err != nil {
		return nil, &metastore.IOError{Op: "read", Path: "tasks", Err: err}
	}
	idx := metastore.NewTaskIndex()
	for _, r := range rows {
		t, err := r.Decode()
		if err != nil {
			return nil, &metastore.ParseError{Path: "tasks", Field: fmt.Sprint(r.ID), Err: err}
		}
		idx.Tasks = append(idx.Tasks, t)
	}
	return idx, nil
}

// SavePRDs upserts every PRD in idx and deletes the project's PRDs that
// are no longer listed, in one transaction.
func (s *Store) SavePRDs(ctx context.Context, idx *metastore.PRDIndex) error {
	projectID, err := s.project(ctx)
	if err != nil {
		return err
	}
	err = sqldb.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var existing []string
		if err := tx.SelectContext(ctx, &existing, `SELECT id FROM prds WHERE project_id = ?`, projectID); err != nil {
			return err
		}
		keep := make(map[string]bool, len(idx.PRDs))
		for i, p := range idx.PRDs {
			if err := metastore.ValidatePRD(p); err != nil {
				return err
			}
			row, err := sqldb.EncodePRD(p, projectID, i)
			if err != nil {
				return err
			}
			if err := sqldb.UpsertPRD(ctx, tx, row); err != nil {
				return err
			}
			keep[p.ID] = true
		}
		for _, id := range existing {
			if keep[id] {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM prds WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete prd %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return &metastore.IOError{Op: "write", Path: "prds", Err: err}
	}
	return nil
}

// SaveTasks replaces the project's tasks in one transaction.
func (s *Store) SaveTasks(ctx context.Context, idx *metastore.TaskIndex) error {
	projectID, err := s.project(ctx)
	if err != nil {
		return err
	}
	err = sqldb.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}
		for i, t := range idx.Tasks {
			row, err := sqldb.EncodeTask(t, projectID, i)
			if err != nil {
				return err
			}
			if _, err := sqldb.InsertTask(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &metastore.IOError{Op: "write", Path: "tasks", Err: err}
	}
	return nil
}

// Compile-time check that Store implements metastore.Store.
var _ metastore.Store = (*Store)(nil)
