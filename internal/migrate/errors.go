// Package migrate moves a project forward: the flat legacy directory layout
// into the consolidated one, the JSON indices into the SQLite database, and
// the database schema to its current shape.
package migrate

import "fmt"

// MigrationError reports one record that could not be migrated. The batch
// it belongs to continues.
type MigrationError struct {
	Kind string // "task" or "prd"
	ID   string
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrate %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// SchemaError reports a failed schema change. It is fatal: the migration
// stops at the first one.
type SchemaError struct {
	Statement string
	Err       error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema migration failed at %q: %v", e.Statement, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
