package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/fsutil"
	kvfs "taskmaster-lite/internal/kvstorage/filesystem"
	kvsqlite "taskmaster-lite/internal/kvstorage/sqlite"
	"taskmaster-lite/internal/metastore"
	msfs "taskmaster-lite/internal/metastore/filesystem"
	mssqlite "taskmaster-lite/internal/metastore/sqlite"
	"taskmaster-lite/internal/sqldb"
	"taskmaster-lite/internal/versions"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
)

// resolveActor determines the name recorded as the author of versions.
// Resolution priority:
//  1. actor config key (TM_ACTOR is applied to it by ApplyEnvOverrides)
//  2. git config user.name
//  3. $USER env var
//  4. "unknown"
func resolveActor(app *App) (string, error) {
	if app != nil && app.ConfigStore != nil {
		if actor, ok := app.ConfigStore.Get(config.KeyActor); ok && actor != "" && actor != "${USER}" {
			return actor, nil
		}
	}

	if out, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return name, nil
		}
	}

	if user := os.Getenv("USER"); user != "" {
		return user, nil
	}

	return "unknown", nil
}

// backend is the storage selected by storage.backend.
type backend struct {
	store   metastore.Store
	tracker *versions.Tracker // nil when versions.enabled is false
	db      *sqlx.DB
}

// databasePath returns the configured database file, relative paths taken
// from the project root.
func databasePath(layout config.Layout, cfg config.Store) string {
	p := config.Lookup(cfg, config.KeyDatabasePath)
	if p == "" {
		p = layout.Database
	}
	if filepath.IsAbs(p) {
		return p
	}
	return layout.Abs(p)
}

// openBackend opens the metadata store and version tracker named by the
// config. On the sqlite backend both live in the project database.
func openBackend(ctx context.Context, layout config.Layout, cfg config.Store, logger *log.Logger) (*backend, error) {
	track := config.Bool(cfg, config.KeyVersionsEnabled)
	switch backendName := config.Lookup(cfg, config.KeyStorageBackend); backendName {
	case config.BackendSQLite:
		db, err := sqldb.Open(ctx, databasePath(layout, cfg))
		if err != nil {
			return nil, err
		}
		b := &backend{store: mssqlite.New(db, layout.Root), db: db}
		if track {
			kv, err := kvsqlite.New(db, versions.TableName)
			if err != nil {
				db.Close()
				return nil, err
			}
			b.tracker = versions.New(kv, versions.WithLogger(logger))
		}
		return b, nil
	case config.BackendJSON, "":
		fsys := fsutil.New(layout.Root)
		b := &backend{store: msfs.New(fsys, layout, msfs.WithLogger(logger))}
		if track {
			kv, err := kvfs.New(fsys, layout.DataDir, versions.TableName)
			if err != nil {
				return nil, err
			}
			b.tracker = versions.New(kv, versions.WithLogger(logger))
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backendName)
	}
}

// tallyLine renders batch counts for text output.
func tallyLine(t metastore.Tally) string {
	return fmt.Sprintf("%d succeeded, %d skipped, %d failed", t.Succeeded, t.Skipped, t.Failed)
}
