package migrate

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"

	"taskmaster-lite/internal/configservice"
	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/logging"
	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/metastore/filesystem"
	"taskmaster-lite/internal/sqldb"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
)

// Option configures a migration run.
type Option func(*options)

type options struct {
	logger *log.Logger
	now    func() time.Time
}

// WithLogger sets the logger migrations report progress to.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock overrides the clock used to name backups.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: logging.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result summarizes a JSON to database migration.
type Result struct {
	TasksMigrated int                    `json:"tasksMigrated"`
	TasksSkipped  int                    `json:"tasksSkipped"`
	PRDsMigrated  int                    `json:"prdsMigrated"`
	PRDsSkipped   int                    `json:"prdsSkipped"`
	Failed        int                    `json:"failed"`
	Errors        []*MigrationError      `json:"-"`
	Items         []metastore.ItemResult `json:"items"`
	BackupPath    string                 `json:"backupPath,omitempty"`
}

// Migrated returns the number of records inserted.
func (r *Result) Migrated() int {
	return r.TasksMigrated + r.PRDsMigrated
}

func (r *Result) fail(kind, id string, err error) {
	me := &MigrationError{Kind: kind, ID: id, Err: err}
	r.Failed++
	r.Errors = append(r.Errors, me)
	r.Items = append(r.Items, metastore.ItemResult{
		ID: id, Kind: kind, Outcome: metastore.OutcomeFailed, Message: err.Error(), Err: me,
	})
}

// MigrateJSONToDatabase copies the PRD and task indices of the project at
// root into db. Records already present (PRDs by id, tasks by the original
// identifier kept in their metadata) are skipped, so running it twice
// inserts nothing the second time. A failing record is counted and the
// batch continues. When anything was inserted, a timestamped backup of the
// task index is written next to it.
//
// Cancellation is checked between records; work done so far stays in the
// database and the context error is returned with the partial result.
func MigrateJSONToDatabase(ctx context.Context, root string, db *sqlx.DB, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	layout := configservice.ResolveLayout(root)
	fsys := fsutil.New(layout.Root)
	store := filesystem.New(fsys, layout, filesystem.WithLogger(o.logger))

	prds, err := store.LoadPRDs(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := store.LoadTasks(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := MigrateSchema(ctx, db); err != nil {
		return nil, err
	}
	projectID, err := sqldb.EnsureProject(ctx, db, filepath.Base(layout.Root), layout.Root)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	// PRDs go first so tasks can reference them through prd_id.
	for i, p := range prds.PRDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		exists, err := sqldb.PRDExists(ctx, db, p.ID)
		if err != nil {
			res.fail("prd", p.ID, err)
			continue
		}
		if exists {
			res.PRDsSkipped++
			res.Items = append(res.Items, metastore.ItemResult{ID: p.ID, Kind: "prd", Outcome: metastore.OutcomeSkipped, Message: "already migrated"})
			continue
		}
		row, err := sqldb.EncodePRD(p, projectID, i)
		if err == nil {
			err = sqldb.UpsertPRD(ctx, db, row)
		}
		if err != nil {
			o.logger.Warn("prd migration failed", "prd", p.ID, "err", err)
			res.fail("prd", p.ID, err)
			continue
		}
		res.PRDsMigrated++
		res.Items = append(res.Items, metastore.ItemResult{ID: p.ID, Kind: "prd", Outcome: metastore.OutcomeApplied})
	}

	for i, t := range tasks.Tasks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		id := t.ID.String()
		exists, err := sqldb.TaskExists(ctx, db, projectID, t.ID)
		if err != nil {
			res.fail("task", id, err)
			continue
		}
		if exists {
			res.TasksSkipped++
			res.Items = append(res.Items, metastore.ItemResult{ID: id, Kind: "task", Outcome: metastore.OutcomeSkipped, Message: "already migrated"})
			continue
		}
		row, err := sqldb.EncodeTask(t, projectID, i)
		if err == nil {
			_, err = sqldb.InsertTask(ctx, db, row)
		}
		if err != nil {
			o.logger.Warn("task migration failed", "task", id, "err", err)
			res.fail("task", id, err)
			continue
		}
		res.TasksMigrated++
		res.Items = append(res.Items, metastore.ItemResult{ID: id, Kind: "task", Outcome: metastore.OutcomeApplied})
	}

	if res.Migrated() > 0 && fsys.Exists(layout.TaskIndex) {
		backup := backupName(layout.TaskIndex, o.now())
		if err := fsys.Copy(layout.TaskIndex, backup); err != nil {
			return res, &metastore.IOError{Op: "backup", Path: backup, Err: err}
		}
		res.BackupPath = backup
	}

	o.logger.Info("migrated indices to database",
		"tasks", res.TasksMigrated, "prds", res.PRDsMigrated,
		"skipped", res.TasksSkipped+res.PRDsSkipped, "failed", res.Failed)
	return res, nil
}

// backupName returns "tasks.backup-20260102T030405Z.json" beside rel.
func backupName(rel string, now time.Time) string {
	ext := path.Ext(rel)
	base := strings.TrimSuffix(rel, ext)
	return base + ".backup-" + now.UTC().Format("20060102T150405Z") + ext
}
