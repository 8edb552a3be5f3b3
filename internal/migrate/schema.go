package migrate

import (
	"context"
	"strings"

	"taskmaster-lite/internal/sqldb"

	"github.com/jmoiron/sqlx"
)

// analysisColumns are the prds columns added after the base schema. Each
// is added only when PRAGMA table_info does not list it.
var analysisColumns = []struct {
	name string
	ddl  string
}{
	{"analysis_status", `ALTER TABLE prds ADD COLUMN analysis_status TEXT DEFAULT 'not-analyzed'
		CHECK (analysis_status IN ('not-analyzed', 'analyzing', 'analyzed'))`},
	{"tasks_status", `ALTER TABLE prds ADD COLUMN tasks_status TEXT DEFAULT 'no-tasks'
		CHECK (tasks_status IN ('no-tasks', 'generating', 'generated'))`},
	{"analysis_data", `ALTER TABLE prds ADD COLUMN analysis_data TEXT`},
	{"analyzed_at", `ALTER TABLE prds ADD COLUMN analyzed_at TEXT`},
	{"estimated_effort", `ALTER TABLE prds ADD COLUMN estimated_effort TEXT`},
}

const summaryView = `CREATE VIEW prd_task_summary AS
	SELECT
		p.id AS prd_id,
		p.title AS title,
		p.status AS status,
		p.analysis_status AS analysis_status,
		p.tasks_status AS tasks_status,
		COUNT(t.id) AS total_tasks,
		COALESCE(SUM(CASE WHEN t.status IN ('done', 'cancelled') THEN 1 ELSE 0 END), 0) AS completed_tasks,
		COALESCE(SUM(CASE WHEN t.status IN ('in-progress', 'review') THEN 1 ELSE 0 END), 0) AS in_progress_tasks,
		COALESCE(SUM(CASE WHEN t.status = 'pending' THEN 1 ELSE 0 END), 0) AS pending_tasks,
		COALESCE(SUM(CASE WHEN t.status = 'blocked' THEN 1 ELSE 0 END), 0) AS blocked_tasks
	FROM prds p
	LEFT JOIN tasks t ON t.prd_id = p.id
	GROUP BY p.id`

// SchemaResult lists what MigrateSchema changed.
type SchemaResult struct {
	AddedColumns []string `json:"addedColumns"`
	Backfilled   int64    `json:"backfilled"`
}

// MigrateSchema brings the prds table up to date: it adds any missing
// analysis column, recreates the prd_task_summary view, and backfills NULL
// status columns with their defaults. Running it again changes nothing.
// Any failing statement aborts with a *SchemaError.
func MigrateSchema(ctx context.Context, db *sqlx.DB) (*SchemaResult, error) {
	res := &SchemaResult{AddedColumns: []string{}}
	err := sqldb.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		cols, err := sqldb.TableColumns(ctx, tx, "prds")
		if err != nil {
			return &SchemaError{Statement: "PRAGMA table_info(prds)", Err: err}
		}
		for _, c := range analysisColumns {
			if _, ok := cols[c.name]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, c.ddl); err != nil {
				if strings.Contains(err.Error(), "duplicate column") {
					continue
				}
				return &SchemaError{Statement: c.ddl, Err: err}
			}
			res.AddedColumns = append(res.AddedColumns, c.name)
		}

		for _, stmt := range []string{`DROP VIEW IF EXISTS prd_task_summary`, summaryView} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return &SchemaError{Statement: stmt, Err: err}
			}
		}

		for _, stmt := range []string{
			`UPDATE prds SET analysis_status = 'not-analyzed' WHERE analysis_status IS NULL`,
			`UPDATE prds SET tasks_status = 'no-tasks' WHERE tasks_status IS NULL`,
		} {
			r, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return &SchemaError{Statement: stmt, Err: err}
			}
			n, _ := r.RowsAffected()
			res.Backfilled += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
