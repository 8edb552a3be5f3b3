package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"taskmaster-lite/internal/metastore"

	"github.com/jmoiron/sqlx"
)

// PRDRow is a prds table row including the analysis columns.
type PRDRow struct {
	ID              string         `db:"id"`
	ProjectID       string         `db:"project_id"`
	Title           string         `db:"title"`
	FileName        string         `db:"file_name"`
	FilePath        string         `db:"file_path"`
	FileHash        string         `db:"file_hash"`
	FileSize        int64          `db:"file_size"`
	Status          string         `db:"status"`
	Complexity      sql.NullString `db:"complexity"`
	Priority        sql.NullString `db:"priority"`
	Description     string         `db:"description"`
	Tags            string         `db:"tags"`
	TaskStats       string         `db:"task_stats"`
	LinkedTasks     string         `db:"linked_tasks"`
	Metadata        sql.NullString `db:"metadata"`
	Position        int            `db:"position"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
	AnalysisStatus  sql.NullString `db:"analysis_status"`
	TasksStatus     sql.NullString `db:"tasks_status"`
	AnalysisData    sql.NullString `db:"analysis_data"`
	AnalyzedAt      sql.NullString `db:"analyzed_at"`
	EstimatedEffort sql.NullString `db:"estimated_effort"`
}

// PRDColumns is the select list matching PRDRow.
const PRDColumns = `id, project_id, title, file_name, file_path, file_hash, file_size,
	status, complexity, priority, description, tags, task_stats, linked_tasks,
	metadata, position, created_at, updated_at, analysis_status, tasks_status,
	analysis_data, analyzed_at, estimated_effort`

// EncodePRD converts a PRD into a row for project.
func EncodePRD(p *metastore.PRD, projectID string, position int) (PRDRow, error) {
	tags, err := marshalOr(p.Tags, "[]")
	if err != nil {
		return PRDRow{}, fmt.Errorf("prd %s tags: %w", p.ID, err)
	}
	stats, err := json.Marshal(p.TaskStats)
	if err != nil {
		return PRDRow{}, fmt.Errorf("prd %s task stats: %w", p.ID, err)
	}
	linked, err := marshalOr(p.LinkedTasks, "[]")
	if err != nil {
		return PRDRow{}, fmt.Errorf("prd %s linked tasks: %w", p.ID, err)
	}
	row := PRDRow{
		ID:              p.ID,
		ProjectID:       projectID,
		Title:           p.Title,
		FileName:        p.FileName,
		FilePath:        p.FilePath,
		FileHash:        p.FileHash,
		FileSize:        p.FileSize,
		Status:          string(p.Status),
		Complexity:      nullString(string(p.Complexity)),
		Priority:        nullString(string(p.Priority)),
		Description:     p.Description,
		Tags:            tags,
		TaskStats:       string(stats),
		LinkedTasks:     linked,
		Position:        position,
		CreatedAt:       formatOptional(p.CreatedDate),
		UpdatedAt:       formatOptional(p.LastModified),
		AnalysisStatus:  nullString(string(p.AnalysisStatus)),
		TasksStatus:     nullString(string(p.TasksStatus)),
		AnalysisData:    nullString(string(p.AnalysisData)),
		EstimatedEffort: nullString(p.EstimatedEffort),
	}
	if len(p.Metadata) > 0 {
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return PRDRow{}, fmt.Errorf("prd %s metadata: %w", p.ID, err)
		}
		row.Metadata = nullString(string(meta))
	}
	if p.AnalyzedAt != nil {
		row.AnalyzedAt = nullString(FormatTime(*p.AnalyzedAt))
	}
	return row, nil
}

// Decode converts the row back into a PRD.
func (r PRDRow) Decode() (*metastore.PRD, error) {
	p := &metastore.PRD{
		ID:              r.ID,
		Title:           r.Title,
		FileName:        r.FileName,
		FilePath:        r.FilePath,
		FileHash:        r.FileHash,
		FileSize:        r.FileSize,
		Status:          metastore.PRDStatus(r.Status),
		Complexity:      metastore.Complexity(r.Complexity.String),
		Priority:        metastore.Priority(r.Priority.String),
		Description:     r.Description,
		AnalysisStatus:  metastore.AnalysisStatus(r.AnalysisStatus.String),
		TasksStatus:     metastore.TasksStatus(r.TasksStatus.String),
		EstimatedEffort: r.EstimatedEffort.String,
		LinkedTasks:     []metastore.TaskID{},
	}
	var err error
	if p.CreatedDate, err = ParseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("prd %s created_at: %w", r.ID, err)
	}
	if p.LastModified, err = ParseTime(r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("prd %s updated_at: %w", r.ID, err)
	}
	if err := unmarshalIfSet(r.Tags, &p.Tags); err != nil {
		return nil, fmt.Errorf("prd %s tags: %w", r.ID, err)
	}
	if err := unmarshalIfSet(r.TaskStats, &p.TaskStats); err != nil {
		return nil, fmt.Errorf("prd %s task_stats: %w", r.ID, err)
	}
	if err := unmarshalIfSet(r.LinkedTasks, &p.LinkedTasks); err != nil {
		return nil, fmt.Errorf("prd %s linked_tasks: %w", r.ID, err)
	}
	if err := unmarshalIfSet(r.Metadata.String, &p.Metadata); err != nil {
		return nil, fmt.Errorf("prd %s metadata: %w", r.ID, err)
	}
	if r.AnalysisData.Valid && r.AnalysisData.String != "" {
		p.AnalysisData = json.RawMessage(r.AnalysisData.String)
	}
	if r.AnalyzedAt.Valid && r.AnalyzedAt.String != "" {
		t, err := ParseTime(r.AnalyzedAt.String)
		if err != nil {
			return nil, fmt.Errorf("prd %s analyzed_at: %w", r.ID, err)
		}
		p.AnalyzedAt = &t
	}
	if len(p.Tags) == 0 {
		p.Tags = nil
	}
	return p, nil
}

// UpsertPRD inserts or replaces a prds row by id.
func UpsertPRD(ctx context.Context, db sqlx.ExtContext, row PRDRow) error {
	_, err := sqlx.NamedExecContext(ctx, db, `INSERT INTO prds (`+PRDColumns+`)
		VALUES (:id, :project_id, :title, :file_name, :file_path, :file_hash, :file_size,
			:status, :complexity, :priority, :description, :tags, :task_stats, :linked_tasks,
			:metadata, :position, :created_at, :updated_at, :analysis_status, :tasks_status,
			:analysis_data, :analyzed_at, :estimated_effort)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id, title = excluded.title,
			file_name = excluded.file_name, file_path = excluded.file_path,
			file_hash = excluded.file_hash, file_size = excluded.file_size,
			status = excluded.status, complexity = excluded.complexity,
			priority = excluded.priority, description = excluded.description,
			tags = excluded.tags, task_stats = excluded.task_stats,
			linked_tasks = excluded.linked_tasks, metadata = excluded.metadata,
			position = excluded.position, created_at = excluded.created_at,
			updated_at = excluded.updated_at, analysis_status = excluded.analysis_status,
			tasks_status = excluded.tasks_status, analysis_data = excluded.analysis_data,
			analyzed_at = excluded.analyzed_at, estimated_effort = excluded.estimated_effort`, row)
	if err != nil {
		return fmt.Errorf("upsert prd %s: %w", row.ID, err)
	}
	return nil
}

// TaskMeta is the JSON blob stored in tasks.metadata. It carries the
// fields the relational columns have no place for, including the task's
// original identifier from the JSON index.
type TaskMeta struct {
	OriginalID   metastore.TaskID     `json:"original_id"`
	Dependencies []metastore.TaskID   `json:"dependencies,omitempty"`
	PRDSource    *metastore.PRDSource `json:"prd_source,omitempty"`
	Subtasks     []*metastore.Task    `json:"subtasks,omitempty"`
}

// TaskRow is a tasks table row.
type TaskRow struct {
	ID              int64           `db:"id"`
	ProjectID       string          `db:"project_id"`
	PRDID           sql.NullString  `db:"prd_id"`
	ParentTaskID    sql.NullInt64   `db:"parent_task_id"`
	Title           string          `db:"title"`
	Description     string          `db:"description"`
	Details         string          `db:"details"`
	TestStrategy    string          `db:"test_strategy"`
	Status          string          `db:"status"`
	Priority        sql.NullString  `db:"priority"`
	ComplexityScore sql.NullFloat64 `db:"complexity_score"`
	Metadata        string          `db:"metadata"`
	Position        int             `db:"position"`
}

// TaskColumns is the select list matching TaskRow.
const TaskColumns = `id, project_id, prd_id, parent_task_id, title, description, details,
	test_strategy, status, priority, complexity_score, metadata, position`

// EncodeTask converts a task into a row for project. The prd_id column is
// filled from prdSource.prdId by InsertTask only when that PRD exists.
func EncodeTask(t *metastore.Task, projectID string, position int) (TaskRow, error) {
	meta, err := json.Marshal(TaskMeta{
		OriginalID:   t.ID,
		Dependencies: t.Dependencies,
		PRDSource:    t.PRDSource,
		Subtasks:     t.Subtasks,
	})
	if err != nil {
		return TaskRow{}, fmt.Errorf("task %s metadata: %w", t.ID, err)
	}
	status := string(t.Status)
	if status == "" {
		status = string(metastore.TaskPending)
	}
	row := TaskRow{
		ProjectID:    projectID,
		Title:        t.Title,
		Description:  t.Description,
		Details:      t.Details,
		TestStrategy: t.TestStrategy,
		Status:       status,
		Priority:     nullString(string(t.Priority)),
		Metadata:     string(meta),
		Position:     position,
	}
	if t.PRDSource != nil {
		row.PRDID = nullString(t.PRDSource.PRDID)
	}
	if t.ComplexityScore != nil {
		row.ComplexityScore = sql.NullFloat64{Float64: *t.ComplexityScore, Valid: true}
	}
	return row, nil
}

// Decode converts the row back into a task using the original identifier
// from the metadata blob.
func (r TaskRow) Decode() (*metastore.Task, error) {
	var meta TaskMeta
	if err := unmarshalIfSet(r.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("task row %d metadata: %w", r.ID, err)
	}
	id := meta.OriginalID
	if id == "" {
		id = metastore.TaskID(fmt.Sprint(r.ID))
	}
	t := &metastore.Task{
		ID:           id,
		Title:        r.Title,
		Description:  r.Description,
		Details:      r.Details,
		TestStrategy: r.TestStrategy,
		Status:       metastore.TaskStatus(r.Status),
		Priority:     metastore.Priority(r.Priority.String),
		Dependencies: meta.Dependencies,
		PRDSource:    meta.PRDSource,
		Subtasks:     meta.Subtasks,
	}
	if r.ComplexityScore.Valid {
		score := r.ComplexityScore.Float64
		t.ComplexityScore = &score
	}
	return t, nil
}

// InsertTask inserts a task row and returns its database id. A prd_id
// naming a PRD that is not in the database is stored as NULL.
func InsertTask(ctx context.Context, db sqlx.ExtContext, row TaskRow) (int64, error) {
	res, err := sqlx.NamedExecContext(ctx, db, `INSERT INTO tasks (project_id, prd_id, parent_task_id,
			title, description, details, test_strategy, status, priority, complexity_score,
			metadata, position)
		VALUES (:project_id, (SELECT id FROM prds WHERE id = :prd_id), :parent_task_id,
			:title, :description, :details, :test_strategy, :status, :priority, :complexity_score,
			:metadata, :position)`, row)
	if err != nil {
		return 0, fmt.Errorf("insert task %q: %w", row.Title, err)
	}
	return res.LastInsertId()
}

// TaskExists reports whether a task with the given original identifier is
// stored for project.
func TaskExists(ctx context.Context, db sqlx.QueryerContext, projectID string, id metastore.TaskID) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, db, &n, `SELECT COUNT(*) FROM tasks
		WHERE project_id = ? AND CAST(json_extract(metadata, '$.original_id') AS TEXT) = ?`,
		projectID, id.String())
	if err != nil {
		return false, fmt.Errorf("lookup task %s: %w", id, err)
	}
	return n > 0, nil
}

// PRDExists reports whether a PRD row with id exists.
func PRDExists(ctx context.Context, db sqlx.QueryerContext, id string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, db, &n, `SELECT COUNT(*) FROM prds WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("lookup prd %s: %w", id, err)
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return FormatTime(t)
}

func marshalOr[T any](v []T, empty string) (string, error) {
	if len(v) == 0 {
		return empty, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalIfSet(s string, v any) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
