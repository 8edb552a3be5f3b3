// Package autofix repairs the inconsistencies the integrity checks report
// when a repair is unambiguous. Anything that would need a human decision
// (a missing file, a link to a task that does not exist) is reported as
// skipped and left alone.
package autofix

import (
	"context"
	"fmt"
	"sort"
	"time"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/integrity"
	"taskmaster-lite/internal/logging"
	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/versions"

	"github.com/charmbracelet/log"
)

// Detail records what Apply did with one issue.
type Detail struct {
	Type    integrity.IssueType `json:"type"`
	PRDID   string              `json:"prdId,omitempty"`
	TaskID  metastore.TaskID    `json:"taskId,omitempty"`
	Outcome metastore.Outcome   `json:"outcome"`
	Message string              `json:"message"`
	Err     error               `json:"-"`
}

// Result summarizes an Apply run.
type Result struct {
	Applied    int      `json:"applied"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Details    []Detail `json:"details"`
	PRDsSaved  bool     `json:"prdsSaved"`
	TasksSaved bool     `json:"tasksSaved"`
}

func (r *Result) add(d Detail) {
	switch d.Outcome {
	case metastore.OutcomeApplied:
		r.Applied++
	case metastore.OutcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
	r.Details = append(r.Details, d)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger repairs are reported to.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock overrides the clock used for lastModified.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTracker records a version for every restamped or moved PRD.
func WithTracker(t *versions.Tracker, author string) Option {
	return func(e *Engine) {
		e.tracker = t
		e.author = author
	}
}

// Engine applies repairs and persists them through a metastore.Store.
type Engine struct {
	fs      fsutil.FS
	layout  config.Layout
	store   metastore.Store
	tracker *versions.Tracker
	author  string
	logger  *log.Logger
	now     func() time.Time
}

// New returns an Engine for the project behind fsys.
func New(fsys fsutil.FS, layout config.Layout, store metastore.Store, opts ...Option) *Engine {
	e := &Engine{fs: fsys, layout: layout, store: store, logger: logging.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run holds the state of one Apply call.
type run struct {
	prds         *metastore.PRDIndex
	tasks        *metastore.TaskIndex
	res          *Result
	restamped    map[string]bool
	changed      map[string]versions.ChangeType
	prdsTouched  bool
	tasksTouched bool
}

// Apply repairs issues against prds and tasks, which are modified in
// place. Fixes are applied in a fixed order: file metadata and location
// first, then task back-references, then PRD link lists. Each link fix is
// re-validated against the current state so that an earlier fix can
// resolve a later issue. Indices are saved once at the end, and only the
// ones that changed.
//
// Cancellation is checked between issues; repairs made so far are saved
// before the context error is returned.
func (e *Engine) Apply(ctx context.Context, issues []integrity.Issue, prds *metastore.PRDIndex, tasks *metastore.TaskIndex) (*Result, error) {
	r := &run{
		prds:      prds,
		tasks:     tasks,
		res:       &Result{Details: []Detail{}},
		restamped: make(map[string]bool),
		changed:   make(map[string]versions.ChangeType),
	}

	ordered := make([]integrity.Issue, len(issues))
	copy(ordered, issues)
	sort.SliceStable(ordered, func(i, j int) bool {
		return phase(ordered[i].Type) < phase(ordered[j].Type)
	})

	var ctxErr error
	for _, is := range ordered {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		r.res.add(e.fix(r, is))
	}

	if err := e.persist(ctx, r); err != nil {
		return r.res, err
	}
	return r.res, ctxErr
}

func phase(t integrity.IssueType) int {
	switch t {
	case integrity.IssueHashMismatch, integrity.IssueSizeMismatch, integrity.IssueWrongDirectory:
		return 0
	case integrity.IssuePRDSourceMismatch:
		return 1
	case integrity.IssueMissingTaskLink:
		return 2
	default:
		return 3
	}
}

func (e *Engine) fix(r *run, is integrity.Issue) Detail {
	d := Detail{Type: is.Type, PRDID: is.PRDID, TaskID: is.TaskID}
	switch is.Type {
	case integrity.IssueHashMismatch, integrity.IssueSizeMismatch:
		return e.restamp(r, is, d)
	case integrity.IssueWrongDirectory:
		return e.relocate(r, is, d)
	case integrity.IssuePRDSourceMismatch:
		return e.fixSource(r, is, d)
	case integrity.IssueMissingTaskLink:
		return e.fixBackLink(r, is, d)
	default:
		d.Outcome = metastore.OutcomeSkipped
		d.Message = fmt.Sprintf("%s needs manual attention", is.Type)
		return d
	}
}

func (e *Engine) persist(ctx context.Context, r *run) error {
	if r.res.Applied == 0 {
		return nil
	}
	// Saving must not be skipped because the caller's context ended.
	ctx = context.WithoutCancel(ctx)
	if r.prdsTouched {
		if err := e.store.SavePRDs(ctx, r.prds); err != nil {
			e.logger.Error("saving repaired prds failed", "err", err)
			return fmt.Errorf("saving repaired prds: %w", err)
		}
		r.res.PRDsSaved = true
	}
	if r.tasksTouched {
		if err := e.store.SaveTasks(ctx, r.tasks); err != nil {
			e.logger.Error("saving repaired tasks failed", "err", err)
			return fmt.Errorf("saving repaired tasks: %w", err)
		}
		r.res.TasksSaved = true
	}
	if e.tracker == nil {
		return nil
	}
	ids := make([]string, 0, len(r.changed))
	for id := range r.changed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := r.prds.FindByID(id)
		if p == nil {
			continue
		}
		if _, err := e.tracker.Track(ctx, p, r.changed[id], e.author); err != nil {
			e.logger.Warn("recording version failed", "prd", id, "err", err)
		}
	}
	return nil
}

func skipped(d Detail, msg string) Detail {
	d.Outcome = metastore.OutcomeSkipped
	d.Message = msg
	return d
}

func failed(d Detail, err error) Detail {
	d.Outcome = metastore.OutcomeFailed
	d.Err = err
	d.Message = err.Error()
	return d
}

func applied(d Detail, msg string) Detail {
	d.Outcome = metastore.OutcomeApplied
	d.Message = msg
	return d
}
