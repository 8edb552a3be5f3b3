package prdstats

import (
	"context"
	"fmt"
	"time"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/integrity"
	"taskmaster-lite/internal/logging"
	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/organizer"

	"github.com/charmbracelet/log"
)

// SyncOptions controls Sync.
type SyncOptions struct {
	// Force rewrites every PRD, archived ones included, even when the
	// derived status equals the current one.
	Force bool
	// DryRun reports would-be changes without touching records or files.
	DryRun bool
}

// SyncDetail describes the decision for one PRD.
type SyncDetail struct {
	PRDID   string              `json:"prdId"`
	From    metastore.PRDStatus `json:"from"`
	To      metastore.PRDStatus `json:"to,omitempty"`
	Outcome metastore.Outcome   `json:"outcome"`
	Message string              `json:"message,omitempty"`
	Err     error               `json:"-"`
}

// SyncResult summarizes a Sync run.
type SyncResult struct {
	Updated   int          `json:"updated"`
	Unchanged int          `json:"unchanged"`
	Errors    int          `json:"errors"`
	DryRun    bool         `json:"dryRun"`
	Details   []SyncDetail `json:"details"`

	// Changed is set when any record was modified and must be saved.
	Changed bool `json:"-"`
}

// SyncOption configures a Syncer.
type SyncOption func(*Syncer)

// WithLogger sets the logger status changes are reported to.
func WithLogger(l *log.Logger) SyncOption {
	return func(s *Syncer) {
		s.logger = l
	}
}

// WithClock overrides the clock used for lastModified.
func WithClock(now func() time.Time) SyncOption {
	return func(s *Syncer) {
		s.now = now
	}
}

// Syncer applies derived statuses to PRDs.
type Syncer struct {
	fs     fsutil.FS
	layout config.Layout
	logger *log.Logger
	now    func() time.Time
}

// NewSyncer returns a Syncer for the project behind fsys.
func NewSyncer(fsys fsutil.FS, layout config.Layout, opts ...SyncOption) *Syncer {
	s := &Syncer{fs: fsys, layout: layout, logger: logging.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync derives each PRD's status from its linked tasks and applies it when
// it differs from the current one (or always, with Force). Archived PRDs
// are left alone unless forced. A status change moves the PRD's file into
// the new status directory first; if the move is rejected the PRD keeps
// its old status. Statistics of every visited PRD are refreshed.
//
// prds is modified in place; the caller saves it when the result reports
// Changed. Cancellation is checked between PRDs.
func (s *Syncer) Sync(ctx context.Context, prds *metastore.PRDIndex, tasks *metastore.TaskIndex, opts SyncOptions) (*SyncResult, error) {
	res := &SyncResult{DryRun: opts.DryRun, Details: []SyncDetail{}}
	for _, p := range prds.PRDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d := s.sync(p, tasks, opts, res)
		switch d.Outcome {
		case metastore.OutcomeApplied:
			res.Updated++
		case metastore.OutcomeFailed:
			res.Errors++
		default:
			res.Unchanged++
		}
		res.Details = append(res.Details, d)
	}
	return res, nil
}

func (s *Syncer) sync(p *metastore.PRD, tasks *metastore.TaskIndex, opts SyncOptions, res *SyncResult) SyncDetail {
	d := SyncDetail{PRDID: p.ID, From: p.Status, Outcome: metastore.OutcomeSkipped}
	if p.Status == metastore.PRDArchived && !opts.Force {
		d.Message = "archived"
		return d
	}

	stats := Compute(p, tasks)
	if !opts.DryRun && stats != p.TaskStats {
		p.TaskStats = stats
		res.Changed = true
	}
	status, ok := DeriveStatus(stats)
	if !ok {
		d.Message = "no linked tasks"
		return d
	}
	d.To = status
	if status == p.Status && !opts.Force {
		d.Message = "up to date"
		return d
	}
	if opts.DryRun {
		if status != p.Status {
			if err := s.checkMove(p, status); err != nil {
				d.Outcome = metastore.OutcomeFailed
				d.Err = err
				d.Message = err.Error()
				return d
			}
		}
		d.Outcome = metastore.OutcomeApplied
		d.Message = fmt.Sprintf("would change %s to %s", p.Status, status)
		return d
	}

	if status != p.Status {
		if err := s.move(p, status); err != nil {
			s.logger.Warn("status change rejected", "prd", p.ID, "from", p.Status, "to", status, "err", err)
			d.Outcome = metastore.OutcomeFailed
			d.Err = err
			d.Message = err.Error()
			return d
		}
	}
	p.Status = status
	p.LastModified = s.now().UTC()
	res.Changed = true
	s.logger.Info("updated prd status", "prd", p.ID, "from", d.From, "to", status)
	d.Outcome = metastore.OutcomeApplied
	d.Message = fmt.Sprintf("changed %s to %s", d.From, status)
	return d
}

// checkMove reports the collision move would hit when filing p under
// status, without touching anything.
func (s *Syncer) checkMove(p *metastore.PRD, status metastore.PRDStatus) error {
	from, ok := integrity.ResolveFile(s.fs, s.layout, p)
	if !ok {
		return nil
	}
	target := *p
	target.Status = status
	to := s.layout.ExpectedPath(&target)
	if from != to && s.fs.Exists(to) {
		return fmt.Errorf("moving %s to %s: %w", from, to, fsutil.ErrCollision)
	}
	return nil
}

// move files p under status. A PRD whose file cannot be found still
// changes status; the next integrity check reports the missing file.
func (s *Syncer) move(p *metastore.PRD, status metastore.PRDStatus) error {
	from, ok := integrity.ResolveFile(s.fs, s.layout, p)
	if !ok {
		s.logger.Warn("prd file not found, status changes without a move", "prd", p.ID, "path", p.FilePath)
		return nil
	}
	target := *p
	target.Status = status
	if err := organizer.Relocate(s.fs, s.layout, &target, from); err != nil {
		return err
	}
	p.FilePath = target.FilePath
	return nil
}
