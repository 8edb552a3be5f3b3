// Package organizer keeps PRD files in the directory matching their
// status. Moves always happen before the index recording them is saved;
// the caller persists the repointed records.
package organizer

import (
	"context"
	"errors"
	"fmt"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/integrity"
	"taskmaster-lite/internal/logging"
	"taskmaster-lite/internal/metastore"

	"github.com/charmbracelet/log"
)

// ErrFileNotFound is returned when a PRD's file cannot be located.
var ErrFileNotFound = errors.New("prd file not found")

// Option configures an Organizer.
type Option func(*Organizer)

// WithLogger sets the logger moves are reported to.
func WithLogger(l *log.Logger) Option {
	return func(o *Organizer) {
		o.logger = l
	}
}

// Organizer moves PRD files into their status directories.
type Organizer struct {
	fs     fsutil.FS
	layout config.Layout
	logger *log.Logger
}

// New returns an Organizer for the project behind fsys.
func New(fsys fsutil.FS, layout config.Layout, opts ...Option) *Organizer {
	o := &Organizer{fs: fsys, layout: layout, logger: logging.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Options controls OrganizeAll.
type Options struct {
	DryRun bool
}

// Detail describes what happened to one PRD.
type Detail struct {
	PRDID   string            `json:"prdId"`
	From    string            `json:"from,omitempty"`
	To      string            `json:"to,omitempty"`
	Outcome metastore.Outcome `json:"outcome"`
	Message string            `json:"message,omitempty"`
	Err     error             `json:"-"`
}

// Result summarizes an OrganizeAll run. A dry run reports the same counts
// a real run would produce.
type Result struct {
	Moved          int      `json:"moved"`
	AlreadyCorrect int      `json:"alreadyCorrect"`
	Errors         int      `json:"errors"`
	DryRun         bool     `json:"dryRun"`
	Details        []Detail `json:"details"`
}

// Changed reports whether any record was repointed.
func (r *Result) Changed() bool {
	return !r.DryRun && r.Moved > 0
}

// OrganizeAll moves every PRD file that is outside its status directory
// and repoints the record. A record whose path is stale while the file is
// already in place is repointed without a move. A destination that is
// already taken is reported as an error and left alone.
//
// Cancellation is checked between PRDs. The partial result is returned
// with the context error; records moved so far are already repointed in
// prds.
func (o *Organizer) OrganizeAll(ctx context.Context, prds *metastore.PRDIndex, opts Options) (*Result, error) {
	res := &Result{DryRun: opts.DryRun, Details: []Detail{}}
	for _, p := range prds.PRDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d := o.organize(p, opts.DryRun)
		switch d.Outcome {
		case metastore.OutcomeApplied:
			res.Moved++
		case metastore.OutcomeSkipped:
			res.AlreadyCorrect++
		case metastore.OutcomeFailed:
			res.Errors++
		}
		res.Details = append(res.Details, d)
	}
	return res, nil
}

func (o *Organizer) organize(p *metastore.PRD, dryRun bool) Detail {
	d := Detail{PRDID: p.ID}
	current, ok := integrity.ResolveFile(o.fs, o.layout, p)
	if !ok {
		d.Outcome = metastore.OutcomeFailed
		d.Err = fmt.Errorf("prd %s: %w", p.ID, ErrFileNotFound)
		d.Message = d.Err.Error()
		return d
	}
	expected := o.layout.ExpectedPath(p)
	d.From, d.To = current, expected

	if current == expected && fsutil.Clean(p.FilePath) == expected {
		d.Outcome = metastore.OutcomeSkipped
		d.Message = "already in place"
		return d
	}
	if current != expected && o.fs.Exists(expected) {
		d.Outcome = metastore.OutcomeFailed
		d.Err = fmt.Errorf("moving %s to %s: %w", current, expected, fsutil.ErrCollision)
		d.Message = d.Err.Error()
		return d
	}
	if dryRun {
		d.Outcome = metastore.OutcomeApplied
		d.Message = "would move"
		if current == expected {
			d.Message = "would repoint"
		}
		return d
	}

	if err := Relocate(o.fs, o.layout, p, current); err != nil {
		o.logger.Warn("move failed", "prd", p.ID, "from", current, "to", expected, "err", err)
		d.Outcome = metastore.OutcomeFailed
		d.Err = err
		d.Message = err.Error()
		return d
	}
	o.logger.Info("organized prd file", "prd", p.ID, "from", current, "to", expected)
	d.Outcome = metastore.OutcomeApplied
	d.Message = "moved"
	if current == expected {
		d.Message = "repointed"
	}
	return d
}

// Relocate moves the file at from into p's status directory, creating it
// if needed, and points p at the new location. It refuses to replace an
// existing file (fsutil.ErrCollision). When from already is the expected
// path only the record changes.
func Relocate(fsys fsutil.FS, layout config.Layout, p *metastore.PRD, from string) error {
	to := layout.ExpectedPath(p)
	if from != to {
		if err := fsys.Move(from, to); err != nil {
			return fmt.Errorf("moving %s to %s: %w", from, to, err)
		}
	}
	p.FilePath = to
	return nil
}
