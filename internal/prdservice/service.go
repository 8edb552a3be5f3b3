// Package prdservice is the entry point for PRD maintenance: integrity
// checks with optional repair, statistics, file organization, status
// sync, version history and the PRD lifecycle. It loads the indices from a
// metastore.Store, runs the pure checkers and the mutating engines over
// them, and saves the result.
package prdservice

import (
	"context"
	"errors"
	"time"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/configservice"
	"taskmaster-lite/internal/fsutil"
	kvfs "taskmaster-lite/internal/kvstorage/filesystem"
	"taskmaster-lite/internal/logging"
	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/versions"

	"github.com/charmbracelet/log"
)

// ErrVersionsDisabled is returned by version queries when the service has
// no tracker.
var ErrVersionsDisabled = errors.New("version tracking is disabled")

// Option configures a Service.
type Option func(*Service)

// WithLayout overrides the layout resolved from the project root.
func WithLayout(l config.Layout) Option {
	return func(s *Service) {
		s.layout = l
		s.layoutSet = true
	}
}

// WithLogger sets the logger shared with every engine.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithTracker replaces the default file-backed version tracker. A nil
// tracker disables version history.
func WithTracker(t *versions.Tracker) Option {
	return func(s *Service) {
		s.tracker = t
		s.trackerSet = true
	}
}

// WithAuthor names the actor recorded on new versions.
func WithAuthor(author string) Option {
	return func(s *Service) {
		s.author = author
	}
}

// Service runs PRD maintenance operations for one project.
type Service struct {
	root    string
	layout  config.Layout
	fs      fsutil.FS
	store   metastore.Store
	tracker *versions.Tracker
	author  string
	logger  *log.Logger
	now     func() time.Time

	layoutSet  bool
	trackerSet bool
}

// New returns a Service for the project at root, persisting through
// store. Unless overridden, the layout is resolved from what exists under
// root and versions are kept in .taskmaster/versions.
func New(root string, store metastore.Store, opts ...Option) *Service {
	s := &Service{root: root, store: store, logger: logging.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if !s.layoutSet {
		s.layout = configservice.ResolveLayout(root)
	}
	s.root = s.layout.Root
	s.fs = fsutil.New(s.layout.Root)
	if !s.trackerSet {
		if kv, err := kvfs.New(s.fs, s.layout.DataDir, versions.TableName); err == nil {
			s.tracker = versions.New(kv, versions.WithLogger(s.logger), versions.WithClock(s.now))
		}
	}
	return s
}

// Layout returns the layout the service operates on.
func (s *Service) Layout() config.Layout {
	return s.layout
}

// Store returns the metadata store.
func (s *Service) Store() metastore.Store {
	return s.store
}

// Init creates the project's directories and storage.
func (s *Service) Init(ctx context.Context) error {
	if err := s.store.Init(ctx); err != nil {
		return err
	}
	dirs := []string{s.layout.TemplatesDir, s.layout.ReportsDir}
	for _, status := range metastore.PRDStatuses {
		dirs = append(dirs, s.layout.StatusDir(status))
	}
	for _, dir := range dirs {
		if err := s.fs.MkdirAll(dir); err != nil {
			return &metastore.IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	if s.tracker != nil {
		if err := s.tracker.Init(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context) (*metastore.PRDIndex, *metastore.TaskIndex, error) {
	prds, err := s.store.LoadPRDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := s.store.LoadTasks(ctx)
	if err != nil {
		return nil, nil, err
	}
	return prds, tasks, nil
}

// savePRDs persists prds even when ctx has been cancelled, so that work
// finished before cancellation is recorded.
func (s *Service) savePRDs(ctx context.Context, prds *metastore.PRDIndex) error {
	return s.store.SavePRDs(context.WithoutCancel(ctx), prds)
}

// track records a version of p. Failures are logged; version history never
// blocks the operation that triggered it.
func (s *Service) track(ctx context.Context, p *metastore.PRD, change versions.ChangeType) {
	if s.tracker == nil {
		return
	}
	if _, err := s.tracker.Track(context.WithoutCancel(ctx), p, change, s.author); err != nil {
		s.logger.Warn("recording version failed", "prd", p.ID, "err", err)
	}
}
