package prdservice

import (
	"context"
	"fmt"

	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/organizer"
	"taskmaster-lite/internal/prdstats"
	"taskmaster-lite/internal/versions"
)

// StatsResult is the outcome of UpdatePrdTaskStatistics.
type StatsResult struct {
	Success bool                 `json:"success"`
	Data    *metastore.TaskStats `json:"data,omitempty"`
	Error   string               `json:"error,omitempty"`
	Err     error                `json:"-"`
}

// UpdatePrdTaskStatistics recomputes the task statistics of one PRD from
// the task index and saves them when they changed. It never changes the
// PRD's status.
func (s *Service) UpdatePrdTaskStatistics(ctx context.Context, prdID string) StatsResult {
	fail := func(err error) StatsResult {
		return StatsResult{Error: err.Error(), Err: err}
	}
	prds, tasks, err := s.load(ctx)
	if err != nil {
		return fail(err)
	}
	p := prds.FindByID(prdID)
	if p == nil {
		return fail(fmt.Errorf("prd %s: %w", prdID, metastore.ErrNotFound))
	}
	if prdstats.Refresh(p, tasks) {
		p.LastModified = s.now().UTC()
		if err := s.savePRDs(ctx, prds); err != nil {
			return fail(err)
		}
		s.logger.Info("updated prd statistics", "prd", p.ID, "completion", p.TaskStats.CompletionPercentage)
	}
	stats := p.TaskStats
	return StatsResult{Success: true, Data: &stats}
}

// RefreshAllStatistics recomputes the statistics of every PRD and returns
// how many changed.
func (s *Service) RefreshAllStatistics(ctx context.Context) (int, error) {
	prds, tasks, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, p := range prds.PRDs {
		if prdstats.Refresh(p, tasks) {
			p.LastModified = s.now().UTC()
			changed++
		}
	}
	if changed > 0 {
		if err := s.savePRDs(ctx, prds); err != nil {
			return 0, err
		}
	}
	return changed, nil
}

// Statistics aggregates the PRD index.
func (s *Service) Statistics(ctx context.Context) (metastore.Aggregate, error) {
	prds, err := s.store.LoadPRDs(ctx)
	if err != nil {
		return metastore.Aggregate{}, err
	}
	return prds.AggregateStatistics(), nil
}

// OrganizeOptions controls OrganizeAllPrdFiles.
type OrganizeOptions struct {
	DryRun bool
}

// OrganizeAllPrdFiles moves every PRD file into its status directory.
// Moves finished before a cancellation are saved.
func (s *Service) OrganizeAllPrdFiles(ctx context.Context, opts OrganizeOptions) (*organizer.Result, error) {
	prds, err := s.store.LoadPRDs(ctx)
	if err != nil {
		return nil, err
	}
	org := organizer.New(s.fs, s.layout, organizer.WithLogger(s.logger))
	res, runErr := org.OrganizeAll(ctx, prds, organizer.Options{DryRun: opts.DryRun})
	if res.Changed() {
		if err := s.savePRDs(ctx, prds); err != nil {
			return res, err
		}
		for _, d := range res.Details {
			if d.Outcome == metastore.OutcomeApplied {
				if p := prds.FindByID(d.PRDID); p != nil {
					s.track(ctx, p, versions.ChangeMoved)
				}
			}
		}
	}
	return res, runErr
}

// SyncOptions controls UpdateAllPrdStatuses.
type SyncOptions struct {
	Force  bool
	DryRun bool
}

// UpdateAllPrdStatuses derives each PRD's status from its linked tasks and
// applies it where it changed. This is the only operation that changes
// PRD status based on tasks.
func (s *Service) UpdateAllPrdStatuses(ctx context.Context, opts SyncOptions) (*prdstats.SyncResult, error) {
	prds, tasks, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	syncer := prdstats.NewSyncer(s.fs, s.layout, prdstats.WithLogger(s.logger), prdstats.WithClock(s.now))
	res, runErr := syncer.Sync(ctx, prds, tasks, prdstats.SyncOptions{Force: opts.Force, DryRun: opts.DryRun})
	if res.Changed {
		if err := s.savePRDs(ctx, prds); err != nil {
			return res, err
		}
		for _, d := range res.Details {
			if d.Outcome == metastore.OutcomeApplied {
				if p := prds.FindByID(d.PRDID); p != nil {
					s.track(ctx, p, versions.ChangeStatus)
				}
			}
		}
	}
	return res, runErr
}

// GetVersionHistory returns the recorded versions of a PRD, newest first.
func (s *Service) GetVersionHistory(ctx context.Context, prdID string, f versions.Filter) (*versions.HistoryResult, error) {
	if s.tracker == nil {
		return nil, ErrVersionsDisabled
	}
	res, err := s.tracker.History(ctx, prdID, f)
	if err != nil {
		return nil, err
	}
	if res.Total == 0 {
		if _, err := metastore.FindPRDByID(ctx, s.store, prdID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// CompareVersions diffs two recorded versions of a PRD.
func (s *Service) CompareVersions(ctx context.Context, prdID string, v1, v2 int) (*versions.Comparison, error) {
	if s.tracker == nil {
		return nil, ErrVersionsDisabled
	}
	return s.tracker.Compare(ctx, prdID, v1, v2)
}

// TrackVersions records a version for every PRD whose file or status
// changed since its latest version.
func (s *Service) TrackVersions(ctx context.Context) ([]metastore.ItemResult, error) {
	if s.tracker == nil {
		return nil, ErrVersionsDisabled
	}
	prds, err := s.store.LoadPRDs(ctx)
	if err != nil {
		return nil, err
	}
	return s.tracker.TrackAll(ctx, prds, versions.ChangeContent, s.author)
}
