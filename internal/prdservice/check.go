package prdservice

import (
	"context"
	"time"

	"taskmaster-lite/internal/autofix"
	"taskmaster-lite/internal/integrity"
	"taskmaster-lite/internal/metastore"
)

// CheckOptions controls PerformIntegrityCheck.
type CheckOptions struct {
	// AutoFix repairs what can be repaired unambiguously and saves the
	// indices once afterwards.
	AutoFix bool
}

// Report is the outcome of an integrity check. When auto-fix applied
// anything, the checks are run again and the report describes the
// repaired state; AutoFixResults lists what was done.
type Report struct {
	CheckedAt          time.Time               `json:"checkedAt"`
	Overall            integrity.Overall       `json:"overall"`
	FileIntegrity      []integrity.FileResult  `json:"fileIntegrity"`
	LinkingConsistency integrity.LinkingResult `json:"linkingConsistency"`
	AutoFixResults     *autofix.Result         `json:"autoFixResults,omitempty"`
	Recommendations    []string                `json:"recommendations"`
}

// Issues returns every issue in the report, file issues first.
func (r *Report) Issues() []integrity.Issue {
	out := integrity.FileIssues(r.FileIntegrity)
	return append(out, r.LinkingConsistency.Issues...)
}

// PerformIntegrityCheck checks every PRD file and both directions of the
// PRD-task links. Without AutoFix it never writes.
func (s *Service) PerformIntegrityCheck(ctx context.Context, opts CheckOptions) (*Report, error) {
	prds, tasks, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	report := s.check(prds, tasks)
	if !opts.AutoFix || len(report.Issues()) == 0 {
		return report, nil
	}

	engine := autofix.New(s.fs, s.layout, s.store,
		autofix.WithLogger(s.logger),
		autofix.WithClock(s.now),
		autofix.WithTracker(s.tracker, s.author),
	)
	fixes, err := engine.Apply(ctx, report.Issues(), prds, tasks)
	if err != nil {
		report.AutoFixResults = fixes
		return report, err
	}
	if fixes.Applied > 0 {
		report = s.check(prds, tasks)
	}
	report.AutoFixResults = fixes
	return report, nil
}

func (s *Service) check(prds *metastore.PRDIndex, tasks *metastore.TaskIndex) *Report {
	report := &Report{
		CheckedAt:          s.now().UTC(),
		FileIntegrity:      integrity.CheckFiles(s.fs, s.layout, prds),
		LinkingConsistency: integrity.CheckLinks(prds, tasks),
	}
	issues := report.Issues()
	report.Overall = integrity.Summarize(issues)
	report.Recommendations = integrity.Recommendations(issues)
	if report.Recommendations == nil {
		report.Recommendations = []string{}
	}
	return report
}
