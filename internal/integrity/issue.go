// Package integrity checks PRD records against the files on disk and the
// PRD and task indices against each other. Checks are read-only: they
// describe drift as Issues and leave repairs to the autofix package.
package integrity

import (
	"fmt"

	"taskmaster-lite/internal/metastore"
)

// IssueType names a kind of inconsistency.
type IssueType string

const (
	IssueMissingFile         IssueType = "missing_file"
	IssueHashMismatch        IssueType = "hash_mismatch"
	IssueSizeMismatch        IssueType = "size_mismatch"
	IssueWrongDirectory      IssueType = "wrong_directory"
	IssueOrphanedTaskLink    IssueType = "orphaned_task_link"
	IssueMissingTaskLink     IssueType = "missing_task_link"
	IssuePRDSourceMismatch   IssueType = "prd_source_mismatch"
	IssueMissingPRDReference IssueType = "missing_prd_reference"
	IssueCheckError          IssueType = "check_error"
)

// Severity grades an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one detected inconsistency. Only the fields relevant to its
// type are set.
type Issue struct {
	Type         IssueType        `json:"type"`
	Severity     Severity         `json:"severity"`
	Message      string           `json:"message"`
	PRDID        string           `json:"prdId,omitempty"`
	TaskID       metastore.TaskID `json:"taskId,omitempty"`
	Expected     string           `json:"expected,omitempty"`
	Actual       string           `json:"actual,omitempty"`
	ExpectedPath string           `json:"expectedPath,omitempty"`
	ActualPath   string           `json:"actualPath,omitempty"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Type, i.Message)
}

// Overall is the verdict over a set of issues.
type Overall struct {
	Valid        bool `json:"valid"`
	ErrorCount   int  `json:"errorCount"`
	WarningCount int  `json:"warningCount"`
}

// Summarize counts issues by severity. The result is valid when there are
// no errors; warnings alone do not invalidate it.
func Summarize(issues []Issue) Overall {
	var o Overall
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			o.ErrorCount++
		case SeverityWarning:
			o.WarningCount++
		}
	}
	o.Valid = o.ErrorCount == 0
	return o
}

// CountByType tallies issues per type.
func CountByType(issues []Issue) map[IssueType]int {
	out := make(map[IssueType]int)
	for _, is := range issues {
		out[is.Type]++
	}
	return out
}

// Recommendations turns issue counts into short next steps for a human.
func Recommendations(issues []Issue) []string {
	counts := CountByType(issues)
	var recs []string
	if n := counts[IssueHashMismatch] + counts[IssueSizeMismatch]; n > 0 {
		recs = append(recs, fmt.Sprintf("%d file metadata mismatch(es): run the check with auto-fix to restamp hashes and sizes", n))
	}
	if n := counts[IssueWrongDirectory]; n > 0 {
		recs = append(recs, fmt.Sprintf("%d PRD file(s) outside their status directory: run auto-fix or organize", n))
	}
	if n := counts[IssueMissingFile]; n > 0 {
		recs = append(recs, fmt.Sprintf("%d PRD file(s) missing: restore them or archive the PRDs", n))
	}
	if n := counts[IssueMissingTaskLink]; n > 0 {
		recs = append(recs, fmt.Sprintf("%d task(s) missing from their PRD's linked list: run auto-fix to add them", n))
	}
	if n := counts[IssuePRDSourceMismatch]; n > 0 {
		recs = append(recs, fmt.Sprintf("%d task(s) name a different PRD file than the PRD linking them: run auto-fix or edit prdSource", n))
	}
	if n := counts[IssueOrphanedTaskLink]; n > 0 {
		recs = append(recs, fmt.Sprintf("%d linked task id(s) do not exist: remove them from linkedTasks by hand", n))
	}
	if n := counts[IssueMissingPRDReference]; n > 0 {
		recs = append(recs, fmt.Sprintf("%d task(s) reference an unknown PRD: fix prdSource or add the PRD", n))
	}
	if n := counts[IssueCheckError]; n > 0 {
		recs = append(recs, fmt.Sprintf("%d check(s) failed unexpectedly: see the issue messages", n))
	}
	return recs
}
