package integrity

import (
	"fmt"
	"path"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/metastore"
)

// FileResult is the outcome of checking one PRD's source file.
type FileResult struct {
	PRDID        string  `json:"prdId"`
	FileName     string  `json:"fileName"`
	RecordedPath string  `json:"recordedPath"`
	ResolvedPath string  `json:"resolvedPath,omitempty"`
	Exists       bool    `json:"exists"`
	ActualHash   string  `json:"actualHash,omitempty"`
	ActualSize   int64   `json:"actualSize,omitempty"`
	Valid        bool    `json:"valid"`
	Issues       []Issue `json:"issues"`
}

// CheckFile locates the file behind p and compares it with the recorded
// hash, size and status directory. The file is looked up at the recorded
// path first, then in the PRD's status directory, then at the recorded
// path rewritten from the flat layout. CheckFile never fails: unexpected
// errors and panics become a check_error issue on the result.
func CheckFile(fsys fsutil.FS, layout config.Layout, p *metastore.PRD) (res FileResult) {
	res = FileResult{PRDID: p.ID, FileName: p.FileName, RecordedPath: p.FilePath, Issues: []Issue{}}
	defer func() {
		if r := recover(); r != nil {
			res.Issues = append(res.Issues, checkError(p, fmt.Errorf("panic: %v", r)))
			res.Valid = false
		}
	}()

	resolved, ok := ResolveFile(fsys, layout, p)
	if !ok {
		res.Issues = append(res.Issues, Issue{
			Type:         IssueMissingFile,
			Severity:     SeverityError,
			Message:      fmt.Sprintf("PRD %s: file %s not found", p.ID, displayPath(p, layout)),
			PRDID:        p.ID,
			ExpectedPath: layout.ExpectedPath(p),
		})
		return res
	}
	res.Exists = true
	res.ResolvedPath = resolved

	hash, size, err := fsys.Hash(resolved)
	if err != nil {
		res.Issues = append(res.Issues, checkError(p, fmt.Errorf("hashing %s: %w", resolved, err)))
		return res
	}
	res.ActualHash = hash
	res.ActualSize = size

	if hash != p.FileHash {
		res.Issues = append(res.Issues, Issue{
			Type:     IssueHashMismatch,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("PRD %s: content of %s changed since it was recorded", p.ID, resolved),
			PRDID:    p.ID,
			Expected: p.FileHash,
			Actual:   hash,
		})
	}
	if size != p.FileSize {
		res.Issues = append(res.Issues, Issue{
			Type:     IssueSizeMismatch,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("PRD %s: size of %s is %d, recorded %d", p.ID, resolved, size, p.FileSize),
			PRDID:    p.ID,
			Expected: fmt.Sprint(p.FileSize),
			Actual:   fmt.Sprint(size),
		})
	}

	expectedDir := layout.StatusDir(p.Status)
	switch {
	case path.Dir(resolved) != expectedDir:
		res.Issues = append(res.Issues, Issue{
			Type:         IssueWrongDirectory,
			Severity:     SeverityError,
			Message:      fmt.Sprintf("PRD %s has status %s but its file is in %s", p.ID, p.Status, path.Dir(resolved)),
			PRDID:        p.ID,
			ExpectedPath: layout.ExpectedPath(p),
			ActualPath:   resolved,
		})
	case resolved != fsutil.Clean(p.FilePath):
		res.Issues = append(res.Issues, Issue{
			Type:         IssueWrongDirectory,
			Severity:     SeverityError,
			Message:      fmt.Sprintf("PRD %s records path %q but its file is at %s", p.ID, p.FilePath, resolved),
			PRDID:        p.ID,
			ExpectedPath: layout.ExpectedPath(p),
			ActualPath:   resolved,
		})
	}

	res.Valid = !hasErrors(res.Issues)
	return res
}

// CheckFiles runs CheckFile over every PRD in idx, in index order.
func CheckFiles(fsys fsutil.FS, layout config.Layout, idx *metastore.PRDIndex) []FileResult {
	out := make([]FileResult, 0, len(idx.PRDs))
	for _, p := range idx.PRDs {
		out = append(out, CheckFile(fsys, layout, p))
	}
	return out
}

// FileIssues flattens the issues of results.
func FileIssues(results []FileResult) []Issue {
	var out []Issue
	for _, r := range results {
		out = append(out, r.Issues...)
	}
	return out
}

// ResolveFile returns the root-relative path of the file behind p: the
// recorded path, then the status directory, then the recorded path moved
// out of the flat layout. It reports false when none exists.
func ResolveFile(fsys fsutil.FS, layout config.Layout, p *metastore.PRD) (string, bool) {
	var candidates []string
	if p.FilePath != "" {
		candidates = append(candidates, fsutil.Clean(p.FilePath))
	}
	if p.FileName != "" && p.Status.Valid() {
		candidates = append(candidates, layout.ExpectedPath(p))
	}
	if rewritten, ok := config.MigrateLegacyPath(p.FilePath); ok {
		candidates = append(candidates, rewritten)
	}
	for _, c := range candidates {
		info, err := fsys.Stat(c)
		if err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

func displayPath(p *metastore.PRD, layout config.Layout) string {
	if p.FilePath != "" {
		return p.FilePath
	}
	return layout.ExpectedPath(p)
}

func checkError(p *metastore.PRD, err error) Issue {
	return Issue{
		Type:     IssueCheckError,
		Severity: SeverityError,
		Message:  fmt.Sprintf("PRD %s: %v", p.ID, err),
		PRDID:    p.ID,
	}
}

func hasErrors(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}
