package versions

import (
	"context"
	"fmt"
)

// Filter narrows a history query. Zero values match everything.
type Filter struct {
	Limit      int
	ChangeType ChangeType
	Author     string
}

// HistoryResult is a filtered history, newest version first.
type HistoryResult struct {
	PRDID          string    `json:"prdId"`
	CurrentVersion int       `json:"currentVersion"`
	Total          int       `json:"totalVersions"`
	Versions       []Version `json:"history"`
}

// History returns the versions of id matching f, newest first. Total is
// the number of stored versions before filtering and CurrentVersion the
// number of the newest one (0 without history).
func (t *Tracker) History(ctx context.Context, id string, f Filter) (*HistoryResult, error) {
	h, err := t.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &HistoryResult{PRDID: id, Total: len(h.Versions), Versions: []Version{}}
	if latest := h.Latest(); latest != nil {
		res.CurrentVersion = latest.Version
	}
	for i := len(h.Versions) - 1; i >= 0; i-- {
		v := h.Versions[i]
		if f.ChangeType != "" && v.ChangeType != f.ChangeType {
			continue
		}
		if f.Author != "" && v.Author != f.Author {
			continue
		}
		res.Versions = append(res.Versions, v)
		if f.Limit > 0 && len(res.Versions) == f.Limit {
			break
		}
	}
	return res, nil
}

// FieldChange is one differing field between two versions.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Comparison is the difference between two versions of a PRD.
type Comparison struct {
	PRDID      string        `json:"prdId"`
	From       Version       `json:"from"`
	To         Version       `json:"to"`
	HasChanges bool          `json:"hasChanges"`
	Changes    []FieldChange `json:"differences"`
}

// Identical reports whether the compared versions have no differences.
func (c *Comparison) Identical() bool {
	return !c.HasChanges
}

// Compare diffs versions v1 and v2 of id on status, priority, complexity,
// linked task count, file size and file hash.
func (t *Tracker) Compare(ctx context.Context, id string, v1, v2 int) (*Comparison, error) {
	h, err := t.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	a, b := h.Find(v1), h.Find(v2)
	if a == nil {
		return nil, fmt.Errorf("prd %s %d: %w", id, v1, ErrVersionNotFound)
	}
	if b == nil {
		return nil, fmt.Errorf("prd %s %d: %w", id, v2, ErrVersionNotFound)
	}
	c := &Comparison{PRDID: id, From: *a, To: *b, Changes: []FieldChange{}}
	diff := func(field string, from, to any) {
		f, s := fmt.Sprint(from), fmt.Sprint(to)
		if f != s {
			c.Changes = append(c.Changes, FieldChange{Field: field, From: f, To: s})
		}
	}
	diff("status", a.Status, b.Status)
	diff("priority", a.Priority, b.Priority)
	diff("complexity", a.Complexity, b.Complexity)
	diff("linkedTaskCount", a.LinkedTaskCount, b.LinkedTaskCount)
	diff("fileSize", a.FileSize, b.FileSize)
	diff("fileHash", a.FileHash, b.FileHash)
	c.HasChanges = len(c.Changes) > 0
	return c, nil
}
