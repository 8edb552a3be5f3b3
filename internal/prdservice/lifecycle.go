package prdservice

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"taskmaster-lite/internal/integrity"
	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/organizer"
	"taskmaster-lite/internal/versions"

	"github.com/google/uuid"
)

// ErrDuplicateFile is returned when a PRD with the same file name is
// already tracked.
var ErrDuplicateFile = fmt.Errorf("prd file already tracked: %w", metastore.ErrInvalid)

// AddOptions describes a PRD being added.
type AddOptions struct {
	Title       string
	Description string
	Priority    metastore.Priority
	Complexity  metastore.Complexity
	Tags        []string
}

// NewPRDID returns a fresh PRD identifier.
func NewPRDID() string {
	return "prd-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// AddPRD copies the file at src into the pending directory and records it.
// The title defaults to the document's first heading, then to the file
// name.
func (s *Service) AddPRD(ctx context.Context, src string, opts AddOptions) (*metastore.PRD, error) {
	prds, err := s.store.LoadPRDs(ctx)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", src, err)
	}
	name := filepath.Base(abs)
	if prds.FindByFileName(name) != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrDuplicateFile)
	}

	now := s.now().UTC()
	p := &metastore.PRD{
		ID:           NewPRDID(),
		Title:        opts.Title,
		FileName:     name,
		Status:       metastore.PRDPending,
		Complexity:   opts.Complexity,
		Priority:     opts.Priority,
		Description:  opts.Description,
		Tags:         opts.Tags,
		CreatedDate:  now,
		LastModified: now,
		LinkedTasks:  []metastore.TaskID{},
	}
	if err := metastore.ValidatePRD(p); err != nil {
		return nil, err
	}
	p.FilePath = s.layout.ExpectedPath(p)
	if s.fs.Abs(p.FilePath) != abs {
		if err := s.fs.Copy(abs, p.FilePath); err != nil {
			return nil, fmt.Errorf("copying %s: %w", src, err)
		}
	}
	if err := s.stamp(p); err != nil {
		return nil, err
	}

	prds.PRDs = append(prds.PRDs, p)
	if err := s.savePRDs(ctx, prds); err != nil {
		return nil, err
	}
	s.logger.Info("added prd", "prd", p.ID, "file", p.FilePath)
	s.track(ctx, p, versions.ChangeCreated)
	return p, nil
}

// DiscoverPRDs records every file in a status directory that no PRD
// points at. Each new PRD takes the status of the directory it was found
// in.
func (s *Service) DiscoverPRDs(ctx context.Context) ([]metastore.ItemResult, error) {
	prds, err := s.store.LoadPRDs(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(prds.PRDs))
	for _, p := range prds.PRDs {
		if resolved, ok := integrity.ResolveFile(s.fs, s.layout, p); ok {
			known[resolved] = true
		}
		known[s.layout.ExpectedPath(p)] = true
	}

	items := []metastore.ItemResult{}
	var added []*metastore.PRD
	for _, status := range metastore.PRDStatuses {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		dir := s.layout.StatusDir(status)
		entries, err := s.fs.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return items, &metastore.IOError{Op: "read", Path: dir, Err: err}
		}
		for _, e := range entries {
			rel := path.Join(dir, e.Name())
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") || known[rel] {
				continue
			}
			now := s.now().UTC()
			p := &metastore.PRD{
				ID:           NewPRDID(),
				FileName:     e.Name(),
				FilePath:     rel,
				Status:       status,
				CreatedDate:  now,
				LastModified: now,
				LinkedTasks:  []metastore.TaskID{},
			}
			item := metastore.ItemResult{ID: p.ID, Kind: "prd", Message: rel}
			if err := s.stamp(p); err != nil {
				item.Outcome, item.Err, item.Message = metastore.OutcomeFailed, err, err.Error()
				items = append(items, item)
				continue
			}
			item.Outcome = metastore.OutcomeApplied
			items = append(items, item)
			prds.PRDs = append(prds.PRDs, p)
			added = append(added, p)
			known[rel] = true
		}
	}
	if len(added) == 0 {
		return items, nil
	}
	if err := s.savePRDs(ctx, prds); err != nil {
		return items, err
	}
	for _, p := range added {
		s.logger.Info("discovered prd", "prd", p.ID, "file", p.FilePath)
		s.track(ctx, p, versions.ChangeCreated)
	}
	return items, nil
}

// stamp fills in a new PRD's hash and size from its file, and its title
// from the first heading when none was given.
func (s *Service) stamp(p *metastore.PRD) error {
	hash, size, err := s.fs.Hash(p.FilePath)
	if err != nil {
		return &metastore.IOError{Op: "hash", Path: p.FilePath, Err: err}
	}
	p.FileHash, p.FileSize = hash, size
	if p.Title == "" {
		data, err := s.fs.ReadFile(p.FilePath)
		if err == nil {
			p.Title = firstHeading(data)
		}
		if p.Title == "" {
			p.Title = strings.TrimSuffix(p.FileName, path.Ext(p.FileName))
		}
	}
	return nil
}

func firstHeading(data []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

// GetPRD returns one PRD.
func (s *Service) GetPRD(ctx context.Context, id string) (*metastore.PRD, error) {
	return metastore.FindPRDByID(ctx, s.store, id)
}

// ListPRDs returns the PRDs with status, or all of them when status is
// empty.
func (s *Service) ListPRDs(ctx context.Context, status metastore.PRDStatus) ([]*metastore.PRD, error) {
	if status != "" {
		return metastore.FindPRDsByStatus(ctx, s.store, status)
	}
	prds, err := s.store.LoadPRDs(ctx)
	if err != nil {
		return nil, err
	}
	return prds.PRDs, nil
}

// ArchivePRD sets a PRD's status to archived and moves its file into the
// archive directory. A PRD whose file is missing is archived in the index
// only.
func (s *Service) ArchivePRD(ctx context.Context, id string) (*metastore.PRD, error) {
	prds, err := s.store.LoadPRDs(ctx)
	if err != nil {
		return nil, err
	}
	p := prds.FindByID(id)
	if p == nil {
		return nil, fmt.Errorf("prd %s: %w", id, metastore.ErrNotFound)
	}
	if p.Status == metastore.PRDArchived {
		return p, nil
	}
	from, found := integrity.ResolveFile(s.fs, s.layout, p)
	p.Status = metastore.PRDArchived
	if found {
		if err := organizer.Relocate(s.fs, s.layout, p, from); err != nil {
			return nil, err
		}
	} else {
		s.logger.Warn("archiving prd without a file", "prd", p.ID, "path", p.FilePath)
	}
	p.LastModified = s.now().UTC()
	if err := s.savePRDs(ctx, prds); err != nil {
		return nil, err
	}
	s.logger.Info("archived prd", "prd", p.ID, "to", p.FilePath)
	s.track(ctx, p, versions.ChangeStatus)
	return p, nil
}

// DeleteResult describes what DeletePRD removed.
type DeleteResult struct {
	PRDID        string             `json:"prdId"`
	Archived     bool               `json:"archived"`
	FileRemoved  bool               `json:"fileRemoved"`
	RemovedTasks []metastore.TaskID `json:"removedTasks"`
}

// DeletePRD archives the PRD unless force is set. With force, the file,
// the record and its version history are removed, along with every task
// whose source names the PRD; links to those tasks are dropped from the
// remaining PRDs.
func (s *Service) DeletePRD(ctx context.Context, id string, force bool) (*DeleteResult, error) {
	if !force {
		if _, err := s.ArchivePRD(ctx, id); err != nil {
			return nil, err
		}
		return &DeleteResult{PRDID: id, Archived: true, RemovedTasks: []metastore.TaskID{}}, nil
	}

	prds, tasks, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	p := prds.FindByID(id)
	if p == nil {
		return nil, fmt.Errorf("prd %s: %w", id, metastore.ErrNotFound)
	}
	res := &DeleteResult{PRDID: id, RemovedTasks: []metastore.TaskID{}}

	if file, ok := integrity.ResolveFile(s.fs, s.layout, p); ok {
		if err := s.fs.Remove(file); err != nil {
			return nil, &metastore.IOError{Op: "remove", Path: file, Err: err}
		}
		res.FileRemoved = true
	}

	res.RemovedTasks = removeSourcedTasks(tasks, p)
	prds.Remove(id)
	if len(res.RemovedTasks) > 0 {
		for _, other := range prds.PRDs {
			other.LinkedTasks = dropLinks(other.LinkedTasks, res.RemovedTasks)
		}
		if err := s.store.SaveTasks(context.WithoutCancel(ctx), tasks); err != nil {
			return nil, err
		}
	}
	if err := s.savePRDs(ctx, prds); err != nil {
		return nil, err
	}
	if s.tracker != nil {
		if err := s.tracker.Forget(ctx, id); err != nil {
			s.logger.Warn("removing version history failed", "prd", id, "err", err)
		}
	}
	s.logger.Info("deleted prd", "prd", id, "tasks", len(res.RemovedTasks))
	return res, nil
}

// removeSourcedTasks deletes the tasks and subtasks whose source names p
// and returns their full IDs.
func removeSourcedTasks(tasks *metastore.TaskIndex, p *metastore.PRD) []metastore.TaskID {
	removed := []metastore.TaskID{}
	sourcedFrom := func(t *metastore.Task) bool {
		if t.PRDSource == nil {
			return false
		}
		return t.PRDSource.PRDID == p.ID || (t.PRDSource.FileName != "" && t.PRDSource.FileName == p.FileName)
	}
	var prune func(prefix metastore.TaskID, list []*metastore.Task) []*metastore.Task
	prune = func(prefix metastore.TaskID, list []*metastore.Task) []*metastore.Task {
		kept := list[:0]
		for _, t := range list {
			full := t.ID
			if prefix != "" && !t.ID.IsSubtask() {
				full = prefix + "." + t.ID
			}
			if sourcedFrom(t) {
				removed = append(removed, full)
				continue
			}
			t.Subtasks = prune(full, t.Subtasks)
			kept = append(kept, t)
		}
		return kept
	}
	tasks.Tasks = prune("", tasks.Tasks)
	return removed
}

func dropLinks(links, removed []metastore.TaskID) []metastore.TaskID {
	out := links[:0]
	for _, id := range links {
		drop := false
		for _, r := range removed {
			if id == r || strings.HasPrefix(id.String(), r.String()+".") {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, id)
		}
	}
	return out
}
