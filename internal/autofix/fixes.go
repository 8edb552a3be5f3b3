package autofix

import (
	"fmt"

	"taskmaster-lite/internal/integrity"
	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/organizer"
	"taskmaster-lite/internal/prdstats"
	"taskmaster-lite/internal/versions"
)

// restamp records the hash and size of the PRD's current file.
func (e *Engine) restamp(r *run, is integrity.Issue, d Detail) Detail {
	p := r.prds.FindByID(is.PRDID)
	if p == nil {
		return skipped(d, "prd no longer in the index")
	}
	if r.restamped[p.ID] {
		return applied(d, "restamped")
	}
	file, ok := integrity.ResolveFile(e.fs, e.layout, p)
	if !ok {
		return skipped(d, "file not found")
	}
	if err := e.stamp(r, p, file); err != nil {
		return failed(d, err)
	}
	e.logger.Info("restamped prd", "prd", p.ID, "hash", p.FileHash, "size", p.FileSize)
	return applied(d, fmt.Sprintf("restamped from %s", file))
}

// relocate points the PRD at its status directory, moving the file there
// unless a file already sits at the expected location.
func (e *Engine) relocate(r *run, is integrity.Issue, d Detail) Detail {
	p := r.prds.FindByID(is.PRDID)
	if p == nil {
		return skipped(d, "prd no longer in the index")
	}
	expected := e.layout.ExpectedPath(p)
	if info, err := e.fs.Stat(expected); err == nil && !info.IsDir() {
		from := p.FilePath
		p.FilePath = expected
		if err := e.stamp(r, p, expected); err != nil {
			return failed(d, err)
		}
		r.changed[p.ID] = versions.ChangeMoved
		e.logger.Info("repointed prd", "prd", p.ID, "from", from, "to", expected)
		return applied(d, fmt.Sprintf("repointed to %s", expected))
	}

	from, ok := integrity.ResolveFile(e.fs, e.layout, p)
	if !ok {
		return skipped(d, "file not found")
	}
	if err := organizer.Relocate(e.fs, e.layout, p, from); err != nil {
		e.logger.Warn("move rejected", "prd", p.ID, "from", from, "to", expected, "err", err)
		return failed(d, err)
	}
	if err := e.stamp(r, p, expected); err != nil {
		return failed(d, err)
	}
	r.changed[p.ID] = versions.ChangeMoved
	e.logger.Info("moved prd file", "prd", p.ID, "from", from, "to", expected)
	return applied(d, fmt.Sprintf("moved %s to %s", from, expected))
}

func (e *Engine) stamp(r *run, p *metastore.PRD, file string) error {
	hash, size, err := e.fs.Hash(file)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", file, err)
	}
	p.FileHash, p.FileSize = hash, size
	p.LastModified = e.now().UTC()
	r.restamped[p.ID] = true
	if _, ok := r.changed[p.ID]; !ok {
		r.changed[p.ID] = versions.ChangeRestamp
	}
	r.prdsTouched = true
	return nil
}

// fixSource rewrites a task's back-reference to the one PRD linking it.
// An unlinked task is pointed at the PRD its file name resolves to.
func (e *Engine) fixSource(r *run, is integrity.Issue, d Detail) Detail {
	t := r.tasks.Find(is.TaskID)
	if t == nil {
		return skipped(d, "task no longer in the index")
	}
	linking := integrity.LinkingPRDs(r.prds, is.TaskID)
	if len(linking) == 0 {
		if p := integrity.SourcePRD(r.prds, t.PRDSource); p != nil {
			linking = append(linking, p)
		}
	}
	if len(linking) != 1 {
		return skipped(d, fmt.Sprintf("task is linked from %d PRDs; source is ambiguous", len(linking)))
	}
	p := linking[0]
	if t.PRDSource != nil && t.PRDSource.FileName == p.FileName && t.PRDSource.PRDID == p.ID {
		return skipped(d, "already resolved")
	}
	if t.PRDSource == nil {
		t.PRDSource = &metastore.PRDSource{}
	}
	old := t.PRDSource.FileName
	t.PRDSource.FileName = p.FileName
	t.PRDSource.FilePath = p.FilePath
	t.PRDSource.PRDID = p.ID
	r.tasksTouched = true
	e.logger.Info("rewrote task prd source", "task", is.TaskID, "prd", p.ID, "from", old)
	return applied(d, fmt.Sprintf("source set to %s", p.FileName))
}

// fixBackLink adds the task to the linked list of the PRD its source names.
func (e *Engine) fixBackLink(r *run, is integrity.Issue, d Detail) Detail {
	t := r.tasks.Find(is.TaskID)
	if t == nil || t.PRDSource == nil {
		return skipped(d, "task no longer references a prd")
	}
	p := integrity.SourcePRD(r.prds, t.PRDSource)
	if p == nil || p.ID != is.PRDID {
		return skipped(d, "resolved by an earlier fix")
	}
	if p.HasLinkedTask(is.TaskID) {
		return skipped(d, "already linked")
	}
	p.LinkedTasks = append(p.LinkedTasks, is.TaskID)
	prdstats.Refresh(p, r.tasks)
	p.LastModified = e.now().UTC()
	r.prdsTouched = true
	e.logger.Info("linked task to prd", "prd", p.ID, "task", is.TaskID)
	return applied(d, fmt.Sprintf("linked task %s", is.TaskID))
}
