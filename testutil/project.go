// Package testutil builds taskmaster projects on disk for tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/metastore/filesystem"
)

// FixedNow is the clock used by fixture stores.
var FixedNow = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

// Clock returns FixedNow.
func Clock() time.Time { return FixedNow }

// Project is a project under a temp dir with in-memory indices that are
// written out by Save.
type Project struct {
	Root   string
	FS     fsutil.FS
	Layout config.Layout
	Store  *filesystem.Store
	PRDs   *metastore.PRDIndex
	Tasks  *metastore.TaskIndex
}

// NewProject initializes an empty project in the consolidated layout.
func NewProject(t testing.TB) *Project {
	t.Helper()
	root := t.TempDir()
	p := &Project{
		Root:   root,
		FS:     fsutil.New(root),
		Layout: config.NewLayout(root),
		PRDs:   metastore.NewPRDIndex(),
		Tasks:  metastore.NewTaskIndex(),
	}
	p.Store = filesystem.New(p.FS, p.Layout, filesystem.WithClock(Clock))
	if err := p.Store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return p
}

// AddPRD writes content into the PRD's status directory and records it
// with a matching hash and size.
func (p *Project) AddPRD(t testing.TB, id string, status metastore.PRDStatus, content string, links ...metastore.TaskID) *metastore.PRD {
	t.Helper()
	if links == nil {
		links = []metastore.TaskID{}
	}
	prd := &metastore.PRD{
		ID:           id,
		Title:        id,
		FileName:     id + ".md",
		Status:       status,
		CreatedDate:  FixedNow,
		LastModified: FixedNow,
		LinkedTasks:  links,
	}
	prd.FilePath = p.Layout.ExpectedPath(prd)
	if err := p.FS.WriteFile(prd.FilePath, []byte(content)); err != nil {
		t.Fatalf("write %s: %v", prd.FilePath, err)
	}
	prd.FileHash = fsutil.HashBytes([]byte(content))
	prd.FileSize = int64(len(content))
	p.PRDs.PRDs = append(p.PRDs.PRDs, prd)
	return prd
}

// AddTask records a top-level task. A non-nil source sets its prdSource.
func (p *Project) AddTask(id metastore.TaskID, status metastore.TaskStatus, source *metastore.PRD) *metastore.Task {
	task := &metastore.Task{ID: id, Title: "task " + id.String(), Status: status}
	if source != nil {
		task.PRDSource = &metastore.PRDSource{
			FilePath: source.FilePath,
			FileName: source.FileName,
			PRDID:    source.ID,
		}
	}
	p.Tasks.Tasks = append(p.Tasks.Tasks, task)
	return task
}

// Save writes both indices through the store.
func (p *Project) Save(t testing.TB) {
	t.Helper()
	ctx := context.Background()
	if err := p.Store.SavePRDs(ctx, p.PRDs); err != nil {
		t.Fatalf("save prds: %v", err)
	}
	if err := p.Store.SaveTasks(ctx, p.Tasks); err != nil {
		t.Fatalf("save tasks: %v", err)
	}
}

// Reload reads both indices back from the store.
func (p *Project) Reload(t testing.TB) {
	t.Helper()
	ctx := context.Background()
	prds, err := p.Store.LoadPRDs(ctx)
	if err != nil {
		t.Fatalf("load prds: %v", err)
	}
	tasks, err := p.Store.LoadTasks(ctx)
	if err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	p.PRDs, p.Tasks = prds, tasks
}

// Snapshot returns every file under the project root with its contents,
// keyed by slash-separated relative path.
func (p *Project) Snapshot(t testing.TB) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.Walk(p.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(p.Root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return out
}

// GenerateLinked adds prdCount consistent PRDs, each linking tasksPer
// tasks whose prdSource points back at it. Task IDs are numbered from 1
// across all PRDs. The indices are saved.
func (p *Project) GenerateLinked(t testing.TB, prdCount, tasksPer int) []*metastore.PRD {
	t.Helper()
	var out []*metastore.PRD
	next := len(p.Tasks.Tasks) + 1
	for i := 0; i < prdCount; i++ {
		prd := p.AddPRD(t, fmt.Sprintf("prd-gen%03d", i), metastore.PRDPending, fmt.Sprintf("# Generated %d\n", i))
		for j := 0; j < tasksPer; j++ {
			id := metastore.IntTaskID(next)
			next++
			p.AddTask(id, metastore.TaskPending, prd)
			prd.LinkedTasks = append(prd.LinkedTasks, id)
		}
		prd.TaskStats = metastore.TaskStats{TotalTasks: tasksPer, PendingTasks: tasksPer}
		out = append(out, prd)
	}
	p.Save(t)
	return out
}
