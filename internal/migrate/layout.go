package migrate

import (
	"context"
	"fmt"
	"path"
	"strings"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/metastore/filesystem"
)

// LayoutResult lists what MigrateDirectoryStructureWithResult copied.
type LayoutResult struct {
	Migrated      bool     `json:"migrated"`
	CopiedFiles   int      `json:"copiedFiles"`
	RewrittenPRDs int      `json:"rewrittenPrds"`
	RewrittenRefs int      `json:"rewrittenTaskRefs"`
	Removed       []string `json:"removed,omitempty"`
}

// MigrateDirectoryStructure copies a project from the flat layout (tasks/,
// prd/, templates/, .taskmasterconfig, scripts/*complexity-report*.json)
// into the consolidated .taskmaster directory. It only runs when tasks/
// exists and .taskmaster/tasks does not, and reports whether it ran.
// The originals are removed only when preserveOld is false.
func MigrateDirectoryStructure(root string, preserveOld bool, opts ...Option) (bool, error) {
	res, err := MigrateDirectoryStructureWithResult(root, preserveOld, opts...)
	if err != nil {
		return false, err
	}
	return res.Migrated, nil
}

// MigrateDirectoryStructureWithResult is MigrateDirectoryStructure with a
// detailed result.
func MigrateDirectoryStructureWithResult(root string, preserveOld bool, opts ...Option) (*LayoutResult, error) {
	o := newOptions(opts)
	fsys := fsutil.New(root)
	legacy := config.LegacyLayout(root)
	next := config.NewLayout(root)
	res := &LayoutResult{}

	if fsys.Exists(next.TasksDir) || !fsys.Exists(legacy.TasksDir) {
		return res, nil
	}

	dirs := []struct{ from, to string }{
		{legacy.TasksDir, next.TasksDir},
		{legacy.PRDDir, next.PRDDir},
		{legacy.TemplatesDir, next.TemplatesDir},
	}
	var moved []string
	for _, d := range dirs {
		if !fsys.Exists(d.from) {
			continue
		}
		n, err := fsutil.CopyTree(fsys, d.from, d.to)
		if err != nil {
			return nil, fmt.Errorf("copying %s to %s: %w", d.from, d.to, err)
		}
		res.CopiedFiles += n
		moved = append(moved, d.from)
		o.logger.Info("copied directory", "from", d.from, "to", d.to, "files", n)
	}

	if fsys.Exists(config.LegacyConfigFile) {
		dst := path.Join(config.DataDirName, "config.json")
		if err := copyIfAbsent(fsys, config.LegacyConfigFile, dst); err != nil {
			return nil, err
		}
		res.CopiedFiles++
		moved = append(moved, config.LegacyConfigFile)
	}

	reports, err := complexityReports(fsys)
	if err != nil {
		return nil, err
	}
	for _, rel := range reports {
		dst := path.Join(next.ReportsDir, path.Base(rel))
		if err := copyIfAbsent(fsys, rel, dst); err != nil {
			return nil, err
		}
		res.CopiedFiles++
		moved = append(moved, rel)
	}

	if err := rewriteRecordedPaths(fsys, next, res); err != nil {
		return nil, err
	}

	if !preserveOld {
		for _, rel := range moved {
			if err := fsys.RemoveAll(rel); err != nil {
				return nil, fmt.Errorf("removing %s: %w", rel, err)
			}
			res.Removed = append(res.Removed, rel)
		}
	}

	res.Migrated = true
	o.logger.Info("migrated directory layout", "files", res.CopiedFiles, "preserved", preserveOld)
	return res, nil
}

// rewriteRecordedPaths points PRD file paths and task PRD sources recorded
// under the flat layout at their consolidated location.
func rewriteRecordedPaths(fsys fsutil.FS, layout config.Layout, res *LayoutResult) error {
	ctx := context.Background()
	store := filesystem.New(fsys, layout)

	prds, err := store.LoadPRDs(ctx)
	if err != nil {
		return err
	}
	for _, p := range prds.PRDs {
		if rewritten, ok := config.MigrateLegacyPath(p.FilePath); ok {
			p.FilePath = rewritten
			res.RewrittenPRDs++
		}
	}
	if res.RewrittenPRDs > 0 || prds.Folded > 0 {
		if err := store.SavePRDs(ctx, prds); err != nil {
			return err
		}
	}

	tasks, err := store.LoadTasks(ctx)
	if err != nil {
		return err
	}
	tasks.Walk(func(_ metastore.TaskID, t *metastore.Task) {
		if t.PRDSource == nil {
			return
		}
		if rewritten, ok := config.MigrateLegacyPath(t.PRDSource.FilePath); ok {
			t.PRDSource.FilePath = rewritten
			res.RewrittenRefs++
		}
	})
	if res.RewrittenRefs > 0 {
		return store.SaveTasks(ctx, tasks)
	}
	return nil
}

func complexityReports(fsys fsutil.FS) ([]string, error) {
	if !fsys.Exists(config.LegacyScriptsDir) {
		return nil, nil
	}
	entries, err := fsys.ReadDir(config.LegacyScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", config.LegacyScriptsDir, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.Contains(name, "complexity-report") || path.Ext(name) != ".json" {
			continue
		}
		out = append(out, path.Join(config.LegacyScriptsDir, name))
	}
	return out, nil
}

func copyIfAbsent(fsys fsutil.FS, src, dst string) error {
	if fsys.Exists(dst) {
		return nil
	}
	if err := fsys.Copy(src, dst); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}
