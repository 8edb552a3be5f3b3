// Package configservice finds the project a command operates on, decides
// which directory layout it uses, and opens its config store.
package configservice

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/config/filestore"
)

// ErrNoProject is returned when no project root can be found.
var ErrNoProject = errors.New("no taskmaster project found (run `tm init`)")

// Project bundles a resolved project root with its layout and config.
type Project struct {
	Root   string
	Layout config.Layout
	Config *filestore.FileStore
}

// Load resolves the project for start (usually the working directory),
// opens its config with defaults and environment overrides applied, and
// validates it. TASKMASTER_DIR takes precedence over the upward search.
func Load(start string) (*Project, error) {
	root, err := FindProjectRoot(start)
	if err != nil {
		return nil, err
	}
	return Open(root)
}

// Open loads the project rooted at root without searching.
func Open(root string) (*Project, error) {
	layout := ResolveLayout(root)
	store, err := OpenConfig(layout)
	if err != nil {
		return nil, err
	}
	config.ApplyEnvOverrides(store)
	if err := config.Validate(store); err != nil {
		return nil, err
	}
	return &Project{Root: layout.Root, Layout: layout, Config: store}, nil
}

// FindProjectRoot returns the project root. Discovery order: the
// TASKMASTER_DIR env var, then a walk upward from start that stops at the
// git repository root.
func FindProjectRoot(start string) (string, error) {
	if envDir := os.Getenv(config.EnvProjectDir); envDir != "" {
		return NormalizeRoot(envDir)
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	root, found, err := findProjectUpward(abs)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNoProject
	}
	return root, nil
}

// ResolveLayout picks the layout for root. The consolidated layout wins
// whenever its data directory holds any index, so a project migrated with
// the originals preserved uses the new copies.
func ResolveLayout(root string) config.Layout {
	next := config.NewLayout(root)
	if exists(next.Abs(next.TaskIndex)) || exists(next.Abs(next.PRDIndex)) {
		return next
	}
	legacy := config.LegacyLayout(root)
	if exists(legacy.Abs(legacy.TaskIndex)) || exists(legacy.Abs(legacy.PRDIndex)) {
		return legacy
	}
	return next
}

// OpenConfig opens the layout's config file. A config.toml beside the
// default config.yaml is used when it exists.
func OpenConfig(layout config.Layout) (*filestore.FileStore, error) {
	path := layout.Abs(layout.ConfigFile)
	toml := filepath.Join(filepath.Dir(path), "config.toml")
	if !exists(path) && exists(toml) {
		path = toml
	}
	store, err := filestore.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening config %s: %w", path, err)
	}
	return store, nil
}

// NormalizeRoot resolves dir to an absolute project root. A path naming the
// .taskmaster directory itself resolves to its parent.
func NormalizeRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if filepath.Base(abs) == config.DataDirName {
		abs = filepath.Dir(abs)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot access project directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project path is not a directory: %s", abs)
	}
	return abs, nil
}

// findProjectUpward walks from start toward the filesystem root looking
// for a .taskmaster directory or a legacy tasks/tasks.json. It stops at the
// git repository root (if inside a git repo) so it never escapes the repo.
func findProjectUpward(start string) (string, bool, error) {
	gitRoot := FindGitRoot(start)

	dir := start
	for {
		if isProjectRoot(dir) {
			return dir, true, nil
		}
		if gitRoot != "" && dir == gitRoot {
			return "", false, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

func isProjectRoot(dir string) bool {
	if info, err := os.Stat(filepath.Join(dir, config.DataDirName)); err == nil && info.IsDir() {
		return true
	}
	return exists(filepath.Join(dir, "tasks", config.TaskIndexName))
}

// FindGitRoot returns the git repository root for the given directory, or
// "" if it is not in a git repo. A .git file (worktree) counts as a root.
func FindGitRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			if info.IsDir() || info.Mode().IsRegular() {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
