// Package config handles taskmaster configuration keys, defaults, and the
// on-disk project layout.
package config

import (
	"path"
	"path/filepath"
	"strings"

	"taskmaster-lite/internal/metastore"
)

// Directory and file names of the consolidated layout. Everything lives
// under one dot-prefixed directory at the project root.
const (
	DataDirName      = ".taskmaster"
	ConfigFileName   = "config.yaml"
	DatabaseFileName = "taskmaster.db"
	PRDIndexName     = "prds.json"
	TaskIndexName    = "tasks.json"

	// LegacyConfigFile is the single dotfile config of the flat layout.
	LegacyConfigFile = ".taskmasterconfig"
	// LegacyScriptsDir holds complexity reports among other script outputs.
	LegacyScriptsDir = "scripts"
)

// Layout lists the root-relative locations of every file the engine reads
// or writes. Paths use forward slashes.
type Layout struct {
	Root   string // absolute project root
	Legacy bool   // true for the flat pre-consolidation layout

	DataDir      string
	TasksDir     string
	TaskIndex    string
	PRDDir       string
	PRDIndex     string
	TemplatesDir string
	ReportsDir   string
	VersionsDir  string
	Database     string
	ConfigFile   string
}

// NewLayout returns the consolidated layout rooted at root.
func NewLayout(root string) Layout {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return Layout{
		Root:         root,
		DataDir:      DataDirName,
		TasksDir:     path.Join(DataDirName, "tasks"),
		TaskIndex:    path.Join(DataDirName, "tasks", TaskIndexName),
		PRDDir:       path.Join(DataDirName, "prd"),
		PRDIndex:     path.Join(DataDirName, "prd", PRDIndexName),
		TemplatesDir: path.Join(DataDirName, "templates"),
		ReportsDir:   path.Join(DataDirName, "reports"),
		VersionsDir:  path.Join(DataDirName, "versions"),
		Database:     path.Join(DataDirName, DatabaseFileName),
		ConfigFile:   path.Join(DataDirName, ConfigFileName),
	}
}

// LegacyLayout returns the flat layout (tasks/, prd/, templates/ at the
// project root). Files the flat layout never had (versions, database, this
// tool's own config) still go under the data directory.
func LegacyLayout(root string) Layout {
	l := NewLayout(root)
	l.Legacy = true
	l.TasksDir = "tasks"
	l.TaskIndex = path.Join("tasks", TaskIndexName)
	l.PRDDir = "prd"
	l.PRDIndex = path.Join("prd", PRDIndexName)
	l.TemplatesDir = "templates"
	l.ReportsDir = LegacyScriptsDir
	return l
}

// StatusDir returns the directory PRD files with status must live in.
func (l Layout) StatusDir(status metastore.PRDStatus) string {
	return path.Join(l.PRDDir, string(status))
}

// ExpectedPath returns where a PRD's file belongs given its status.
func (l Layout) ExpectedPath(p *metastore.PRD) string {
	return path.Join(l.StatusDir(p.Status), p.FileName)
}

// Abs converts a root-relative path to an absolute one.
func (l Layout) Abs(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// MigrateLegacyPath rewrites a path recorded under the flat layout's prd/
// or tasks/ directory to its consolidated location. It reports false when
// the path is not a legacy path.
func MigrateLegacyPath(rel string) (string, bool) {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	for _, dir := range []string{"prd/", "tasks/", "templates/"} {
		if strings.HasPrefix(rel, dir) {
			return path.Join(DataDirName, rel), true
		}
	}
	return rel, false
}
