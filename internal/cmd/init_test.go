package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newInitProvider(t *testing.T, dir string) (*AppProvider, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &AppProvider{ProjectPath: dir, Out: &out, Err: io.Discard}, &out
}

func fileExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	return err == nil
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	provider, out := newInitProvider(t, dir)

	if err := run(t, newInitCmd(provider)); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out.String(), "Initialized taskmaster project") {
		t.Errorf("output = %q", out.String())
	}
	for _, rel := range []string{
		".taskmaster/config.yaml",
		".taskmaster/prd/prds.json",
		".taskmaster/tasks/tasks.json",
		".taskmaster/prd/pending",
		".taskmaster/prd/in-progress",
		".taskmaster/prd/done",
		".taskmaster/prd/archived",
	} {
		if !fileExists(t, filepath.Join(dir, rel)) {
			t.Errorf("%s was not created", rel)
		}
	}

	err := run(t, newInitCmd(provider))
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second init err = %v, want already exists", err)
	}

	if err := run(t, newInitCmd(provider), "--force"); err != nil {
		t.Errorf("init --force failed: %v", err)
	}
}

func TestInitSQLite(t *testing.T) {
	dir := t.TempDir()
	provider, _ := newInitProvider(t, dir)

	if err := run(t, newInitCmd(provider), "--backend", "sqlite"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !fileExists(t, filepath.Join(dir, ".taskmaster", "taskmaster.db")) {
		t.Error("database was not created")
	}
	if !fileExists(t, filepath.Join(dir, ".taskmaster", "prd", "pending")) {
		t.Error("status directories were not created")
	}
	if fileExists(t, filepath.Join(dir, ".taskmaster", "prd", "prds.json")) {
		t.Error("JSON index written on the sqlite backend")
	}
	data, err := os.ReadFile(filepath.Join(dir, ".taskmaster", "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "storage.backend: sqlite") {
		t.Errorf("config.yaml:\n%s", data)
	}
}

func TestInitRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	provider, _ := newInitProvider(t, dir)

	if err := run(t, newInitCmd(provider), "--backend", "mongo"); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
	if fileExists(t, filepath.Join(dir, ".taskmaster")) {
		t.Error("a rejected init created .taskmaster")
	}
}

func TestInitThenCommandsThroughRoot(t *testing.T) {
	dir := t.TempDir()
	provider, _ := newInitProvider(t, dir)
	if err := run(t, newInitCmd(provider), "--backend", "sqlite"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	var out bytes.Buffer
	root := &AppProvider{Out: &out, Err: io.Discard}
	defer root.Close()
	if err := run(t, newRootCmd(root), "--path", dir, "migrate", "schema"); err != nil {
		t.Fatalf("migrate schema failed: %v", err)
	}
	if !strings.Contains(out.String(), "Schema is up to date.") {
		t.Errorf("output = %q", out.String())
	}
}
