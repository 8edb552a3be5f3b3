package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/kvstorage"
)

func newTestStore(t *testing.T, table string) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := New(fsutil.New(root), ".taskmaster", table)
	if err != nil {
		t.Fatalf("New(%q): %v", table, err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s, filepath.Join(root, ".taskmaster", table)
}

func TestContract(t *testing.T) {
	kvstorage.RunContractTests(t, func(t *testing.T) kvstorage.KVStore {
		s, _ := newTestStore(t, "test")
		return s
	})
}

func TestNew_ReservedTable(t *testing.T) {
	for _, name := range kvstorage.ReservedTableNames {
		_, err := New(fsutil.New(t.TempDir()), ".taskmaster", name)
		if !errors.Is(err, kvstorage.ErrReservedTable) {
			t.Errorf("New(%q) error = %v, want ErrReservedTable", name, err)
		}
	}
}

func TestNew_EmptyTable(t *testing.T) {
	if _, err := New(fsutil.New(t.TempDir()), ".taskmaster", ""); err == nil {
		t.Fatal("New with empty table name should fail")
	}
}

func TestList_IgnoresNonJSON(t *testing.T) {
	s, dir := newTestStore(t, "test")
	ctx := context.Background()

	if err := s.Set(ctx, "valid", []byte("v"), kvstorage.SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0644); err != nil {
		t.Fatalf("write non-JSON: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	keys, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0] != "valid" {
		t.Errorf("List = %v, want [valid]", keys)
	}
}

func TestSetLeavesNoTempFiles(t *testing.T) {
	s, dir := newTestStore(t, "test")
	if err := s.Set(context.Background(), "k", []byte("v"), kvstorage.SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			t.Errorf("unexpected file: %s (temp file not cleaned up?)", e.Name())
		}
	}
}

func TestInit_CreatesDirectory(t *testing.T) {
	root := t.TempDir()
	s, err := New(fsutil.New(root), ".taskmaster", "versions")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tablePath := filepath.Join(root, ".taskmaster", "versions")
	if _, err := os.Stat(tablePath); !os.IsNotExist(err) {
		t.Fatal("table directory should not exist before Init")
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	info, err := os.Stat(tablePath)
	if err != nil || !info.IsDir() {
		t.Fatalf("table directory not created: %v", err)
	}
	if s.Dir() != ".taskmaster/versions" {
		t.Errorf("Dir = %q", s.Dir())
	}
}

func TestListMissingTable(t *testing.T) {
	s, err := New(fsutil.New(t.TempDir()), ".taskmaster", "versions")
	if err != nil {
		t.Fatal(err)
	}
	keys, err := s.List(context.Background())
	if err != nil || len(keys) != 0 {
		t.Errorf("List before Init = %v, %v", keys, err)
	}
}
