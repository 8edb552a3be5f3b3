package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/metastore"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	return New(fsutil.New(root), config.NewLayout(root)), root
}

func TestContract(t *testing.T) {
	metastore.RunContractTests(t, func() metastore.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestInitCreatesStatusDirs(t *testing.T) {
	s, root := newTestStore(t)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	for _, status := range metastore.PRDStatuses {
		dir := filepath.Join(root, ".taskmaster", "prd", string(status))
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("status dir %s missing: %v", status, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, ".taskmaster", "tasks")); err != nil {
		t.Errorf("tasks dir missing: %v", err)
	}
}

func writeIndex(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFoldsLegacyLinks(t *testing.T) {
	s, root := newTestStore(t)
	writeIndex(t, root, ".taskmaster/prd/prds.json", `{
  "prds": [
    {"id": "prd-a", "fileName": "a.md", "status": "pending", "linkedTaskIds": [1, "2"]},
    {"id": "prd-b", "fileName": "b.md", "status": "done", "linkedTasks": [3], "linkedTaskIds": [4]},
    {"id": "prd-c", "fileName": "c.md", "status": "done", "linkedTasks": [5]}
  ]
}`)

	idx, err := s.LoadPRDs(context.Background())
	if err != nil {
		t.Fatalf("LoadPRDs failed: %v", err)
	}
	if idx.Folded != 2 {
		t.Errorf("Folded = %d, want 2", idx.Folded)
	}
	a := idx.FindByID("prd-a")
	if len(a.LinkedTasks) != 2 || a.LinkedTasks[0] != "1" || a.LinkedTasks[1] != "2" {
		t.Errorf("prd-a LinkedTasks = %v", a.LinkedTasks)
	}
	b := idx.FindByID("prd-b")
	if len(b.LinkedTasks) != 1 || b.LinkedTasks[0] != "3" {
		t.Errorf("prd-b should keep linkedTasks, got %v", b.LinkedTasks)
	}

	// Saving writes only the canonical field.
	if err := s.SavePRDs(context.Background(), idx); err != nil {
		t.Fatalf("SavePRDs failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, ".taskmaster", "prd", "prds.json"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "linkedTaskIds") {
		t.Errorf("saved index still carries linkedTaskIds:\n%s", data)
	}

	again, err := s.LoadPRDs(context.Background())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Folded != 0 {
		t.Errorf("second load folded %d records, want 0", again.Folded)
	}
}

func TestSaveFormat(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	root := t.TempDir()
	s := New(fsutil.New(root), config.NewLayout(root), WithClock(func() time.Time { return fixed }))

	idx := metastore.NewPRDIndex()
	idx.PRDs = append(idx.PRDs, &metastore.PRD{ID: "prd-a", FileName: "a.md", Status: metastore.PRDPending})
	if err := s.SavePRDs(context.Background(), idx); err != nil {
		t.Fatalf("SavePRDs failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, ".taskmaster", "prd", "prds.json"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.HasSuffix(text, "}\n") {
		t.Errorf("index should end with a newline: %q", text[len(text)-5:])
	}
	if !strings.Contains(text, "\n  \"prds\": [") {
		t.Errorf("index should use 2-space indentation:\n%s", text)
	}
	if !strings.Contains(text, `"lastUpdated": "2026-01-02T03:04:05Z"`) {
		t.Errorf("metadata not stamped with clock:\n%s", text)
	}
	if !strings.Contains(text, `"totalPrds": 1`) {
		t.Errorf("metadata totalPrds missing:\n%s", text)
	}
}

func TestTaskIDsWrittenAsNumbers(t *testing.T) {
	s, root := newTestStore(t)
	idx := metastore.NewTaskIndex()
	idx.Tasks = append(idx.Tasks, &metastore.Task{
		ID: "7", Title: "Seven", Status: metastore.TaskPending,
		Dependencies: []metastore.TaskID{"3"},
	})
	if err := s.SaveTasks(context.Background(), idx); err != nil {
		t.Fatalf("SaveTasks failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, ".taskmaster", "tasks", "tasks.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"id": 7`) {
		t.Errorf("integer id should be written as a number:\n%s", data)
	}
}

func TestLoadParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		rel       string
		content   string
		wantField string
	}{
		{
			name:    "malformed JSON",
			rel:     ".taskmaster/prd/prds.json",
			content: `{"prds": [`,
		},
		{
			name:      "invalid status",
			rel:       ".taskmaster/prd/prds.json",
			content:   `{"prds": [{"id": "a", "fileName": "a.md", "status": "pending"}, {"id": "b", "fileName": "b.md", "status": "shipped"}]}`,
			wantField: "prds[1].status",
		},
		{
			name:      "negative file size",
			rel:       ".taskmaster/prd/prds.json",
			content:   `{"prds": [{"id": "a", "fileName": "a.md", "status": "done", "fileSize": -1}]}`,
			wantField: "prds[0].fileSize",
		},
		{
			name:      "duplicate ids",
			rel:       ".taskmaster/prd/prds.json",
			content:   `{"prds": [{"id": "a", "fileName": "a.md", "status": "done"}, {"id": "a", "fileName": "b.md", "status": "done"}]}`,
			wantField: "prds",
		},
		{
			name:      "task id of wrong type",
			rel:       ".taskmaster/tasks/tasks.json",
			content:   `{"tasks": [{"id": true, "title": "x"}]}`,
			wantField: "tasks[0].id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, root := newTestStore(t)
			writeIndex(t, root, tt.rel, tt.content)

			var err error
			if strings.Contains(tt.rel, "tasks") {
				_, err = s.LoadTasks(context.Background())
			} else {
				_, err = s.LoadPRDs(context.Background())
			}
			var pe *metastore.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if pe.Path != tt.rel {
				t.Errorf("Path = %q, want %q", pe.Path, tt.rel)
			}
			if pe.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", pe.Field, tt.wantField)
			}
		})
	}
}

func TestLoadIOError(t *testing.T) {
	s, root := newTestStore(t)
	// A directory where the index file should be cannot be read as a file.
	if err := os.MkdirAll(filepath.Join(root, ".taskmaster", "tasks", "tasks.json"), 0755); err != nil {
		t.Fatal(err)
	}
	_, err := s.LoadTasks(context.Background())
	var ioErr *metastore.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if ioErr.Op != "read" {
		t.Errorf("Op = %q, want read", ioErr.Op)
	}
}

func TestLegacyLayout(t *testing.T) {
	root := t.TempDir()
	s := New(fsutil.New(root), config.LegacyLayout(root))
	writeIndex(t, root, "tasks/tasks.json", `{"tasks": [{"id": 1, "title": "Legacy", "status": "done", "subtasks": [{"id": 1, "title": "Sub"}]}]}`)

	idx, err := s.LoadTasks(context.Background())
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if sub := idx.Find("1.1"); sub == nil || sub.Title != "Sub" {
		t.Errorf("subtask 1.1 = %+v", sub)
	}
}

func TestJSONPointerToPath(t *testing.T) {
	tests := map[string]string{
		"":                        "",
		"/prds/3/status":          "prds[3].status",
		"#/tasks/0/subtasks/1/id": "tasks[0].subtasks[1].id",
		"/metadata/a~1b":          "metadata.a/b",
	}
	for in, want := range tests {
		if got := jsonPointerToPath(in); got != want {
			t.Errorf("jsonPointerToPath(%q) = %q, want %q", in, got, want)
		}
	}
}
