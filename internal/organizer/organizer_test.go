package organizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/metastore"
)

type fixture struct {
	root   string
	fs     fsutil.FS
	layout config.Layout
	prds   *metastore.PRDIndex
}

// newFixture lays out three PRDs: one in place, one whose status changed
// after the file was filed, and one whose recorded path is stale.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{root: root, fs: fsutil.New(root), layout: config.NewLayout(root), prds: metastore.NewPRDIndex()}
	f.add(t, "prd-ok", "ok.md", metastore.PRDPending, ".taskmaster/prd/pending/ok.md", ".taskmaster/prd/pending/ok.md")
	f.add(t, "prd-done", "done.md", metastore.PRDDone, ".taskmaster/prd/pending/done.md", ".taskmaster/prd/pending/done.md")
	f.add(t, "prd-stale", "stale.md", metastore.PRDInProgress, ".taskmaster/prd/in-progress/stale.md", "prd/in-progress/stale.md")
	return f
}

func (f *fixture) add(t *testing.T, id, name string, status metastore.PRDStatus, onDisk, recorded string) {
	t.Helper()
	if err := f.fs.WriteFile(onDisk, []byte(id)); err != nil {
		t.Fatal(err)
	}
	f.prds.PRDs = append(f.prds.PRDs, &metastore.PRD{ID: id, FileName: name, Status: status, FilePath: recorded})
}

// snapshot returns every file under root with its contents.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestOrganizeAll(t *testing.T) {
	f := newFixture(t)
	org := New(f.fs, f.layout)

	res, err := org.OrganizeAll(context.Background(), f.prds, Options{})
	if err != nil {
		t.Fatalf("OrganizeAll: %v", err)
	}
	if res.Moved != 2 || res.AlreadyCorrect != 1 || res.Errors != 0 {
		t.Fatalf("result = %+v", res)
	}
	if !res.Changed() {
		t.Error("Changed should be true after moves")
	}
	if got := f.prds.FindByID("prd-done").FilePath; got != ".taskmaster/prd/done/done.md" {
		t.Errorf("prd-done path = %q", got)
	}
	if got := f.prds.FindByID("prd-stale").FilePath; got != ".taskmaster/prd/in-progress/stale.md" {
		t.Errorf("prd-stale path = %q", got)
	}
	if f.fs.Exists(".taskmaster/prd/pending/done.md") || !f.fs.Exists(".taskmaster/prd/done/done.md") {
		t.Error("done.md was not moved")
	}

	again, err := org.OrganizeAll(context.Background(), f.prds, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if again.Moved != 0 || again.AlreadyCorrect != 3 {
		t.Errorf("second run = %+v, want everything in place", again)
	}
}

func TestOrganizeAllDryRunTouchesNothing(t *testing.T) {
	f := newFixture(t)
	before := snapshot(t, f.root)

	dry, err := New(f.fs, f.layout).OrganizeAll(context.Background(), f.prds, Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	after := snapshot(t, f.root)
	if len(before) != len(after) {
		t.Fatalf("files changed: %v -> %v", keys(before), keys(after))
	}
	for k, v := range before {
		if after[k] != v {
			t.Errorf("%s changed during dry run", k)
		}
	}
	if got := f.prds.FindByID("prd-done").FilePath; got != ".taskmaster/prd/pending/done.md" {
		t.Errorf("dry run repointed record to %q", got)
	}
	if dry.Changed() {
		t.Error("a dry run never reports changes to persist")
	}

	applied, err := New(f.fs, f.layout).OrganizeAll(context.Background(), f.prds, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if dry.Moved != applied.Moved || dry.AlreadyCorrect != applied.AlreadyCorrect || dry.Errors != applied.Errors {
		t.Errorf("dry run %+v disagrees with real run %+v", dry, applied)
	}
}

func TestOrganizeAllRejectsCollision(t *testing.T) {
	f := newFixture(t)
	if err := f.fs.WriteFile(".taskmaster/prd/done/done.md", []byte("someone else")); err != nil {
		t.Fatal(err)
	}

	res, err := New(f.fs, f.layout).OrganizeAll(context.Background(), f.prds, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Errors != 1 {
		t.Fatalf("result = %+v, want one collision", res)
	}
	var failed *Detail
	for i := range res.Details {
		if res.Details[i].PRDID == "prd-done" {
			failed = &res.Details[i]
		}
	}
	if failed == nil || !errors.Is(failed.Err, fsutil.ErrCollision) {
		t.Fatalf("prd-done detail = %+v", failed)
	}
	data, _ := f.fs.ReadFile(".taskmaster/prd/done/done.md")
	if string(data) != "someone else" {
		t.Error("existing destination was overwritten")
	}
	if f.prds.FindByID("prd-done").FilePath != ".taskmaster/prd/pending/done.md" {
		t.Error("record repointed despite the rejected move")
	}
}

func TestOrganizeAllMissingFile(t *testing.T) {
	f := newFixture(t)
	f.prds.PRDs = append(f.prds.PRDs, &metastore.PRD{ID: "prd-gone", FileName: "gone.md", Status: metastore.PRDPending})

	res, err := New(f.fs, f.layout).OrganizeAll(context.Background(), f.prds, Options{})
	if err != nil {
		t.Fatal(err)
	}
	last := res.Details[len(res.Details)-1]
	if last.Outcome != metastore.OutcomeFailed || !errors.Is(last.Err, ErrFileNotFound) {
		t.Errorf("missing file detail = %+v", last)
	}
}

func TestOrganizeAllCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(f.fs, f.layout).OrganizeAll(ctx, f.prds, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(res.Details) != 0 {
		t.Errorf("processed %d PRDs after cancellation", len(res.Details))
	}
}
