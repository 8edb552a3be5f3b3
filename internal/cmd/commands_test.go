package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/prdservice"
)

func TestCheckReportsAndFixesHashDrift(t *testing.T) {
	app, out, proj := setupTestApp(t)
	prd := proj.GenerateLinked(t, 1, 1)[0]
	if err := proj.FS.WriteFile(prd.FilePath, []byte("# Generated 0, edited\n")); err != nil {
		t.Fatal(err)
	}

	if err := run(t, newCheckCmd(NewTestProvider(app))); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "hash_mismatch") {
		t.Errorf("expected hash_mismatch in output, got:\n%s", got)
	}
	if !strings.Contains(got, "tm check --fix") {
		t.Errorf("expected fix hint in output, got:\n%s", got)
	}

	out.Reset()
	if err := run(t, newCheckCmd(NewTestProvider(app)), "--fix"); err != nil {
		t.Fatalf("check --fix failed: %v", err)
	}
	if !strings.Contains(out.String(), "Auto-fix:") {
		t.Errorf("expected auto-fix summary, got:\n%s", out.String())
	}

	out.Reset()
	if err := run(t, newCheckCmd(NewTestProvider(app))); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !strings.Contains(out.String(), "No problems found.") {
		t.Errorf("expected a clean report after fixing, got:\n%s", out.String())
	}
}

func TestCheckJSON(t *testing.T) {
	app, out, proj := setupTestApp(t)
	proj.GenerateLinked(t, 2, 1)
	app.JSON = true

	if err := run(t, newCheckCmd(NewTestProvider(app))); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out.String())
	}
	for _, key := range []string{"overall", "fileIntegrity", "linkingConsistency"} {
		if _, ok := report[key]; !ok {
			t.Errorf("report is missing %q", key)
		}
	}
	if _, ok := report["autoFixResults"]; ok {
		t.Error("autoFixResults present without --fix")
	}
}

func TestStatsForPRD(t *testing.T) {
	app, out, proj := setupTestApp(t)
	proj.GenerateLinked(t, 1, 2)
	proj.Tasks.Tasks[0].Status = metastore.TaskDone
	proj.Save(t)

	if err := run(t, newStatsCmd(NewTestProvider(app)), "prd-gen000"); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out.String(), "Completion:   50%") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	proj.Reload(t)
	p := proj.PRDs.FindByID("prd-gen000")
	if p.Status != metastore.PRDPending {
		t.Errorf("stats changed status to %s", p.Status)
	}
	if p.TaskStats.CompletedTasks != 1 {
		t.Errorf("stats not persisted: %+v", p.TaskStats)
	}
}

func TestStatsUnknownPRD(t *testing.T) {
	app, _, _ := setupTestApp(t)
	if err := run(t, newStatsCmd(NewTestProvider(app)), "prd-nope"); err == nil {
		t.Error("expected an error for an unknown PRD")
	}
}

func TestStatsSummary(t *testing.T) {
	app, out, proj := setupTestApp(t)
	proj.GenerateLinked(t, 3, 1)

	if err := run(t, newStatsCmd(NewTestProvider(app)), "--refresh"); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "PRDs:               3") {
		t.Errorf("expected 3 PRDs, got:\n%s", got)
	}
	if !strings.Contains(got, "Linked tasks:       3") {
		t.Errorf("expected 3 linked tasks, got:\n%s", got)
	}
}

func TestOrganizeDryRun(t *testing.T) {
	app, out, proj := setupTestApp(t)
	prd := proj.AddPRD(t, "prd-a", metastore.PRDPending, "# A\n")
	prd.Status = metastore.PRDDone
	proj.Save(t)

	if err := run(t, newOrganizeCmd(NewTestProvider(app)), "--dry-run"); err != nil {
		t.Fatalf("organize failed: %v", err)
	}
	if !strings.Contains(out.String(), "Would move 1, already correct 0, errors 0") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
	if !proj.FS.Exists(".taskmaster/prd/pending/prd-a.md") {
		t.Error("dry run moved the file")
	}

	out.Reset()
	if err := run(t, newOrganizeCmd(NewTestProvider(app))); err != nil {
		t.Fatalf("organize failed: %v", err)
	}
	if !strings.Contains(out.String(), "Moved 1") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
	if !proj.FS.Exists(".taskmaster/prd/done/prd-a.md") {
		t.Error("file was not moved into done/")
	}
}

func TestSyncStatus(t *testing.T) {
	app, out, proj := setupTestApp(t)
	proj.GenerateLinked(t, 1, 1)
	proj.Tasks.Tasks[0].Status = metastore.TaskDone
	proj.Save(t)

	if err := run(t, newSyncStatusCmd(NewTestProvider(app))); err != nil {
		t.Fatalf("sync-status failed: %v", err)
	}
	if !strings.Contains(out.String(), "Updated 1, unchanged 0, errors 0") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	proj.Reload(t)
	p := proj.PRDs.FindByID("prd-gen000")
	if p.Status != metastore.PRDDone {
		t.Errorf("status = %s, want done", p.Status)
	}
	if !proj.FS.Exists(".taskmaster/prd/done/prd-gen000.md") {
		t.Error("file did not move with the status")
	}
}

func writeSourceDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPRDAddListShow(t *testing.T) {
	app, out, _ := setupTestApp(t)
	src := writeSourceDoc(t, "auth.md", "# Authentication\n\nDetails.\n")

	if err := run(t, newPRDCmd(NewTestProvider(app)), "add", src, "--priority", "high", "--tags", "auth,q3"); err != nil {
		t.Fatalf("prd add failed: %v", err)
	}
	if !strings.Contains(out.String(), "Added prd-") {
		t.Errorf("unexpected add output:\n%s", out.String())
	}

	prds, err := app.Service.ListPRDs(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(prds) != 1 {
		t.Fatalf("got %d PRDs, want 1", len(prds))
	}
	id := prds[0].ID

	out.Reset()
	if err := run(t, newPRDCmd(NewTestProvider(app)), "list", "--status", "pending"); err != nil {
		t.Fatalf("prd list failed: %v", err)
	}
	if !strings.Contains(out.String(), id) || !strings.Contains(out.String(), "Authentication") {
		t.Errorf("unexpected list output:\n%s", out.String())
	}

	out.Reset()
	if err := run(t, newPRDCmd(NewTestProvider(app)), "show", id); err != nil {
		t.Fatalf("prd show failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Priority:   high", "Tags:       auth, q3", ".taskmaster/prd/pending/auth.md"} {
		if !strings.Contains(got, want) {
			t.Errorf("show output missing %q:\n%s", want, got)
		}
	}
}

func TestPRDListRejectsUnknownStatus(t *testing.T) {
	app, _, _ := setupTestApp(t)
	if err := run(t, newPRDCmd(NewTestProvider(app)), "list", "--status", "shipped"); err == nil {
		t.Error("expected an error for an unknown status")
	}
}

func TestPRDDelete(t *testing.T) {
	app, out, proj := setupTestApp(t)
	proj.GenerateLinked(t, 2, 1)

	if err := run(t, newPRDCmd(NewTestProvider(app)), "delete", "prd-gen001"); err != nil {
		t.Fatalf("prd delete failed: %v", err)
	}
	if !strings.Contains(out.String(), "Archived prd-gen001") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	out.Reset()
	if err := run(t, newPRDCmd(NewTestProvider(app)), "delete", "prd-gen000", "--force"); err != nil {
		t.Fatalf("prd delete --force failed: %v", err)
	}
	if !strings.Contains(out.String(), "Deleted prd-gen000 and 1 tasks") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	proj.Reload(t)
	if proj.PRDs.FindByID("prd-gen000") != nil {
		t.Error("record still present after forced delete")
	}
	if got := proj.PRDs.FindByID("prd-gen001").Status; got != metastore.PRDArchived {
		t.Errorf("prd-gen001 status = %s, want archived", got)
	}
	if len(proj.Tasks.Tasks) != 1 {
		t.Errorf("got %d tasks, want 1", len(proj.Tasks.Tasks))
	}
}

func TestPRDScan(t *testing.T) {
	app, out, proj := setupTestApp(t)
	if err := proj.FS.WriteFile(".taskmaster/prd/in-progress/found.md", []byte("# Found\n")); err != nil {
		t.Fatal(err)
	}

	if err := run(t, newPRDCmd(NewTestProvider(app)), "scan"); err != nil {
		t.Fatalf("prd scan failed: %v", err)
	}
	if !strings.Contains(out.String(), "1 succeeded, 0 skipped, 0 failed") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestVersionsHistory(t *testing.T) {
	app, out, _ := setupTestApp(t)
	src := writeSourceDoc(t, "billing.md", "# Billing\n")
	p, err := app.Service.AddPRD(context.Background(), src, prdservice.AddOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if err := run(t, newVersionsCmd(NewTestProvider(app)), "history", p.ID); err != nil {
		t.Fatalf("versions history failed: %v", err)
	}
	if !strings.Contains(out.String(), p.ID+": 1 versions") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestVersionsHistoryUnknownPRD(t *testing.T) {
	app, _, _ := setupTestApp(t)
	if err := run(t, newVersionsCmd(NewTestProvider(app)), "history", "prd-nope"); err == nil {
		t.Error("expected an error for an unknown PRD")
	}
}
