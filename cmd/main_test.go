package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestMain builds the binary once for all tests in this package.
var testBinary string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "tm-test-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)

	testBinary = filepath.Join(tmpDir, "tm")
	cmd := exec.Command("go", "build", "-o", testBinary, ".")
	cmd.Dir = "."
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("failed to build test binary: " + string(out))
	}

	os.Exit(m.Run())
}

func runTm(t *testing.T, dir string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	cmd := exec.Command(testBinary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TM_ACTOR=e2e", "TASKMASTER_DIR=")

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	exitCode = 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		t.Fatalf("failed to run tm: %v", err)
	}

	return outBuf.String(), errBuf.String(), exitCode
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	stdout, stderr, code := runTm(t, dir, args...)
	if code != 0 {
		t.Fatalf("tm %s failed (exit %d): stdout=%s stderr=%s", strings.Join(args, " "), code, stdout, stderr)
	}
	return stdout
}

func TestMain_RunError(t *testing.T) {
	origRun := run
	origExit := osExit
	defer func() {
		run = origRun
		osExit = origExit
	}()

	var gotCode int
	osExit = func(code int) { gotCode = code }
	run = func() error { return fmt.Errorf("something went wrong") }

	origStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	main()

	w.Close()
	os.Stderr = origStderr

	var buf bytes.Buffer
	buf.ReadFrom(r)

	if gotCode != 1 {
		t.Errorf("expected exit code 1, got %d", gotCode)
	}
	if !strings.Contains(buf.String(), "something went wrong") {
		t.Errorf("expected error on stderr, got: %s", buf.String())
	}
}

func TestMain_RunSuccess(t *testing.T) {
	origRun := run
	origExit := osExit
	defer func() {
		run = origRun
		osExit = origExit
	}()

	gotCode := -1
	osExit = func(code int) { gotCode = code }
	run = func() error { return nil }

	main()

	if gotCode != -1 {
		t.Errorf("expected osExit not to be called, but got code %d", gotCode)
	}
}

func TestHelp(t *testing.T) {
	stdout, _, exitCode := runTm(t, t.TempDir(), "--help")

	if exitCode != 0 {
		t.Errorf("expected exit code 0, got %d", exitCode)
	}
	for _, name := range []string{"init", "check", "stats", "organize", "sync-status", "prd", "versions", "migrate", "config", "version"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("expected command %q to be listed in help output", name)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, stderr, exitCode := runTm(t, t.TempDir(), "nonexistent-command")

	if exitCode == 0 {
		t.Error("expected non-zero exit code for unknown command")
	}
	if !strings.Contains(stderr, "unknown command") {
		t.Errorf("expected error about unknown command, got: %s", stderr)
	}
}

func TestNoProject(t *testing.T) {
	_, _, exitCode := runTm(t, t.TempDir(), "check")
	if exitCode == 0 {
		t.Error("check outside a project should fail")
	}
}

func TestWorkflow(t *testing.T) {
	dir := t.TempDir()

	if out := mustRun(t, dir, "init"); !strings.Contains(out, "Initialized") {
		t.Errorf("expected init success message, got: %s", out)
	}

	doc := filepath.Join(t.TempDir(), "search.md")
	if err := os.WriteFile(doc, []byte("# Search\n\nFull-text search.\n"), 0644); err != nil {
		t.Fatal(err)
	}
	mustRun(t, dir, "prd", "add", doc, "--priority", "high")

	var prds []struct {
		ID       string `json:"id"`
		FilePath string `json:"filePath"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, dir, "--json", "prd", "list")), &prds); err != nil {
		t.Fatalf("invalid prd list JSON: %v", err)
	}
	if len(prds) != 1 {
		t.Fatalf("got %d PRDs, want 1", len(prds))
	}

	if out := mustRun(t, dir, "check"); !strings.Contains(out, "No problems found.") {
		t.Errorf("fresh project should be clean, got: %s", out)
	}

	// Edit the document behind the index's back.
	if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(prds[0].FilePath)), []byte("# Search\n\nRevised.\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if out := mustRun(t, dir, "check"); !strings.Contains(out, "hash_mismatch") {
		t.Errorf("expected hash_mismatch, got: %s", out)
	}
	mustRun(t, dir, "check", "--fix")
	if out := mustRun(t, dir, "check"); !strings.Contains(out, "No problems found.") {
		t.Errorf("check after --fix should be clean, got: %s", out)
	}

	if out := mustRun(t, dir, "versions", "history", prds[0].ID); !strings.Contains(out, prds[0].ID+":") {
		t.Errorf("unexpected history output: %s", out)
	}
}
