package configservice

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"taskmaster-lite/internal/config"
)

func mkdirs(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := os.MkdirAll(p, 0755); err != nil {
			t.Fatal(err)
		}
	}
}

func touch(t *testing.T, p string) {
	t.Helper()
	mkdirs(t, filepath.Dir(p))
	if err := os.WriteFile(p, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFindProjectRootWalksUp(t *testing.T) {
	t.Setenv(config.EnvProjectDir, "")
	root := t.TempDir()
	mkdirs(t, filepath.Join(root, ".git"), filepath.Join(root, ".taskmaster"), filepath.Join(root, "src", "pkg"))

	got, err := FindProjectRoot(filepath.Join(root, "src", "pkg"))
	if err != nil {
		t.Fatalf("FindProjectRoot failed: %v", err)
	}
	if got != root {
		t.Errorf("root = %q, want %q", got, root)
	}
}

func TestFindProjectRootLegacy(t *testing.T) {
	t.Setenv(config.EnvProjectDir, "")
	root := t.TempDir()
	mkdirs(t, filepath.Join(root, ".git"))
	touch(t, filepath.Join(root, "tasks", "tasks.json"))

	got, err := FindProjectRoot(root)
	if err != nil {
		t.Fatalf("FindProjectRoot failed: %v", err)
	}
	if got != root {
		t.Errorf("root = %q, want %q", got, root)
	}
}

func TestFindProjectRootStopsAtGitRoot(t *testing.T) {
	t.Setenv(config.EnvProjectDir, "")
	outer := t.TempDir()
	mkdirs(t, filepath.Join(outer, ".taskmaster"))
	repo := filepath.Join(outer, "repo")
	mkdirs(t, filepath.Join(repo, ".git"))

	_, err := FindProjectRoot(repo)
	if !errors.Is(err, ErrNoProject) {
		t.Errorf("expected ErrNoProject, got %v", err)
	}
}

func TestFindProjectRootEnvOverride(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, filepath.Join(root, ".taskmaster"))
	t.Setenv(config.EnvProjectDir, filepath.Join(root, ".taskmaster"))

	got, err := FindProjectRoot("/")
	if err != nil {
		t.Fatalf("FindProjectRoot failed: %v", err)
	}
	if got != root {
		t.Errorf("root = %q, want %q", got, root)
	}
}

func TestResolveLayout(t *testing.T) {
	t.Run("empty project uses new layout", func(t *testing.T) {
		root := t.TempDir()
		if ResolveLayout(root).Legacy {
			t.Error("expected consolidated layout")
		}
	})
	t.Run("legacy only", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "tasks", "tasks.json"))
		if !ResolveLayout(root).Legacy {
			t.Error("expected legacy layout")
		}
	})
	t.Run("both prefer new", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "tasks", "tasks.json"))
		touch(t, filepath.Join(root, ".taskmaster", "tasks", "tasks.json"))
		if ResolveLayout(root).Legacy {
			t.Error("expected consolidated layout when both exist")
		}
	})
}

func TestOpenAppliesEnvAndValidates(t *testing.T) {
	t.Setenv(config.EnvActor, "ci-bot")
	t.Setenv(config.EnvBackend, "")
	t.Setenv(config.EnvLogLevel, "")
	root := t.TempDir()

	p, err := Open(root)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if v, _ := p.Config.Get(config.KeyActor); v != "ci-bot" {
		t.Errorf("actor = %q, want ci-bot", v)
	}

	if err := p.Config.Set(config.KeyStorageBackend, "mongo"); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(root); err == nil {
		t.Error("expected validation error for unknown backend")
	}
}

func TestOpenConfigPrefersTOMLWhenAlone(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, ".taskmaster", "config.toml")
	mkdirs(t, filepath.Dir(p))
	if err := os.WriteFile(p, []byte("[log]\nlevel = \"debug\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := OpenConfig(config.NewLayout(root))
	if err != nil {
		t.Fatalf("OpenConfig failed: %v", err)
	}
	if store.Path() != p {
		t.Errorf("Path = %q, want %q", store.Path(), p)
	}
	if v, _ := store.Get(config.KeyLogLevel); v != "debug" {
		t.Errorf("log.level = %q, want debug", v)
	}
}
