package config

import (
	"strings"
	"testing"

	"taskmaster-lite/internal/metastore"
)

func TestApplyDefaults(t *testing.T) {
	s := &memStore{data: map[string]string{
		"actor": "alice",
	}}

	if err := ApplyDefaults(s); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}

	// Pre-existing key should not be overwritten
	if v, _ := s.Get("actor"); v != "alice" {
		t.Errorf("actor = %q, want %q (should not be overwritten)", v, "alice")
	}
	if v, ok := s.Get(KeyStorageBackend); !ok || v != BackendJSON {
		t.Errorf("storage.backend = %q, %v; want %q, true", v, ok, BackendJSON)
	}
	if v, ok := s.Get(KeyLogLevel); !ok || v != "info" {
		t.Errorf("log.level = %q, %v; want %q, true", v, ok, "info")
	}
}

func TestLookupFallsBackToDefault(t *testing.T) {
	s := &memStore{data: map[string]string{KeyLogLevel: "debug"}}

	if got := Lookup(s, KeyLogLevel); got != "debug" {
		t.Errorf("Lookup(log.level) = %q, want debug", got)
	}
	if got := Lookup(s, KeyLogFormat); got != "text" {
		t.Errorf("Lookup(log.format) = %q, want text", got)
	}
	if got := Lookup(nil, KeyStorageBackend); got != BackendJSON {
		t.Errorf("Lookup(nil) = %q, want %q", got, BackendJSON)
	}
	if !Bool(s, KeyVersionsEnabled) {
		t.Error("versions.enabled should default to true")
	}
}

func TestValidate(t *testing.T) {
	s := &memStore{data: map[string]string{
		KeyStorageBackend: "postgres",
		KeyLogLevel:       "info",
	}}
	err := Validate(s)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "storage.backend") {
		t.Errorf("error should name storage.backend: %v", err)
	}

	s.data[KeyStorageBackend] = BackendSQLite
	if err := Validate(s); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvActor, "env-actor")
	t.Setenv(EnvBackend, BackendSQLite)
	t.Setenv(EnvLogLevel, "")

	s := &memStore{data: map[string]string{
		KeyActor:    "${USER}",
		KeyLogLevel: "warn",
	}}
	ApplyEnvOverrides(s)

	if v, _ := s.Get(KeyActor); v != "env-actor" {
		t.Errorf("actor = %q, want %q", v, "env-actor")
	}
	if v, _ := s.Get(KeyStorageBackend); v != BackendSQLite {
		t.Errorf("storage.backend = %q, want %q", v, BackendSQLite)
	}
	if v, _ := s.Get(KeyLogLevel); v != "warn" {
		t.Errorf("log.level = %q, want warn (should not change)", v)
	}
}

func TestLayouts(t *testing.T) {
	l := NewLayout("/proj")
	if l.PRDIndex != ".taskmaster/prd/prds.json" {
		t.Errorf("PRDIndex = %q", l.PRDIndex)
	}
	if got := l.StatusDir(metastore.PRDInProgress); got != ".taskmaster/prd/in-progress" {
		t.Errorf("StatusDir = %q", got)
	}
	p := &metastore.PRD{FileName: "billing.md", Status: metastore.PRDDone}
	if got := l.ExpectedPath(p); got != ".taskmaster/prd/done/billing.md" {
		t.Errorf("ExpectedPath = %q", got)
	}

	legacy := LegacyLayout("/proj")
	if !legacy.Legacy || legacy.TaskIndex != "tasks/tasks.json" {
		t.Errorf("legacy layout = %+v", legacy)
	}
	if got := legacy.StatusDir(metastore.PRDPending); got != "prd/pending" {
		t.Errorf("legacy StatusDir = %q", got)
	}
}

func TestMigrateLegacyPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"prd/pending/billing.md", ".taskmaster/prd/pending/billing.md", true},
		{"./prd/done/a.md", ".taskmaster/prd/done/a.md", true},
		{".taskmaster/prd/done/a.md", ".taskmaster/prd/done/a.md", false},
		{"docs/a.md", "docs/a.md", false},
	}
	for _, tt := range tests {
		got, ok := MigrateLegacyPath(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("MigrateLegacyPath(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

type memStore struct {
	data map[string]string
}

func (m *memStore) Get(key string) (string, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *memStore) Set(key, value string) error {
	m.data[key] = value
	return nil
}

func (m *memStore) SetInMemory(key, value string) {
	m.data[key] = value
}

func (m *memStore) Unset(key string) error {
	delete(m.data, key)
	return nil
}

func (m *memStore) All() map[string]string {
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}
