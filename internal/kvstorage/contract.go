package kvstorage

import (
	"context"
	"errors"
	"testing"
)

// RunContractTests runs the shared behavior suite against a KVStore. The
// factory must return a fresh, initialized store on every call.
func RunContractTests(t *testing.T, factory func(t *testing.T) KVStore) {
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, factory(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory(t)) })
	t.Run("FailIfExists", func(t *testing.T) { testFailIfExists(t, factory(t)) })
	t.Run("FailIfNotExists", func(t *testing.T) { testFailIfNotExists(t, factory(t)) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, factory(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory(t)) })
	t.Run("List", func(t *testing.T) { testList(t, factory(t)) })
	t.Run("InvalidKey", func(t *testing.T) { testInvalidKey(t, factory(t)) })
}

func testSetAndGet(t *testing.T, s KVStore) {
	ctx := context.Background()
	data := []byte(`{"name":"alice"}`)
	if err := s.Set(ctx, "key1", data, SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func testOverwrite(t *testing.T, s KVStore) {
	ctx := context.Background()
	if err := s.Set(ctx, "k", []byte("v1"), SetOptions{}); err != nil {
		t.Fatalf("Set v1: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v2"), SetOptions{}); err != nil {
		t.Fatalf("Set v2: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get = %q, want %q", got, "v2")
	}
}

func testFailIfExists(t *testing.T, s KVStore) {
	ctx := context.Background()
	if err := s.Set(ctx, "k", []byte("v1"), SetOptions{Exists: FailIfExists}); err != nil {
		t.Fatalf("Set first: %v", err)
	}
	err := s.Set(ctx, "k", []byte("v2"), SetOptions{Exists: FailIfExists})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("error = %v, want ErrAlreadyExists", err)
	}
	// Original value should be preserved
	got, _ := s.Get(ctx, "k")
	if string(got) != "v1" {
		t.Errorf("Get = %q, want %q (original)", got, "v1")
	}
}

func testFailIfNotExists(t *testing.T, s KVStore) {
	ctx := context.Background()
	err := s.Set(ctx, "missing", []byte("v"), SetOptions{Exists: FailIfNotExists})
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("error = %v, want ErrKeyNotFound", err)
	}
	if err := s.Set(ctx, "k", []byte("v1"), SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v2"), SetOptions{Exists: FailIfNotExists}); err != nil {
		t.Fatalf("Set with FailIfNotExists: %v", err)
	}
	got, _ := s.Get(ctx, "k")
	if string(got) != "v2" {
		t.Errorf("Get = %q, want %q", got, "v2")
	}
}

func testGetNotFound(t *testing.T, s KVStore) {
	_, err := s.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("error = %v, want ErrKeyNotFound", err)
	}
}

func testDelete(t *testing.T, s KVStore) {
	ctx := context.Background()
	if err := s.Set(ctx, "k", []byte("v"), SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get after Delete: error = %v, want ErrKeyNotFound", err)
	}
	if err := s.Delete(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("second Delete: error = %v, want ErrKeyNotFound", err)
	}
}

func testList(t *testing.T, s KVStore) {
	ctx := context.Background()
	keys, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("List = %v, want empty", keys)
	}
	for _, k := range []string{"c", "a", "b"} {
		if err := s.Set(ctx, k, []byte("v"), SetOptions{}); err != nil {
			t.Fatalf("Set(%q): %v", k, err)
		}
	}
	keys, err = s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("List = %v, want %v", keys, want)
	}
	for i, k := range keys {
		if k != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, k, want[i])
		}
	}
}

func testInvalidKey(t *testing.T, s KVStore) {
	ctx := context.Background()
	for _, key := range []string{"", "a/b", "a\\b"} {
		if err := s.Set(ctx, key, []byte("v"), SetOptions{}); err == nil {
			t.Errorf("Set(%q) should fail", key)
		}
	}
}
