package file_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/solace/pkg/session"
	"github.com/MrWong99/solace/pkg/store"
	"github.com/MrWong99/solace/pkg/store/file"
)

func newStore(t *testing.T) *file.Store {
	t.Helper()
	s, err := file.New(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_EmptyRoot(t *testing.T) {
	t.Parallel()
	if _, err := file.New(""); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestGet_Missing(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, err := s.Get(context.Background(), store.KeySession)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSetGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	if err := s.Set(ctx, "k", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Get() = %s", got)
	}

	if _, err := os.Stat(filepath.Join(s.Root(), "k.json")); err != nil {
		t.Errorf("value file missing: %v", err)
	}
}

func TestSet_Overwrite_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	for _, v := range []string{"one", "two", "three"} {
		if err := s.Set(ctx, "k", []byte(v)); err != nil {
			t.Fatalf("Set(%s) error = %v", v, err)
		}
	}
	got, _ := s.Get(ctx, "k")
	if string(got) != "three" {
		t.Errorf("Get() = %s, want three", got)
	}

	entries, err := os.ReadDir(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("root holds %v, want only k.json", names)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)
	_ = s.Set(ctx, "k", []byte("v"))

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
}

func TestInvalidKeys(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "a/b", `a\b`, ".hidden"} {
		t.Run(key, func(t *testing.T) {
			if err := s.Set(ctx, key, []byte("x")); !errors.Is(err, file.ErrInvalidKey) {
				t.Errorf("Set(%q) error = %v, want ErrInvalidKey", key, err)
			}
		})
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := os.RemoveAll(s.Root()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping() after root removal: want error")
	}
}

func TestSessionSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")

	first, err := file.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSession(ctx, first, []session.Entry{{User: "hello", AI: "hi"}}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	second, err := file.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.LoadSession(ctx, second)
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if len(got) != 1 || got[0].User != "hello" || got[0].AI != "hi" {
		t.Errorf("LoadSession() = %+v", got)
	}
}
