package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nathoo/rivecore/config"
	"github.com/nathoo/rivecore/engine/state"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	b, err := NewBolt(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("bolt: %v", err)
	}
	s, err := NewSQLite(filepath.Join(dir, "sessions.sqlite"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	stores := map[string]Store{"memory": NewMemory(), "bolt": b, "sqlite": s}
	t.Cleanup(func() {
		for _, st := range stores {
			st.Close()
		}
	})
	return stores
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, st := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.Load(ctx, "alice"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			sess := state.NewSession("alice")
			sess.Vars["name"] = "Alice"
			sess.Topic = "sports"
			sess.Replies = []string{"hi alice"}
			if err := st.Save(ctx, sess); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			// Mutating after save must not change the stored copy.
			sess.Vars["name"] = "changed"

			got, err := st.Load(ctx, "alice")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got.Vars["name"] != "Alice" || got.Topic != "sports" || got.Replies[0] != "hi alice" {
				t.Errorf("loaded %+v", got)
			}

			sess.Vars["name"] = "Alicia"
			if err := st.Save(ctx, sess); err != nil {
				t.Fatal(err)
			}
			if err := st.Save(ctx, state.NewSession("bob")); err != nil {
				t.Fatal(err)
			}
			got, _ = st.Load(ctx, "alice")
			if got.Vars["name"] != "Alicia" {
				t.Errorf("overwrite failed: %q", got.Vars["name"])
			}

			users, err := st.Users(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
				t.Errorf("users = %v", users)
			}

			if err := st.Delete(ctx, "alice"); err != nil {
				t.Fatal(err)
			}
			if _, err := st.Load(ctx, "alice"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestBolt_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")
	b, err := NewBolt(path)
	if err != nil {
		t.Fatal(err)
	}
	sess := state.NewSession("carol")
	sess.Vars["x"] = "1"
	if err := b.Save(ctx, sess); err != nil {
		t.Fatal(err)
	}
	b.Close()

	b, err = NewBolt(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	got, err := b.Load(ctx, "carol")
	if err != nil || got.Vars["x"] != "1" {
		t.Errorf("after reopen: %+v, %v", got, err)
	}
}

func TestOpen(t *testing.T) {
	st, err := Open(config.Store{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*Memory); !ok {
		t.Errorf("default driver should be memory, got %T", st)
	}
	st, err = Open(config.Store{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "s.db")})
	if err != nil {
		t.Fatal(err)
	}
	st.Close()
	if _, err := Open(config.Store{Driver: "redis"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
