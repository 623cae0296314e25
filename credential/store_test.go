package credential

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type seedableStore interface {
	Store
	Swapper
	PasswordUpdater
}

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "gg"), mr
}

func john() Record {
	return Record{
		ID:           "1",
		Username:     "john",
		PasswordHash: "$argon2id$placeholder",
		Roles:        []string{"IL-LM-SUP", "product"},
	}
}

func storesUnderTest(t *testing.T) map[string]seedableStore {
	t.Helper()
	ctx := context.Background()

	mem := NewMemoryStore()
	if err := mem.Put(john()); err != nil {
		t.Fatalf("memory put: %v", err)
	}

	rs, _ := newRedisStoreTest(t)
	if err := rs.Put(ctx, john()); err != nil {
		t.Fatalf("redis put: %v", err)
	}

	return map[string]seedableStore{"memory": mem, "redis": rs}
}

func TestStoreLookups(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			byName, err := store.FindByUsername(ctx, "john")
			if err != nil {
				t.Fatalf("find by username: %v", err)
			}
			if byName.ID != "1" || len(byName.Roles) != 2 || byName.Roles[0] != "IL-LM-SUP" {
				t.Fatalf("unexpected record %+v", byName)
			}

			byID, err := store.FindByID(ctx, "1")
			if err != nil {
				t.Fatalf("find by id: %v", err)
			}
			if byID.Username != "john" {
				t.Fatalf("unexpected username %q", byID.Username)
			}

			if _, err := store.FindByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := store.FindByID(ctx, "404"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreUpdateRefreshHash(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.UpdateRefreshHash(ctx, "1", "h1"); err != nil {
				t.Fatalf("update: %v", err)
			}
			rec, err := store.FindByID(ctx, "1")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if rec.RefreshHash != "h1" {
				t.Fatalf("expected h1, got %q", rec.RefreshHash)
			}

			if err := store.UpdateRefreshHash(ctx, "1", ""); err != nil {
				t.Fatalf("clear: %v", err)
			}
			rec, err = store.FindByID(ctx, "1")
			if err != nil {
				t.Fatalf("find after clear: %v", err)
			}
			if rec.RefreshHash != "" {
				t.Fatalf("expected cleared hash, got %q", rec.RefreshHash)
			}

			if err := store.UpdateRefreshHash(ctx, "404", "h"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
			}
		})
	}
}

func TestStoreSwapRefreshHash(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.UpdateRefreshHash(ctx, "1", "old"); err != nil {
				t.Fatalf("seed hash: %v", err)
			}

			ok, err := store.SwapRefreshHash(ctx, "1", "stale", "next")
			if err != nil || ok {
				t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
			}
			ok, err = store.SwapRefreshHash(ctx, "1", "old", "next")
			if err != nil || !ok {
				t.Fatalf("expected swap, got ok=%v err=%v", ok, err)
			}
			rec, err := store.FindByID(ctx, "1")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if rec.RefreshHash != "next" {
				t.Fatalf("expected next, got %q", rec.RefreshHash)
			}

			if _, err := store.SwapRefreshHash(ctx, "404", "", "x"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreSwapSingleWinner(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.UpdateRefreshHash(ctx, "1", "old"); err != nil {
				t.Fatalf("seed hash: %v", err)
			}

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := store.SwapRefreshHash(ctx, "1", "old", NewID())
					if err != nil {
						t.Errorf("swap: %v", err)
						return
					}
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			if got := wins.Load(); got != 1 {
				t.Fatalf("expected exactly one winner, got %d", got)
			}
		})
	}
}

func TestStoreUpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.UpdatePasswordHash(ctx, "1", "$argon2id$next"); err != nil {
				t.Fatalf("update password: %v", err)
			}
			rec, err := store.FindByID(ctx, "1")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if rec.PasswordHash != "$argon2id$next" {
				t.Fatalf("unexpected hash %q", rec.PasswordHash)
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Put(john()); err != nil {
		t.Fatalf("put: %v", err)
	}

	rec, err := store.FindByID(ctx, "1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	rec.Roles[0] = "R&D-Lightstage"

	again, err := store.FindByID(ctx, "1")
	if err != nil {
		t.Fatalf("find again: %v", err)
	}
	if again.Roles[0] != "IL-LM-SUP" {
		t.Fatalf("caller mutation leaked into store: %v", again.Roles)
	}
}

func TestMemoryStorePutRejectsInvalidRecord(t *testing.T) {
	store := NewMemoryStore()
	for _, rec := range []Record{
		{Username: "x", PasswordHash: "h"},
		{ID: "1", PasswordHash: "h"},
		{ID: "1", Username: "x"},
	} {
		if err := store.Put(rec); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("record %+v: expected ErrInvalidRecord, got %v", rec, err)
		}
	}
}

func TestStorePutRenamesIndex(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	rs, _ := newRedisStoreTest(t)

	stores := map[string]struct {
		store Store
		put   func(Record) error
	}{
		"memory": {mem, mem.Put},
		"redis":  {rs, func(rec Record) error { return rs.Put(ctx, rec) }},
	}

	for name, tc := range stores {
		t.Run(name, func(t *testing.T) {
			if err := tc.put(john()); err != nil {
				t.Fatalf("put: %v", err)
			}
			renamed := john()
			renamed.Username = "johnny"
			if err := tc.put(renamed); err != nil {
				t.Fatalf("put renamed: %v", err)
			}

			if _, err := tc.store.FindByUsername(ctx, "john"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected old username to be unindexed, got %v", err)
			}
			rec, err := tc.store.FindByUsername(ctx, "johnny")
			if err != nil {
				t.Fatalf("find renamed: %v", err)
			}
			if rec.ID != "1" {
				t.Fatalf("unexpected record %+v", rec)
			}

			other := john()
			other.ID = "2"
			other.Username = "johnny"
			if err := tc.put(other); !errors.Is(err, ErrUsernameTaken) {
				t.Fatalf("expected ErrUsernameTaken, got %v", err)
			}
			if rec, err := tc.store.FindByUsername(ctx, "johnny"); err != nil || rec.ID != "1" {
				t.Fatalf("index changed by rejected put: %+v err=%v", rec, err)
			}
			if _, err := tc.store.FindByID(ctx, "2"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("rejected put stored a record: %v", err)
			}
		})
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	mr.SetError("ERR backend down")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := store.FindByUsername(ctx, "john"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := store.SwapRefreshHash(ctx, "1", "a", "b"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from swap, got %v", err)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}
