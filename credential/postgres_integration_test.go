package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require GOGUARD_TEST_DATABASE_URL.

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("GOGUARD_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: GOGUARD_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("integration test skipped: postgres unreachable: %v", err)
	}
	return pool
}

func TestPostgresStore(t *testing.T) {
	pool := mustOpenTestPool(t)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	schema := fmt.Sprintf("goguard_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})

	store, err := NewPostgresStore(pool, schema)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := store.Put(ctx, john()); err != nil {
		t.Fatalf("put: %v", err)
	}

	rec, err := store.FindByUsername(ctx, "john")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.ID != "1" || len(rec.Roles) != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := store.UpdateRefreshHash(ctx, "1", "old"); err != nil {
		t.Fatalf("update: %v", err)
	}
	ok, err := store.SwapRefreshHash(ctx, "1", "stale", "next")
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
	ok, err = store.SwapRefreshHash(ctx, "1", "old", "next")
	if err != nil || !ok {
		t.Fatalf("expected swap, got ok=%v err=%v", ok, err)
	}
	if _, err := store.SwapRefreshHash(ctx, "404", "", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.UpdatePasswordHash(ctx, "404", "h"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	taken := john()
	taken.ID = "2"
	if err := store.Put(ctx, taken); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestNewPostgresStoreRejectsBadSchema(t *testing.T) {
	if _, err := NewPostgresStore(nil, "x"); err == nil {
		t.Fatal("expected nil pool to fail")
	}
	if _, err := NewPostgresStore(&pgxpool.Pool{}, "bad;schema"); err == nil {
		t.Fatal("expected invalid identifier to fail")
	}
}
