package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := b.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := b.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("expected v2, got %s", got)
	}

	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete missing key: %v", err)
	}

	for _, rec := range []string{"one", "two", "three"} {
		if err := b.Append(ctx, "owner-a", []byte(rec)); err != nil {
			t.Fatalf("append %s: %v", rec, err)
		}
	}
	if err := b.Append(ctx, "owner-b", []byte("x")); err != nil {
		t.Fatalf("append owner-b: %v", err)
	}

	records, err := b.Records(ctx, "owner-a")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 3 || string(records[0]) != "one" || string(records[2]) != "three" {
		t.Fatalf("unexpected records %q", records)
	}

	empty, err := b.Records(ctx, "nobody")
	if err != nil {
		t.Fatalf("records of empty stream: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no records, got %d", len(empty))
	}

	streams, err := b.Streams(ctx)
	if err != nil {
		t.Fatalf("streams: %v", err)
	}
	if len(streams) != 2 || streams[0] != "owner-a" || streams[1] != "owner-b" {
		t.Fatalf("unexpected streams %v", streams)
	}
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemory())
}

func TestRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	exerciseBackend(t, NewRedis(client, WithRedisPrefix("test:")))

	if !mr.Exists("test:log:owner-a") {
		t.Fatalf("expected stream stored under prefix")
	}
}

func TestPostgresBackend(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	pg := NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE ledger_kv, ledger_log`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseBackend(t, pg)
}

func TestFaultyCrashAfter(t *testing.T) {
	ctx := context.Background()
	f := NewFaulty(NewMemory())
	f.CrashAfter(1, 1)

	if err := f.Append(ctx, "s", []byte("a")); err != nil {
		t.Fatalf("first append should pass: %v", err)
	}
	if err := f.Append(ctx, "s", []byte("b")); !errors.Is(err, ErrInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if err := f.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("first put should pass: %v", err)
	}
	if err := f.Delete(ctx, "k"); !errors.Is(err, ErrInjected) {
		t.Fatalf("expected injected failure on delete, got %v", err)
	}

	f.Heal()
	if err := f.Append(ctx, "s", []byte("c")); err != nil {
		t.Fatalf("append after heal: %v", err)
	}
	records, _ := f.Records(ctx, "s")
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}
