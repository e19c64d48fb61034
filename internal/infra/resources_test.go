package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/congo-pay/pockets/internal/config"
	"github.com/congo-pay/pockets/internal/logging"
	"github.com/congo-pay/pockets/internal/storage"
)

func TestOpenMemoryBackend(t *testing.T) {
	res, err := Open(context.Background(), config.Config{StoreBackend: config.BackendMemory, StoreTimeout: time.Second}, logging.Discard())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer res.Close(logging.Discard())

	if res.Backend == nil {
		t.Fatal("no backend selected")
	}
	if _, ok := res.Backend.(*storage.Redis); ok {
		t.Fatal("memory config selected the redis backend")
	}
	if res.DB != nil || res.Cache != nil {
		t.Fatal("no connections expected without urls")
	}
}

func TestOpenRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Config{
		AppName:      "pockets-test",
		StoreBackend: config.BackendRedis,
		RedisURL:     "redis://" + mr.Addr(),
		StoreTimeout: time.Second,
	}
	res, err := Open(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer res.Close(logging.Discard())

	if _, ok := res.Backend.(*storage.Redis); !ok {
		t.Fatalf("backend = %T, want *storage.Redis", res.Backend)
	}
	if err := res.Backend.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestOpenUnreachableRedis(t *testing.T) {
	cfg := config.Config{
		StoreBackend: config.BackendRedis,
		RedisURL:     "redis://127.0.0.1:1",
		StoreTimeout: 200 * time.Millisecond,
	}
	if _, err := Open(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatal("expected connection error")
	}
}
