package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/ledger"
	"github.com/congo-pay/pockets/internal/storage"
)

func TestEngineReportsOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())
	engine := ledger.NewEngine(storage.NewMemory(), ledger.WithRecorder(m))
	ctx := context.Background()

	if _, err := engine.Submit(ctx, "alice", ledger.Create("Main")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Submit(ctx, "alice", ledger.Spend("Main", amount.MustNew(5), "dest")); err == nil {
		t.Fatalf("expected insufficient funds")
	}

	if got := testutil.ToFloat64(m.Operations.WithLabelValues("create", "committed", "")); got != 1 {
		t.Fatalf("committed creates = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Operations.WithLabelValues("spend", "rejected", "insufficient_funds")); got != 1 {
		t.Fatalf("rejected spends = %v, want 1", got)
	}
	// The first Submit loaded the owner through a replay.
	if got := testutil.ToFloat64(m.Replays); got != 1 {
		t.Fatalf("replays = %v, want 1", got)
	}
}

func TestHaltedOwnersGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetHaltedOwners(2)
	if got := testutil.ToFloat64(m.HaltedOwners); got != 2 {
		t.Fatalf("halted = %v, want 2", got)
	}
}
