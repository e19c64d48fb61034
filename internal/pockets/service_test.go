package pockets

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/ledger"
	"github.com/congo-pay/pockets/internal/notification"
	"github.com/congo-pay/pockets/internal/settlement"
	"github.com/congo-pay/pockets/internal/storage"
)

func newService(t *testing.T) (*Service, *notification.Recorder) {
	t.Helper()
	engine := ledger.NewEngine(storage.NewMemory())
	notes := &notification.Recorder{}
	return NewService(engine, settlement.NewReconciler(engine, nil, notes, nil), nil), notes
}

func TestServiceSubmitForwardsToSettlement(t *testing.T) {
	svc, notes := newService(t)
	ctx := context.Background()

	out, err := svc.Submit(ctx, "alice", ledger.Create("Main"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.Settlement != nil {
		t.Fatal("creates are not settled")
	}

	out, err = svc.Submit(ctx, "alice", ledger.Deposit("Main", amount.MustNew(2_500_000)).WithRequestID("r1"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if out.Settlement == nil || out.Settlement.Status != settlement.StatusSubmitted {
		t.Fatalf("expected settlement hand-off, got %+v", out.Settlement)
	}
	if len(notes.Messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(notes.Messages))
	}

	// Retries are answered from the log and not settled twice.
	out, err = svc.Submit(ctx, "alice", ledger.Deposit("Main", amount.MustNew(2_500_000)).WithRequestID("r1"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !out.Duplicate || out.Settlement != nil {
		t.Fatalf("expected duplicate without settlement, got %+v", out)
	}
	if len(notes.Messages) != 1 {
		t.Fatalf("expected no new notification, got %d", len(notes.Messages))
	}
}

func TestServiceOverview(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, op := range []ledger.Operation{
		ledger.Create("Rent"),
		ledger.Create("Fun"),
		ledger.Deposit("Fun", amount.MustNew(40)),
	} {
		if _, err := svc.Submit(ctx, "bob", op); err != nil {
			t.Fatalf("submit %s: %v", op.Kind, err)
		}
	}

	o, err := svc.Overview(ctx, "bob")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if o.Summary.Count != 2 || o.Summary.Total.Int64() != 40 {
		t.Fatalf("unexpected summary: %+v", o.Summary)
	}
	if o.Summary.Largest == nil || o.Summary.Largest.Name != "Fun" {
		t.Fatalf("unexpected largest pocket: %+v", o.Summary.Largest)
	}
	if o.Ledger.Pockets[0].Name != "Rent" {
		t.Fatalf("expected creation order, got %+v", o.Ledger.Pockets)
	}

	p, err := svc.Pocket(ctx, "bob", "fun")
	if err != nil {
		t.Fatalf("pocket: %v", err)
	}
	if p.Name != "Fun" || p.Balance.Int64() != 40 {
		t.Fatalf("unexpected pocket: %+v", p)
	}
	if _, err := svc.Pocket(ctx, "bob", "Travel"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveAmount(t *testing.T) {
	minor := int64(1_500_000)
	negative := int64(-1)

	cases := []struct {
		name    string
		minor   *int64
		stx     string
		want    int64
		wantErr error
	}{
		{"minor units", &minor, "", 1_500_000, nil},
		{"decimal", nil, "1.5", 1_500_000, nil},
		{"both", &minor, "1.5", 0, errAmbiguousAmount},
		{"neither", nil, "", 0, errMissingAmount},
		{"negative", &negative, "", 0, amount.ErrNegative},
		{"too precise", nil, "0.0000001", 0, amount.ErrFractional},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveAmount(tc.minor, tc.stx)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got.Int64() != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got.Int64())
			}
		})
	}
}
