package settlement

import (
	"context"

	"github.com/google/uuid"

	"github.com/congo-pay/pockets/internal/amount"
)

// Settler represents a connector to the chain settlement layer.
type Settler interface {
	SettleDeposit(ctx context.Context, req Request) (Decision, error)
	SettleSpend(ctx context.Context, req Request) (Decision, error)
}

// Request describes one committed ledger entry handed to settlement.
type Request struct {
	Owner       string
	Seq         uint64
	Pocket      string
	Amount      amount.Amount
	Destination string
}

// Decision captures the settlement layer's acknowledgement.
type Decision struct {
	Reference string
	Status    string
}

// StaticSettler simulates a settlement layer that accepts everything.
type StaticSettler struct{}

// SettleDeposit accepts the deposit with a synthetic reference.
func (StaticSettler) SettleDeposit(_ context.Context, _ Request) (Decision, error) {
	return Decision{Reference: uuid.NewString(), Status: StatusSubmitted}, nil
}

// SettleSpend accepts the spend with a synthetic reference.
func (StaticSettler) SettleSpend(_ context.Context, _ Request) (Decision, error) {
	return Decision{Reference: uuid.NewString(), Status: StatusSubmitted}, nil
}
