package ledger

import (
	"time"

	"github.com/congo-pay/pockets/internal/amount"
)

// OpKind names a mutation.
type OpKind string

const (
	OpCreate  OpKind = "create"
	OpDeposit OpKind = "deposit"
	OpMove    OpKind = "move"
	OpSpend   OpKind = "spend"
	OpDelete  OpKind = "delete"
)

// Status is the outcome recorded for an operation.
type Status string

const (
	// StatusPending marks an intent record written before balances change.
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
)

// Operation is a single requested mutation. Seq and At are assigned by the engine.
type Operation struct {
	Kind        OpKind        `json:"kind"`
	Pocket      string        `json:"pocket"`
	To          string        `json:"to,omitempty"`
	Amount      amount.Amount `json:"amount"`
	Destination string        `json:"destination,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
	Seq         uint64        `json:"seq"`
	At          time.Time     `json:"at"`
}

// Create returns an operation that creates an empty pocket.
func Create(name string) Operation {
	return Operation{Kind: OpCreate, Pocket: name}
}

// Deposit returns an operation that credits external funds to a pocket.
func Deposit(name string, amt amount.Amount) Operation {
	return Operation{Kind: OpDeposit, Pocket: name, Amount: amt}
}

// Move returns an operation that moves funds between two pockets.
func Move(from, to string, amt amount.Amount) Operation {
	return Operation{Kind: OpMove, Pocket: from, To: to, Amount: amt}
}

// Spend returns an operation that sends funds from a pocket to an external destination.
func Spend(name string, amt amount.Amount, destination string) Operation {
	return Operation{Kind: OpSpend, Pocket: name, Amount: amt, Destination: destination}
}

// Delete returns an operation that removes an empty pocket.
func Delete(name string) Operation {
	return Operation{Kind: OpDelete, Pocket: name}
}

// WithRequestID tags the operation with a client idempotency key.
func (o Operation) WithRequestID(id string) Operation {
	o.RequestID = id
	return o
}

// Pocket is a named sub-balance.
type Pocket struct {
	Name       string        `json:"name"`
	Balance    amount.Amount `json:"balance"`
	CreatedSeq uint64        `json:"created_seq"`
}

// PocketBalance is a (name, balance) pair.
type PocketBalance struct {
	Name    string        `json:"name"`
	Balance amount.Amount `json:"balance"`
}

// Ledger is a consistent snapshot of one owner's pockets.
type Ledger struct {
	Owner   string        `json:"owner"`
	Pockets []Pocket      `json:"pockets"`
	Total   amount.Amount `json:"total"`
}

// LogEntry is an immutable record in the operation log. A pending entry is
// resolved by a later record with the same Seq.
type LogEntry struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Operation  Operation       `json:"operation"`
	Status     Status          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Balances   []PocketBalance `json:"balances,omitempty"`
	Total      amount.Amount   `json:"total"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Result is returned by Engine.Submit.
type Result struct {
	Seq       uint64
	Status    Status
	Operation Operation
	Balances  []PocketBalance
	Total     amount.Amount
	Reason    string
	Duplicate bool
}

// Summary carries the dashboard figures for an owner.
type Summary struct {
	Total   amount.Amount
	Count   int
	Largest *PocketBalance
}
