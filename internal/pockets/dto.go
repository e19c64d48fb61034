package pockets

import (
	"errors"
	"time"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/ledger"
	"github.com/congo-pay/pockets/internal/settlement"
)

var (
	errMissingAmount   = errors.New("amount or amount_stx is required")
	errAmbiguousAmount = errors.New("set either amount or amount_stx, not both")
)

type createRequest struct {
	Name      string `json:"name"`
	RequestID string `json:"request_id"`
}

type amountRequest struct {
	Amount    *int64 `json:"amount"`
	AmountSTX string `json:"amount_stx"`
	RequestID string `json:"request_id"`
}

type depositRequest struct {
	amountRequest
}

type moveRequest struct {
	amountRequest
	To string `json:"to"`
}

type spendRequest struct {
	amountRequest
	Destination string `json:"destination"`
}

type confirmRequest struct {
	Settled   bool   `json:"settled"`
	Reference string `json:"reference"`
}

type moneyResponse struct {
	Amount    amount.Amount `json:"amount"`
	Formatted string        `json:"formatted"`
}

func money(a amount.Amount) moneyResponse {
	return moneyResponse{Amount: a, Formatted: amount.Format(a)}
}

type pocketResponse struct {
	Name       string        `json:"name"`
	Balance    moneyResponse `json:"balance"`
	CreatedSeq uint64        `json:"created_seq,omitempty"`
}

type settlementResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type operationResponse struct {
	Kind        ledger.OpKind  `json:"kind"`
	Pocket      string         `json:"pocket"`
	To          string         `json:"to,omitempty"`
	Amount      *moneyResponse `json:"amount,omitempty"`
	Destination string         `json:"destination,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	At          time.Time      `json:"at"`
}

type resultResponse struct {
	Seq        uint64              `json:"seq"`
	Status     ledger.Status       `json:"status"`
	Operation  operationResponse   `json:"operation"`
	Pockets    []pocketResponse    `json:"pockets"`
	Total      moneyResponse       `json:"total"`
	Duplicate  bool                `json:"duplicate,omitempty"`
	Settlement *settlementResponse `json:"settlement,omitempty"`
}

type summaryResponse struct {
	Total   moneyResponse   `json:"total"`
	Count   int             `json:"count"`
	Largest *pocketResponse `json:"largest,omitempty"`
}

type overviewResponse struct {
	Owner   string           `json:"owner"`
	Pockets []pocketResponse `json:"pockets"`
	Summary summaryResponse  `json:"summary"`
}

type logEntryResponse struct {
	Seq        uint64            `json:"seq"`
	Status     ledger.Status     `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Operation  operationResponse `json:"operation"`
	Pockets    []pocketResponse  `json:"pockets,omitempty"`
	Total      *moneyResponse    `json:"total,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

type confirmResponse struct {
	Seq          uint64          `json:"seq"`
	Status       string          `json:"status"`
	Reference    string          `json:"reference,omitempty"`
	Compensation *resultResponse `json:"compensation,omitempty"`
}

type replayResponse struct {
	Replayed int              `json:"replayed"`
	Dangling []uint64         `json:"dangling"`
	Repaired int              `json:"repaired"`
	Pockets  []pocketResponse `json:"pockets"`
	Total    moneyResponse    `json:"total"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
	Seq    uint64 `json:"seq,omitempty"`
}

func toOperation(op ledger.Operation) operationResponse {
	out := operationResponse{
		Kind:        op.Kind,
		Pocket:      op.Pocket,
		To:          op.To,
		Destination: op.Destination,
		RequestID:   op.RequestID,
		At:          op.At,
	}
	if !op.Amount.IsZero() {
		m := money(op.Amount)
		out.Amount = &m
	}
	return out
}

func toBalances(balances []ledger.PocketBalance) []pocketResponse {
	out := make([]pocketResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, pocketResponse{Name: b.Name, Balance: money(b.Balance)})
	}
	return out
}

func toPocket(p ledger.Pocket) pocketResponse {
	return pocketResponse{Name: p.Name, Balance: money(p.Balance), CreatedSeq: p.CreatedSeq}
}

func toPockets(pockets []ledger.Pocket) []pocketResponse {
	out := make([]pocketResponse, 0, len(pockets))
	for _, p := range pockets {
		out = append(out, toPocket(p))
	}
	return out
}

func toResult(res ledger.Result, decision *settlement.Decision) resultResponse {
	out := resultResponse{
		Seq:       res.Seq,
		Status:    res.Status,
		Operation: toOperation(res.Operation),
		Pockets:   toBalances(res.Balances),
		Total:     money(res.Total),
		Duplicate: res.Duplicate,
	}
	if decision != nil {
		out.Settlement = &settlementResponse{Reference: decision.Reference, Status: decision.Status}
	}
	return out
}

func toOverview(o Overview) overviewResponse {
	out := overviewResponse{
		Owner:   o.Ledger.Owner,
		Pockets: toPockets(o.Ledger.Pockets),
		Summary: summaryResponse{Total: money(o.Summary.Total), Count: o.Summary.Count},
	}
	if l := o.Summary.Largest; l != nil {
		out.Summary.Largest = &pocketResponse{Name: l.Name, Balance: money(l.Balance)}
	}
	return out
}

func toLogEntry(e ledger.LogEntry) logEntryResponse {
	out := logEntryResponse{
		Seq:        e.Seq,
		Status:     e.Status,
		Reason:     e.Reason,
		Operation:  toOperation(e.Operation),
		RecordedAt: e.RecordedAt,
	}
	if e.Status == ledger.StatusCommitted {
		out.Pockets = toBalances(e.Balances)
		total := money(e.Total)
		out.Total = &total
	}
	return out
}
