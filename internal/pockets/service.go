package pockets

import (
	"context"
	"log/slog"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/ledger"
	"github.com/congo-pay/pockets/internal/logging"
	"github.com/congo-pay/pockets/internal/settlement"
)

// Service exposes the ledger to the HTTP layer and hands committed deposits
// and spends to settlement.
type Service struct {
	engine     *ledger.Engine
	reconciler *settlement.Reconciler
	logger     *slog.Logger
}

// NewService builds a pockets service. A nil reconciler disables settlement.
func NewService(engine *ledger.Engine, reconciler *settlement.Reconciler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{engine: engine, reconciler: reconciler, logger: logger}
}

// Outcome is a ledger result plus the settlement hand-off, if any.
type Outcome struct {
	ledger.Result
	Settlement *settlement.Decision
}

// Overview is the owner's ledger together with its summary figures.
type Overview struct {
	Ledger  ledger.Ledger
	Summary ledger.Summary
}

// Submit runs op for owner. Committed deposits and spends are forwarded to
// settlement; a settlement failure is logged and leaves the entry committed,
// to be confirmed or compensated later.
func (s *Service) Submit(ctx context.Context, owner string, op ledger.Operation) (Outcome, error) {
	res, err := s.engine.Submit(ctx, owner, op)
	out := Outcome{Result: res}
	if err != nil || res.Duplicate || s.reconciler == nil {
		return out, err
	}
	if op.Kind != ledger.OpDeposit && op.Kind != ledger.OpSpend {
		return out, nil
	}
	decision, err := s.reconciler.Settle(ctx, owner, res.Seq)
	if err != nil {
		logging.ForOwner(s.logger, owner).Warn("settlement hand-off failed",
			slog.Uint64("seq", res.Seq), slog.Any("error", err))
		return out, nil
	}
	out.Settlement = &decision
	return out, nil
}

// Overview returns every pocket in creation order and the summary figures.
// Both come from one snapshot.
func (s *Service) Overview(ctx context.Context, owner string) (Overview, error) {
	l, err := s.engine.Snapshot(ctx, owner)
	if err != nil {
		return Overview{}, err
	}
	return Overview{Ledger: l, Summary: ledger.Summarize(l)}, nil
}

// Pocket returns a single pocket.
func (s *Service) Pocket(ctx context.Context, owner, name string) (ledger.Pocket, error) {
	l, err := s.engine.Snapshot(ctx, owner)
	if err != nil {
		return ledger.Pocket{}, err
	}
	for _, p := range l.Pockets {
		if ledger.SameName(p.Name, name) {
			return p, nil
		}
	}
	return ledger.Pocket{}, &ledger.Error{Kind: ledger.ErrNotFound, Pocket: name}
}

// Log returns the owner's audit log.
func (s *Service) Log(ctx context.Context, owner string) ([]ledger.LogEntry, error) {
	return s.engine.Log(ctx, owner)
}

// Confirm applies a settlement confirmation.
func (s *Service) Confirm(ctx context.Context, owner string, c settlement.Confirmation) (settlement.Outcome, error) {
	if s.reconciler == nil {
		return settlement.Outcome{}, settlement.ErrNotSettleable
	}
	return s.reconciler.Confirm(ctx, owner, c)
}

// Replay rebuilds the owner's ledger from its log.
func (s *Service) Replay(ctx context.Context, owner string) (ledger.Recovery, error) {
	return s.engine.Replay(ctx, owner)
}

// resolveAmount picks the integral or the decimal form of an amount.
func resolveAmount(minor *int64, stx string) (amount.Amount, error) {
	switch {
	case minor != nil && stx != "":
		return amount.Zero, errAmbiguousAmount
	case minor != nil:
		return amount.New(*minor)
	case stx != "":
		return amount.ParseSTX(stx)
	default:
		return amount.Zero, errMissingAmount
	}
}
