package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/ledger"
	"github.com/congo-pay/pockets/internal/logging"
	"github.com/congo-pay/pockets/internal/notification"
)

const (
	// StatusSubmitted is reported once settlement accepted an entry for processing.
	StatusSubmitted = "submitted"
	// StatusSettled is reported when settlement confirmed an entry.
	StatusSettled = "settled"
	// StatusCompensated is reported when a failed entry was reversed.
	StatusCompensated = "compensated"
)

var (
	// ErrNotSettleable is returned for entries that are not committed deposits or spends.
	ErrNotSettleable = errors.New("entry is not a committed deposit or spend")
	// ErrCompensationRejected is returned when the ledger refuses the reversing operation.
	ErrCompensationRejected = errors.New("compensation rejected")
)

// Ledger is the part of the engine the reconciler needs.
type Ledger interface {
	Entry(ctx context.Context, owner string, seq uint64) (ledger.LogEntry, error)
	Submit(ctx context.Context, owner string, op ledger.Operation) (ledger.Result, error)
}

// Reconciler forwards committed entries to settlement and reverses the ones
// settlement reports as failed. A committed entry only means the ledger
// accepted it; the chain may still refuse it.
type Reconciler struct {
	ledger   Ledger
	settler  Settler
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewReconciler wires a reconciler. A nil settler defaults to StaticSettler.
func NewReconciler(l Ledger, settler Settler, notifier notification.Notifier, logger *slog.Logger) *Reconciler {
	if settler == nil {
		settler = StaticSettler{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reconciler{ledger: l, settler: settler, notifier: notifier, logger: logger}
}

// Confirmation is the settlement layer's final word on an entry.
type Confirmation struct {
	Seq       uint64
	Settled   bool
	Reference string
}

// Outcome reports what Confirm did.
type Outcome struct {
	Seq          uint64
	Status       string
	Reference    string
	Compensation *ledger.Result
}

// Settle hands the committed entry seq to the settlement layer.
func (r *Reconciler) Settle(ctx context.Context, owner string, seq uint64) (Decision, error) {
	entry, err := r.settleable(ctx, owner, seq)
	if err != nil {
		return Decision{}, err
	}
	op := entry.Operation
	req := Request{Owner: owner, Seq: seq, Pocket: op.Pocket, Amount: op.Amount, Destination: op.Destination}

	var decision Decision
	if op.Kind == ledger.OpDeposit {
		decision, err = r.settler.SettleDeposit(ctx, req)
	} else {
		decision, err = r.settler.SettleSpend(ctx, req)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("settle seq %d: %w", seq, err)
	}
	r.notify(ctx, notification.Message{
		Kind:  notification.KindSettlementSubmitted,
		Owner: owner,
		Seq:   seq,
		Body:  fmt.Sprintf("%s of %s submitted as %s", op.Kind, amount.Format(op.Amount), decision.Reference),
	})
	return decision, nil
}

// Confirm applies a settlement confirmation. A failed deposit is reversed by
// spending the amount to "reversal:<seq>"; a failed spend is reversed by
// depositing it back. The reversal carries a request id derived from seq, so
// repeating a confirmation does not reverse twice.
func (r *Reconciler) Confirm(ctx context.Context, owner string, c Confirmation) (Outcome, error) {
	entry, err := r.settleable(ctx, owner, c.Seq)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Seq: c.Seq, Reference: c.Reference}
	if c.Settled {
		out.Status = StatusSettled
		r.notify(ctx, notification.Message{Kind: notification.KindSettled, Owner: owner, Seq: c.Seq, Body: c.Reference})
		return out, nil
	}

	op := entry.Operation
	var reversal ledger.Operation
	if op.Kind == ledger.OpDeposit {
		reversal = ledger.Spend(op.Pocket, op.Amount, "reversal:"+strconv.FormatUint(c.Seq, 10))
	} else {
		reversal = ledger.Deposit(op.Pocket, op.Amount)
	}
	reversal = reversal.WithRequestID("compensate:" + strconv.FormatUint(c.Seq, 10))

	res, err := r.ledger.Submit(ctx, owner, reversal)
	if err != nil {
		return Outcome{}, errors.Join(fmt.Errorf("%w: seq %d", ErrCompensationRejected, c.Seq), err)
	}
	out.Status = StatusCompensated
	out.Compensation = &res
	r.notify(ctx, notification.Message{
		Kind:  notification.KindCompensation,
		Owner: owner,
		Seq:   c.Seq,
		Body:  fmt.Sprintf("%s of %s reversed by seq %d", op.Kind, amount.Format(op.Amount), res.Seq),
	})
	return out, nil
}

func (r *Reconciler) settleable(ctx context.Context, owner string, seq uint64) (ledger.LogEntry, error) {
	entry, err := r.ledger.Entry(ctx, owner, seq)
	if err != nil {
		return ledger.LogEntry{}, err
	}
	if entry.Status != ledger.StatusCommitted {
		return ledger.LogEntry{}, ErrNotSettleable
	}
	switch entry.Operation.Kind {
	case ledger.OpDeposit, ledger.OpSpend:
		return entry, nil
	default:
		return ledger.LogEntry{}, ErrNotSettleable
	}
}

func (r *Reconciler) notify(ctx context.Context, msg notification.Message) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Send(ctx, msg); err != nil {
		logging.ForOwner(r.logger, msg.Owner).Warn("notification failed",
			slog.String("kind", msg.Kind),
			slog.Uint64("seq", msg.Seq),
			slog.Any("error", err),
		)
	}
}
