package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/logging"
)

// Recovery reports what a replay rebuilt and fixed.
type Recovery struct {
	Ledger   Ledger
	Replayed int
	Dangling []uint64
	Repaired int
}

// Replay rebuilds the owner's balances from the log. Pending entries without
// an outcome are resolved as rejected, committed entries are re-applied in
// sequence order and the persisted balance records are rewritten to match.
// A successful replay lifts a halt caused by an invariant violation.
func (e *Engine) Replay(ctx context.Context, owner string) (Recovery, error) {
	if err := validateOwner(owner); err != nil {
		return Recovery{}, err
	}
	acct := e.account(owner)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return e.replayLocked(ctx, owner, acct)
}

func (e *Engine) replayLocked(ctx context.Context, owner string, acct *account) (Recovery, error) {
	logger := logging.ForOwner(e.logger, owner)

	entries, err := e.journal.Entries(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			e.halt(owner, acct, err)
		}
		return Recovery{}, err
	}

	var (
		rep      Recovery
		seq      uint64
		rebuilt  = newBook()
		touched  = make(map[string]struct{})
		requests = make(map[string]LogEntry)
	)
	for _, entry := range entries {
		seq = max(seq, entry.Seq)
		op := entry.Operation
		for _, name := range []string{op.Pocket, op.To} {
			if name != "" {
				touched[fold(name)] = struct{}{}
			}
		}

		switch entry.Status {
		case StatusPending:
			resolved := e.entry(op, StatusRejected)
			resolved.Reason = Reason(ErrInterrupted)
			if err := e.journal.Append(ctx, owner, resolved); err != nil {
				return Recovery{}, err
			}
			rep.Dangling = append(rep.Dangling, entry.Seq)
			logger.Warn("resolved dangling operation", slog.Uint64("seq", entry.Seq), slog.String("op", string(op.Kind)))
		case StatusCommitted:
			if err := rebuilt.replay(entry); err != nil {
				verr := &Error{Kind: ErrInvariantViolation, Cause: fmt.Errorf("replay seq %d: %w", entry.Seq, err)}
				e.halt(owner, acct, verr)
				return Recovery{}, verr
			}
			if op.RequestID != "" {
				requests[op.RequestID] = entry
			}
		}
		rep.Replayed++
	}

	snapshot := rebuilt.snapshot(owner)
	if err := CheckPartition(snapshot); err != nil {
		e.halt(owner, acct, err)
		return Recovery{}, err
	}

	repaired, err := e.store.restore(ctx, owner, rebuilt, touched)
	if err != nil {
		return Recovery{}, err
	}

	acct.loaded = true
	acct.seq = seq
	acct.requests = requests
	e.clearHalt(acct)

	rep.Ledger = snapshot
	rep.Repaired = repaired
	e.rec.ObserveReplay(len(rep.Dangling), repaired)
	if len(rep.Dangling) > 0 || repaired > 0 {
		logger.Info("ledger recovered",
			slog.Int("entries", rep.Replayed),
			slog.Int("dangling", len(rep.Dangling)),
			slog.Int("repaired", repaired),
		)
	}
	return rep, nil
}

// ReplayAll replays every owner that has a log. Owners whose log fails the
// partition check stay halted (see Halted) and are left out of the result
// without failing the others; storage failures abort the whole run.
func (e *Engine) ReplayAll(ctx context.Context) (map[string]Recovery, error) {
	owners, err := e.journal.Owners(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out = make(map[string]Recovery, len(owners))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.replayConcurrency)
	for _, owner := range owners {
		g.Go(func() error {
			rep, err := e.Replay(gctx, owner)
			if errors.Is(err, ErrInvariantViolation) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("replay %s: %w", owner, err)
			}
			mu.Lock()
			out[owner] = rep
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// replay re-applies a committed entry and cross-checks the balances it recorded.
func (b *book) replay(entry LogEntry) error {
	op := entry.Operation
	n := op.Amount.Int64()
	var err error
	switch op.Kind {
	case OpCreate:
		key := fold(op.Pocket)
		if _, exists := b.pockets[key]; exists {
			return reject(ErrDuplicateName, op.Pocket, amount.Zero)
		}
		b.pockets[key] = &Pocket{Name: op.Pocket, Balance: amount.Zero, CreatedSeq: op.Seq}
	case OpDeposit:
		err = b.adjust(op.Pocket, n, true)
	case OpMove:
		if err = b.adjust(op.Pocket, -n, false); err == nil {
			err = b.adjust(op.To, n, false)
		}
	case OpSpend:
		err = b.adjust(op.Pocket, -n, true)
	case OpDelete:
		key := fold(op.Pocket)
		p, exists := b.pockets[key]
		if !exists {
			return reject(ErrNotFound, op.Pocket, amount.Zero)
		}
		if !p.Balance.IsZero() {
			return reject(ErrNonZeroBalance, p.Name, p.Balance)
		}
		delete(b.pockets, key)
		return nil
	default:
		return reject(ErrUnknownOperation, op.Pocket, op.Amount)
	}
	if err != nil {
		return err
	}

	for _, recorded := range entry.Balances {
		p, exists := b.pockets[fold(recorded.Name)]
		if !exists || !p.Balance.Equal(recorded.Balance) {
			return fmt.Errorf("pocket %q: log recorded %s", recorded.Name, recorded.Balance)
		}
	}
	if !b.total.Equal(entry.Total) {
		return fmt.Errorf("log recorded total %s, replay computed %s", entry.Total, b.total)
	}
	return nil
}

func (b *book) adjust(name string, delta int64, external bool) error {
	p, exists := b.pockets[fold(name)]
	if !exists {
		return reject(ErrNotFound, name, absAmount(delta))
	}
	balance, err := amount.Apply(p.Balance, delta)
	if err != nil {
		return &Error{Kind: err, Pocket: name, Amount: absAmount(delta)}
	}
	if external {
		total, err := amount.Apply(b.total, delta)
		if err != nil {
			return &Error{Kind: err, Pocket: name, Amount: absAmount(delta)}
		}
		b.total = total
	}
	p.Balance = balance
	return nil
}
