package ledger

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/logging"
	"github.com/congo-pay/pockets/internal/storage"
)

const (
	defaultStoreTimeout      = 5 * time.Second
	defaultReplayConcurrency = 4
)

// Recorder receives engine telemetry.
type Recorder interface {
	ObserveOperation(kind OpKind, status Status, reason string, elapsed time.Duration)
	ObserveReplay(dangling, repaired int)
	SetHaltedOwners(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(OpKind, Status, string, time.Duration) {}
func (nopRecorder) ObserveReplay(int, int)                                 {}
func (nopRecorder) SetHaltedOwners(int)                                    {}

// account is the per-owner serialization scope. Submit and Replay hold mu
// exclusively; queries share it.
type account struct {
	mu       sync.RWMutex
	loaded   bool
	seq      uint64
	requests map[string]LogEntry
	halted   error
}

// Engine executes operations against the store, one at a time per owner.
type Engine struct {
	store   *Store
	journal *Journal
	logger  *slog.Logger
	rec     Recorder
	now     func() time.Time

	timeout           time.Duration
	replayConcurrency int

	mu       sync.Mutex
	accounts map[string]*account
	halted   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStoreTimeout bounds every backend call.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock overrides the time source used for operation timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRecorder installs a telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

// WithReplayConcurrency limits how many owners ReplayAll rebuilds at once.
func WithReplayConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.replayConcurrency = n
		}
	}
}

// NewEngine builds an engine persisting into backend. Owners are loaded from
// the log lazily on first use, or eagerly with ReplayAll.
func NewEngine(backend storage.Backend, opts ...Option) *Engine {
	e := &Engine{
		logger:            logging.Discard(),
		rec:               nopRecorder{},
		now:               time.Now,
		timeout:           defaultStoreTimeout,
		replayConcurrency: defaultReplayConcurrency,
		accounts:          make(map[string]*account),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.store = NewStore(backend, e.timeout)
	e.journal = NewJournal(backend, e.timeout)
	return e
}

// Store exposes the underlying ledger store for read access.
func (e *Engine) Store() *Store { return e.store }

func (e *Engine) account(owner string) *account {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.accounts[owner]
	if !ok {
		a = &account{requests: make(map[string]LogEntry)}
		e.accounts[owner] = a
	}
	return a
}

// Submit runs op for owner. A rejected operation returns its Result together
// with an error matching one of the package sentinels. A committed operation
// that trips the partition check returns ErrInvariantViolation and halts the
// owner.
func (e *Engine) Submit(ctx context.Context, owner string, op Operation) (Result, error) {
	start := time.Now()
	res, err := e.submit(ctx, owner, op)
	e.rec.ObserveOperation(op.Kind, res.Status, res.Reason, time.Since(start))
	return res, err
}

func (e *Engine) submit(ctx context.Context, owner string, op Operation) (Result, error) {
	rejected := func(err error) (Result, error) {
		return Result{Seq: op.Seq, Status: StatusRejected, Operation: op, Reason: Reason(err)}, err
	}
	if err := validateOwner(owner); err != nil {
		return rejected(err)
	}

	acct := e.account(owner)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if err := e.ensureLoaded(ctx, owner, acct); err != nil {
		return rejected(err)
	}
	if acct.halted != nil {
		return rejected(acct.halted)
	}
	if op.RequestID != "" {
		if prior, ok := acct.requests[op.RequestID]; ok {
			res := resultOf(prior)
			res.Duplicate = true
			return res, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return rejected(err)
	}

	op.Seq = acct.seq + 1
	op.At = e.now().UTC()
	logger := logging.ForOwner(e.logger, owner).With(
		slog.String("op", string(op.Kind)),
		slog.Uint64("seq", op.Seq),
	)

	if verr := e.validate(owner, op); verr != nil {
		entry := e.entry(op, StatusRejected)
		entry.Reason = Reason(verr)
		if err := e.journal.Append(ctx, owner, entry); err != nil {
			// The record may or may not have landed; reload so the next
			// sequence number follows what the log actually holds.
			acct.loaded = false
			logger.Warn("record rejection", slog.Any("error", err))
			return rejected(err)
		}
		acct.seq = op.Seq
		logger.Info("operation rejected", slog.String("reason", entry.Reason), slog.String("pocket", op.Pocket))
		return rejected(verr)
	}
	if err := ctx.Err(); err != nil {
		return rejected(err)
	}

	// From here on the operation cannot be abandoned.
	acct.seq = op.Seq
	actx := context.WithoutCancel(ctx)

	if err := e.journal.Append(actx, owner, e.entry(op, StatusPending)); err != nil {
		e.abort(actx, owner, acct, op, err, logger)
		return rejected(err)
	}
	balances, total, err := e.apply(actx, owner, op)
	if err != nil {
		e.abort(actx, owner, acct, op, err, logger)
		return rejected(err)
	}
	committed := e.entry(op, StatusCommitted)
	committed.Balances = balances
	committed.Total = total
	if err := e.journal.Append(actx, owner, committed); err != nil {
		e.abort(actx, owner, acct, op, err, logger)
		return rejected(err)
	}
	if op.RequestID != "" {
		acct.requests[op.RequestID] = committed
	}

	res := resultOf(committed)
	if err := CheckPartition(e.store.Snapshot(owner)); err != nil {
		e.halt(owner, acct, err)
		logger.Error("partition invariant violated", slog.Any("error", err))
		return res, err
	}
	logger.Debug("operation committed", slog.Int64("total", total.Int64()))
	return res, nil
}

// abort resolves an operation that failed after its intent was logged. The
// persisted balances may be partly written, so the owner is rebuilt from the
// log, where the operation is now rejected.
func (e *Engine) abort(ctx context.Context, owner string, acct *account, op Operation, cause error, logger *slog.Logger) {
	logger.Warn("operation aborted", slog.Any("error", cause))
	entry := e.entry(op, StatusRejected)
	entry.Reason = Reason(cause)
	if err := e.journal.Append(ctx, owner, entry); err != nil {
		logger.Warn("record abort; recovery will resolve it", slog.Any("error", err))
	}
	acct.loaded = false
	if _, err := e.replayLocked(ctx, owner, acct); err != nil {
		logger.Warn("rebuild after abort", slog.Any("error", err))
	}
}

func (e *Engine) validate(owner string, op Operation) error {
	switch op.Kind {
	case OpCreate:
		if err := ValidateName(op.Pocket); err != nil {
			return err
		}
		if _, err := e.store.Pocket(owner, op.Pocket); err == nil {
			return reject(ErrDuplicateName, op.Pocket, amount.Zero)
		}
	case OpDeposit:
		if op.Amount.IsZero() {
			return reject(ErrInvalidAmount, op.Pocket, op.Amount)
		}
		p, err := e.store.Pocket(owner, op.Pocket)
		if err != nil {
			return err
		}
		if _, err := amount.Add(p.Balance, op.Amount); err != nil {
			return reject(ErrOverflow, p.Name, op.Amount)
		}
		if _, err := amount.Add(e.store.Total(owner), op.Amount); err != nil {
			return reject(ErrOverflow, p.Name, op.Amount)
		}
	case OpMove:
		if op.Amount.IsZero() {
			return reject(ErrInvalidAmount, op.Pocket, op.Amount)
		}
		if SameName(op.Pocket, op.To) {
			return reject(ErrSameSource, op.Pocket, op.Amount)
		}
		from, err := e.store.Pocket(owner, op.Pocket)
		if err != nil {
			return err
		}
		to, err := e.store.Pocket(owner, op.To)
		if err != nil {
			return err
		}
		if from.Balance.Less(op.Amount) {
			return reject(ErrInsufficientFunds, from.Name, op.Amount)
		}
		if _, err := amount.Add(to.Balance, op.Amount); err != nil {
			return reject(ErrOverflow, to.Name, op.Amount)
		}
	case OpSpend:
		if op.Amount.IsZero() {
			return reject(ErrInvalidAmount, op.Pocket, op.Amount)
		}
		if strings.TrimSpace(op.Destination) == "" {
			return reject(ErrInvalidDestination, op.Pocket, op.Amount)
		}
		p, err := e.store.Pocket(owner, op.Pocket)
		if err != nil {
			return err
		}
		if p.Balance.Less(op.Amount) {
			return reject(ErrInsufficientFunds, p.Name, op.Amount)
		}
	case OpDelete:
		p, err := e.store.Pocket(owner, op.Pocket)
		if err != nil {
			return err
		}
		if !p.Balance.IsZero() {
			return reject(ErrNonZeroBalance, p.Name, p.Balance)
		}
	default:
		return reject(ErrUnknownOperation, op.Pocket, op.Amount)
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, owner string, op Operation) ([]PocketBalance, amount.Amount, error) {
	n := op.Amount.Int64()
	switch op.Kind {
	case OpCreate:
		p, err := e.store.CreatePocket(ctx, owner, op.Pocket, op.Seq)
		if err != nil {
			return nil, amount.Zero, err
		}
		return []PocketBalance{{Name: p.Name, Balance: p.Balance}}, e.store.Total(owner), nil
	case OpDeposit:
		return e.store.ApplyDelta(ctx, owner, Delta{Pocket: op.Pocket, Amount: n, External: true})
	case OpMove:
		return e.store.ApplyDelta(ctx, owner,
			Delta{Pocket: op.Pocket, Amount: -n},
			Delta{Pocket: op.To, Amount: n},
		)
	case OpSpend:
		return e.store.ApplyDelta(ctx, owner, Delta{Pocket: op.Pocket, Amount: -n, External: true})
	case OpDelete:
		p, err := e.store.DeletePocket(ctx, owner, op.Pocket)
		if err != nil {
			return nil, amount.Zero, err
		}
		return []PocketBalance{{Name: p.Name, Balance: amount.Zero}}, e.store.Total(owner), nil
	default:
		return nil, amount.Zero, reject(ErrUnknownOperation, op.Pocket, op.Amount)
	}
}

func (e *Engine) entry(op Operation, status Status) LogEntry {
	return LogEntry{
		ID:         uuid.NewString(),
		Seq:        op.Seq,
		Operation:  op,
		Status:     status,
		RecordedAt: e.now().UTC(),
	}
}

func resultOf(entry LogEntry) Result {
	return Result{
		Seq:       entry.Seq,
		Status:    entry.Status,
		Operation: entry.Operation,
		Balances:  entry.Balances,
		Total:     entry.Total,
		Reason:    entry.Reason,
	}
}

func (e *Engine) halt(owner string, acct *account, err error) {
	e.mu.Lock()
	if acct.halted == nil {
		e.halted++
	}
	n := e.halted
	e.mu.Unlock()
	acct.halted = err
	e.rec.SetHaltedOwners(n)
	logging.ForOwner(e.logger, owner).Error("owner halted", slog.Any("error", err))
}

func (e *Engine) clearHalt(acct *account) {
	if acct.halted == nil {
		return
	}
	e.mu.Lock()
	e.halted--
	n := e.halted
	e.mu.Unlock()
	acct.halted = nil
	e.rec.SetHaltedOwners(n)
}

// Halted reports whether mutations for owner are refused.
func (e *Engine) Halted(owner string) bool {
	acct := e.account(owner)
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	return acct.halted != nil
}

func (e *Engine) ensureLoaded(ctx context.Context, owner string, acct *account) error {
	if acct.loaded {
		return nil
	}
	_, err := e.replayLocked(ctx, owner, acct)
	return err
}

// readLock returns the owner's account read-locked and loaded.
func (e *Engine) readLock(ctx context.Context, owner string) (*account, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	acct := e.account(owner)
	for {
		acct.mu.RLock()
		if acct.loaded {
			return acct, nil
		}
		acct.mu.RUnlock()

		acct.mu.Lock()
		err := e.ensureLoaded(ctx, owner, acct)
		acct.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
}

// QueryBalance returns the balance of one pocket.
func (e *Engine) QueryBalance(ctx context.Context, owner, name string) (amount.Amount, error) {
	acct, err := e.readLock(ctx, owner)
	if err != nil {
		return amount.Zero, err
	}
	defer acct.mu.RUnlock()
	return e.store.Balance(owner, name)
}

// QueryLedger returns the owner's pockets as a restartable sequence. Each range
// takes the owner's read lock and a fresh snapshot, so an owner left unloaded
// by an aborted operation is rebuilt first; if that fails nothing is yielded.
func (e *Engine) QueryLedger(ctx context.Context, owner string) (iter.Seq2[string, amount.Amount], error) {
	acct, err := e.readLock(ctx, owner)
	if err != nil {
		return nil, err
	}
	acct.mu.RUnlock()
	return func(yield func(string, amount.Amount) bool) {
		acct, err := e.readLock(ctx, owner)
		if err != nil {
			return
		}
		l := e.store.Snapshot(owner)
		acct.mu.RUnlock()
		for _, p := range l.Pockets {
			if !yield(p.Name, p.Balance) {
				return
			}
		}
	}, nil
}

// Snapshot returns the owner's ledger.
func (e *Engine) Snapshot(ctx context.Context, owner string) (Ledger, error) {
	acct, err := e.readLock(ctx, owner)
	if err != nil {
		return Ledger{}, err
	}
	defer acct.mu.RUnlock()
	return e.store.Snapshot(owner), nil
}

// Summary returns the total, pocket count and largest pocket.
func (e *Engine) Summary(ctx context.Context, owner string) (Summary, error) {
	l, err := e.Snapshot(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(l), nil
}

// Summarize computes the summary figures of a snapshot. Ties for the largest
// pocket go to the one created first.
func Summarize(l Ledger) Summary {
	s := Summary{Total: l.Total, Count: len(l.Pockets)}
	for _, p := range l.Pockets {
		if s.Largest == nil || s.Largest.Balance.Less(p.Balance) {
			s.Largest = &PocketBalance{Name: p.Name, Balance: p.Balance}
		}
	}
	return s
}

// Log returns the owner's resolved log in sequence order.
func (e *Engine) Log(ctx context.Context, owner string) ([]LogEntry, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	return e.journal.Entries(ctx, owner)
}

// Entry returns the resolved log entry for seq.
func (e *Engine) Entry(ctx context.Context, owner string, seq uint64) (LogEntry, error) {
	entries, err := e.Log(ctx, owner)
	if err != nil {
		return LogEntry{}, err
	}
	for _, entry := range entries {
		if entry.Seq == seq {
			return entry, nil
		}
	}
	return LogEntry{}, &Error{Kind: ErrUnknownEntry}
}
