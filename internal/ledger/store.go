package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/storage"
)

// Delta is a signed change to one pocket. External deltas cross the account
// boundary and move the owner total along with the pocket.
type Delta struct {
	Pocket   string
	Amount   int64
	External bool
}

type book struct {
	mu      sync.RWMutex
	pockets map[string]*Pocket // keyed by folded name
	total   amount.Amount
}

func newBook() *book {
	return &book{pockets: make(map[string]*Pocket)}
}

func (b *book) snapshot(owner string) Ledger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked(owner)
}

func (b *book) snapshotLocked(owner string) Ledger {
	pockets := make([]Pocket, 0, len(b.pockets))
	for _, p := range b.pockets {
		pockets = append(pockets, *p)
	}
	sort.Slice(pockets, func(i, j int) bool { return pockets[i].CreatedSeq < pockets[j].CreatedSeq })
	return Ledger{Owner: owner, Pockets: pockets, Total: b.total}
}

// Store owns the current balance of every pocket. It keeps an in-memory book
// per owner and writes every change through to the backend, one record per
// pocket plus one record for the owner total.
type Store struct {
	backend storage.Backend
	timeout time.Duration

	mu    sync.RWMutex
	books map[string]*book
}

// NewStore builds a store over backend; every backend call is bounded by timeout.
func NewStore(backend storage.Backend, timeout time.Duration) *Store {
	return &Store{backend: backend, timeout: timeout, books: make(map[string]*book)}
}

type totalRecord struct {
	Total amount.Amount `json:"total"`
}

// ownerPrefix length-prefixes the owner so that owners and pocket names
// containing ':' can never produce the same key.
func ownerPrefix(owner string) string { return "owner:" + strconv.Itoa(len(owner)) + ":" + owner }

func pocketKey(owner, folded string) string { return ownerPrefix(owner) + ":pocket:" + folded }
func totalKey(owner string) string          { return ownerPrefix(owner) + ":total" }

func (s *Store) lookup(owner string) (*book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[owner]
	return b, ok
}

func (s *Store) bookFor(owner string) *book {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[owner]
	if !ok {
		b = newBook()
		s.books[owner] = b
	}
	return b
}

func (s *Store) install(owner string, b *book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[owner] = b
}

func (s *Store) bounded(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.bounded(ctx, func(ctx context.Context) error {
		return s.backend.Put(ctx, key, payload)
	})
}

// Balance returns the balance of a pocket or ErrNotFound.
func (s *Store) Balance(owner, name string) (amount.Amount, error) {
	p, err := s.Pocket(owner, name)
	if err != nil {
		return amount.Zero, err
	}
	return p.Balance, nil
}

// Pocket returns a copy of the named pocket.
func (s *Store) Pocket(owner, name string) (Pocket, error) {
	b, ok := s.lookup(owner)
	if !ok {
		return Pocket{}, reject(ErrNotFound, name, amount.Zero)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.pockets[fold(name)]
	if !ok {
		return Pocket{}, reject(ErrNotFound, name, amount.Zero)
	}
	return *p, nil
}

// Total returns the owner total last recorded by a deposit or spend.
func (s *Store) Total(owner string) amount.Amount {
	b, ok := s.lookup(owner)
	if !ok {
		return amount.Zero
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Snapshot returns a consistent copy of the owner's ledger in creation order.
func (s *Store) Snapshot(owner string) Ledger {
	b, ok := s.lookup(owner)
	if !ok {
		return Ledger{Owner: owner, Pockets: []Pocket{}}
	}
	return b.snapshot(owner)
}

// CreatePocket persists an empty pocket. seq records creation order.
func (s *Store) CreatePocket(ctx context.Context, owner, name string, seq uint64) (Pocket, error) {
	if err := ValidateName(name); err != nil {
		return Pocket{}, err
	}
	b := s.bookFor(owner)
	b.mu.Lock()
	defer b.mu.Unlock()

	key := fold(name)
	if _, exists := b.pockets[key]; exists {
		return Pocket{}, reject(ErrDuplicateName, name, amount.Zero)
	}
	p := Pocket{Name: name, Balance: amount.Zero, CreatedSeq: seq}
	if err := s.put(ctx, pocketKey(owner, key), p); err != nil {
		return Pocket{}, err
	}
	b.pockets[key] = &p
	return p, nil
}

// ApplyDelta is the only path that changes balances. All deltas are validated
// before anything is written, and the in-memory book only changes once every
// write succeeded. Readers block for the duration.
func (s *Store) ApplyDelta(ctx context.Context, owner string, deltas ...Delta) ([]PocketBalance, amount.Amount, error) {
	b, ok := s.lookup(owner)
	if !ok {
		if len(deltas) == 0 {
			return nil, amount.Zero, nil
		}
		return nil, amount.Zero, reject(ErrNotFound, deltas[0].Pocket, amount.Zero)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string]amount.Amount, len(deltas))
	var order []string
	total := b.total
	for _, d := range deltas {
		key := fold(d.Pocket)
		p, exists := b.pockets[key]
		if !exists {
			return nil, amount.Zero, reject(ErrNotFound, d.Pocket, absAmount(d.Amount))
		}
		cur, seen := next[key]
		if !seen {
			cur = p.Balance
			order = append(order, key)
		}
		updated, err := amount.Apply(cur, d.Amount)
		if err != nil {
			return nil, amount.Zero, &Error{Kind: err, Pocket: p.Name, Amount: absAmount(d.Amount)}
		}
		next[key] = updated
		if d.External {
			if total, err = amount.Apply(total, d.Amount); err != nil {
				return nil, amount.Zero, &Error{Kind: err, Pocket: p.Name, Amount: absAmount(d.Amount)}
			}
		}
	}

	for _, key := range order {
		p := *b.pockets[key]
		p.Balance = next[key]
		if err := s.put(ctx, pocketKey(owner, key), p); err != nil {
			return nil, amount.Zero, err
		}
	}
	if !total.Equal(b.total) {
		if err := s.put(ctx, totalKey(owner), totalRecord{Total: total}); err != nil {
			return nil, amount.Zero, err
		}
	}

	balances := make([]PocketBalance, 0, len(order))
	for _, key := range order {
		b.pockets[key].Balance = next[key]
		balances = append(balances, PocketBalance{Name: b.pockets[key].Name, Balance: next[key]})
	}
	b.total = total
	return balances, total, nil
}

// DeletePocket removes an empty pocket.
func (s *Store) DeletePocket(ctx context.Context, owner, name string) (Pocket, error) {
	b, ok := s.lookup(owner)
	if !ok {
		return Pocket{}, reject(ErrNotFound, name, amount.Zero)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := fold(name)
	p, exists := b.pockets[key]
	if !exists {
		return Pocket{}, reject(ErrNotFound, name, amount.Zero)
	}
	if !p.Balance.IsZero() {
		return Pocket{}, reject(ErrNonZeroBalance, p.Name, p.Balance)
	}
	err := s.bounded(ctx, func(ctx context.Context) error {
		return s.backend.Delete(ctx, pocketKey(owner, key))
	})
	if err != nil {
		return Pocket{}, err
	}
	delete(b.pockets, key)
	return *p, nil
}

// restore makes the persisted records agree with a book rebuilt from the log
// and installs it. Only keys named in touched are inspected; it returns the
// number of records rewritten or removed.
func (s *Store) restore(ctx context.Context, owner string, rebuilt *book, touched map[string]struct{}) (int, error) {
	keys := make([]string, 0, len(touched))
	for k := range touched {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	repaired := 0
	for _, key := range keys {
		var stored *Pocket
		raw, err := s.get(ctx, pocketKey(owner, key))
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return repaired, err
		default:
			var p Pocket
			if err := json.Unmarshal(raw, &p); err == nil {
				stored = &p
			}
		}

		want, keep := rebuilt.pockets[key]
		switch {
		case !keep && raw != nil:
			err := s.bounded(ctx, func(ctx context.Context) error {
				return s.backend.Delete(ctx, pocketKey(owner, key))
			})
			if err != nil {
				return repaired, err
			}
			repaired++
		case keep && (stored == nil || *stored != *want):
			if err := s.put(ctx, pocketKey(owner, key), want); err != nil {
				return repaired, err
			}
			repaired++
		}
	}

	stale := !rebuilt.total.IsZero()
	raw, err := s.get(ctx, totalKey(owner))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return repaired, err
	default:
		var rec totalRecord
		stale = json.Unmarshal(raw, &rec) != nil || !rec.Total.Equal(rebuilt.total)
	}
	if stale {
		if err := s.put(ctx, totalKey(owner), totalRecord{Total: rebuilt.total}); err != nil {
			return repaired, err
		}
		repaired++
	}

	s.install(owner, rebuilt)
	return repaired, nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := s.bounded(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.backend.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	return raw, nil
}

func absAmount(delta int64) amount.Amount {
	if delta < 0 {
		delta = -delta
	}
	a, _ := amount.New(delta)
	return a
}
