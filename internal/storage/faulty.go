package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is the error returned by a Faulty backend once it starts failing.
var ErrInjected = errors.New("injected storage failure")

// Faulty wraps a Backend and fails writes on demand. Tests use it to simulate an
// unavailable store or a process that dies between two writes.
type Faulty struct {
	Backend

	mu          sync.Mutex
	appendsLeft int
	writesLeft  int
	readsFail   bool
}

// NewFaulty wraps b; it behaves like b until CrashAfter or FailReads is called.
func NewFaulty(b Backend) *Faulty {
	return &Faulty{Backend: b, appendsLeft: -1, writesLeft: -1}
}

// CrashAfter lets the given number of appends and key writes (Put/Delete)
// through, then fails every later one. A negative count means unlimited.
func (f *Faulty) CrashAfter(appends, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendsLeft = appends
	f.writesLeft = writes
}

// FailReads makes Get, Records and Streams fail.
func (f *Faulty) FailReads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readsFail = fail
}

// Heal stops injecting failures.
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendsLeft, f.writesLeft, f.readsFail = -1, -1, false
}

func (f *Faulty) take(counter *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *counter == 0 {
		return ErrInjected
	}
	if *counter > 0 {
		*counter--
	}
	return nil
}

func (f *Faulty) reads() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readsFail {
		return ErrInjected
	}
	return nil
}

func (f *Faulty) Get(ctx context.Context, key string) ([]byte, error) {
	if err := f.reads(); err != nil {
		return nil, err
	}
	return f.Backend.Get(ctx, key)
}

func (f *Faulty) Put(ctx context.Context, key string, value []byte) error {
	if err := f.take(&f.writesLeft); err != nil {
		return err
	}
	return f.Backend.Put(ctx, key, value)
}

func (f *Faulty) Delete(ctx context.Context, key string) error {
	if err := f.take(&f.writesLeft); err != nil {
		return err
	}
	return f.Backend.Delete(ctx, key)
}

func (f *Faulty) Append(ctx context.Context, stream string, record []byte) error {
	if err := f.take(&f.appendsLeft); err != nil {
		return err
	}
	return f.Backend.Append(ctx, stream, record)
}

func (f *Faulty) Records(ctx context.Context, stream string) ([][]byte, error) {
	if err := f.reads(); err != nil {
		return nil, err
	}
	return f.Backend.Records(ctx, stream)
}

func (f *Faulty) Streams(ctx context.Context) ([]string, error) {
	if err := f.reads(); err != nil {
		return nil, err
	}
	return f.Backend.Streams(ctx)
}
