package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/congo-pay/pockets/internal/storage"
)

// Journal is the append-only operation log, one stream per owner. Records are
// never rewritten; a pending record is resolved by appending another record
// with the same sequence number.
type Journal struct {
	backend storage.Backend
	timeout time.Duration
}

// NewJournal builds a journal over backend; every call is bounded by timeout.
func NewJournal(backend storage.Backend, timeout time.Duration) *Journal {
	return &Journal{backend: backend, timeout: timeout}
}

// Append writes one record to the owner's stream.
func (j *Journal) Append(ctx context.Context, owner string, entry LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode log entry %d: %w", entry.Seq, err)
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	if err := j.backend.Append(ctx, owner, payload); err != nil {
		return unavailable(err)
	}
	return nil
}

// Records returns every raw record of the owner in append order. A record
// that cannot be decoded means the log itself is damaged.
func (j *Journal) Records(ctx context.Context, owner string) ([]LogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	raw, err := j.backend.Records(ctx, owner)
	if err != nil {
		return nil, unavailable(err)
	}
	entries := make([]LogEntry, 0, len(raw))
	for i, r := range raw {
		var entry LogEntry
		if err := json.Unmarshal(r, &entry); err != nil {
			return nil, &Error{Kind: ErrInvariantViolation, Cause: fmt.Errorf("decode log record %d: %w", i, err)}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Entries returns one entry per sequence number, in sequence order, where the
// last record written for a sequence wins.
func (j *Journal) Entries(ctx context.Context, owner string) ([]LogEntry, error) {
	records, err := j.Records(ctx, owner)
	if err != nil {
		return nil, err
	}
	return resolve(records), nil
}

// Owners lists every owner with a log.
func (j *Journal) Owners(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	owners, err := j.backend.Streams(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	return owners, nil
}

func resolve(records []LogEntry) []LogEntry {
	latest := make(map[uint64]LogEntry, len(records))
	for _, r := range records {
		latest[r.Seq] = r
	}
	out := make([]LogEntry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
