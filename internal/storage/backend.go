// Package storage provides the durable key/value backends the ledger persists
// into. A backend needs atomic single-key writes and an append-only record
// stream per owner; nothing else is assumed about the storage engine.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written or was deleted.
var ErrNotFound = errors.New("key not found")

// Backend is the contract the ledger requires from a storage engine.
type Backend interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put atomically replaces the value stored under key.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Append adds a record to the end of stream.
	Append(ctx context.Context, stream string, record []byte) error
	// Records returns every record of stream in append order.
	Records(ctx context.Context, stream string) ([][]byte, error)
	// Streams lists the streams that hold at least one record.
	Streams(ctx context.Context) ([]string, error)
}
