// Package archive persists backtest run records to local disk or S3.
package archive

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when nothing is stored at the key.
var ErrNotFound = errors.New("archive: not found")

// Storage is a flat key/value blob store. Keys use forward slashes
// regardless of the backend.
type Storage interface {
	// Write stores data at key, replacing what was there.
	Write(ctx context.Context, key string, data []byte) error

	// Read retrieves the data stored at key.
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns all keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)
}
