package database

import (
	"context"
)

// SampleReader provides read-only access to enrolled face samples
type SampleReader interface {
	// ListIdentities returns every distinct (user id, name) pair, ordered by id then name
	ListIdentities(ctx context.Context) ([]Identity, error)
	// EachSample streams all samples oldest first; a non-nil error from fn stops the scan and is returned
	EachSample(ctx context.Context, fn func(Sample) error) error
	// Count returns the total number of stored samples
	Count(ctx context.Context) (int, error)
}

// SampleWriter provides write access to enrolled face samples
type SampleWriter interface {
	SampleReader

	// InsertSample stores a new sample and returns its id
	InsertSample(ctx context.Context, s Sample) (int64, error)
}

// Store is an open sample store backed by a connection pool.
type Store interface {
	SampleWriter

	// Ping verifies the connection is alive
	Ping(ctx context.Context) error
	// Close releases the connection pool
	Close() error
}
