// Package storage defines the blob archive abstraction used to retain
// snapshots of accepted sources. Snapshots form the audit trail behind
// scored evidence: every quote in a result can be traced back to the
// bytes it was extracted from. Implementations cover Google Cloud
// Storage, the local filesystem, and memory.
package storage

import (
	"context"
	"io"
)

// Archiver persists one source snapshot and returns its location URI.
type Archiver interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// NoOpArchiver discards snapshots. Used for dry runs where sources are
// fetched and scored but not retained.
type NoOpArchiver struct{}

// PutObject drops the data and returns an empty URI.
func (NoOpArchiver) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", nil
}
