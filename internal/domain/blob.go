package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves closed ledger entries into cold storage. Implementations
// must only report success after the upload is durable; deletion from the
// primary store is the caller's decision.
type Archiver interface {
	ArchiveClosed(ctx context.Context, active map[string]bool, before time.Time) (int64, error)
}
