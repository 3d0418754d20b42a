package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// LedgerArchiver implements domain.Archiver by querying the ledger store for
// closed entries, serializing them to JSONL, and uploading the result to S3.
// Entries are deleted from the primary store only after the upload returns,
// so a failed upload leaves the ledger untouched and the next run retries.
type LedgerArchiver struct {
	writer domain.BlobWriter
	store  domain.LedgerStore
	log    *slog.Logger
}

// NewLedgerArchiver creates a LedgerArchiver.
func NewLedgerArchiver(writer domain.BlobWriter, store domain.LedgerStore, logger *slog.Logger) *LedgerArchiver {
	return &LedgerArchiver{
		writer: writer,
		store:  store,
		log:    logger.With("component", "archiver"),
	}
}

// ArchiveClosed uploads every closed ledger entry last updated before the
// cutoff to archive/ledger/YYYY-MM.jsonl, then removes them from the primary
// store. Returns the number of entries archived.
func (a *LedgerArchiver) ArchiveClosed(ctx context.Context, active map[string]bool, before time.Time) (int64, error) {
	entries, err := a.store.ListClosedBefore(ctx, active, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(time.Now().UTC())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := a.store.Delete(ctx, ids); err != nil {
		// The upload is durable; a failed delete means the same entries are
		// re-archived under a fresh key next run, which is harmless.
		return int64(len(entries)), fmt.Errorf("s3blob: archive prune: %w", err)
	}

	a.log.Info("archived closed ledger entries", "count", len(entries), "path", path)
	return int64(len(entries)), nil
}

// archivePath builds the S3 key for an archive file: partitioned by month,
// named by upload time so successive runs never clobber each other.
//
//	archive/ledger/2025-01/20250114T093000.jsonl
func archivePath(now time.Time) string {
	return fmt.Sprintf("archive/ledger/%s/%s.jsonl", now.Format("2006-01"), now.Format("20060102T150405"))
}

// marshalJSONL serialises entries as newline-delimited JSON, one compact
// line per entry.
func marshalJSONL(entries []domain.LedgerEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*LedgerArchiver)(nil)
