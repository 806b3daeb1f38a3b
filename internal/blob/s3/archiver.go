package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/yamops/yamkeeper/internal/domain"
)

// archiveBatchSize bounds how many audit rows travel in one archive file.
const archiveBatchSize = 10_000

// BlobWriter is the slice of the writer the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves audit rows past the retention window into object
// storage as JSONL files, then deletes them from the primary store. The
// upload lands before the delete, so a failed upload leaves the rows in
// place for the next pass.
type Archiver struct {
	writer    BlobWriter
	audit     domain.AuditStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	now func() time.Time
}

// NewArchiver creates an Archiver keeping audit rows for retention and
// running a pass every interval.
func NewArchiver(writer BlobWriter, audit domain.AuditStore, retention, interval time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		audit:     audit,
		retention: retention,
		interval:  interval,
		logger:    logger.With(slog.String("component", "archiver")),
		now:       time.Now,
	}
}

// Run executes archive passes on the configured interval until the
// context is cancelled. Failures are logged and retried next tick.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// ArchiveOnce archives every audit row older than the retention cutoff
// and reports how many rows moved.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int64, error) {
	cutoff := a.now().UTC().Add(-a.retention)

	var total int64
	for {
		entries, err := a.audit.ListBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(entries) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(entries)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}

		path := archivePath(entries[len(entries)-1].CreatedAt)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		// Delete only what this batch covered. Using the last archived
		// row's timestamp keeps rows that arrived between the list and
		// the delete.
		deleted, err := a.audit.DeleteBefore(ctx, entries[len(entries)-1].CreatedAt.Add(time.Nanosecond))
		if err != nil {
			return total, fmt.Errorf("s3blob: archive delete: %w", err)
		}
		total += deleted

		a.logger.InfoContext(ctx, "audit batch archived",
			slog.String("path", path),
			slog.Int("rows", len(entries)),
		)

		if len(entries) < archiveBatchSize {
			return total, nil
		}
	}
}

// archivePath partitions archive files by the day of the newest row they
// carry, suffixed with a nanosecond stamp so repeated passes never clash.
func archivePath(newest time.Time) string {
	return fmt.Sprintf("archive/audit/%s/%d.jsonl", newest.Format("2006-01-02"), newest.UnixNano())
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
