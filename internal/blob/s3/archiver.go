package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
)

// archiveBatchSize bounds how many rows are pulled from the database per
// archive slice. Each slice becomes one JSONL object in the bucket.
const archiveBatchSize = 50_000

// ArchiveImpl implements domain.Archiver by paging aged rows out of the
// stat and trade stores, serialising them to JSONL, uploading the slices to
// object storage, and deleting the archived rows once every slice for the
// cutoff has been written.
type ArchiveImpl struct {
	writer domain.BlobWriter
	stats  domain.StatStore
	trades domain.TradeStore
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, stats domain.StatStore, trades domain.TradeStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		stats:  stats,
		trades: trades,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveStats moves stat records older than the cutoff to object storage
// and deletes them from the database. It returns the number of records
// archived. Rows are only deleted after all slices have uploaded, so a
// failed run leaves the database intact and the next run re-archives.
func (a *ArchiveImpl) ArchiveStats(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for slice := 0; ; slice++ {
		records, err := a.stats.ListBefore(ctx, before, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive stats query: %w", err)
		}
		if len(records) == 0 {
			break
		}

		buf, err := marshalJSONL(records)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive stats marshal: %w", err)
		}

		path := archivePath("stats", before, slice)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive stats upload: %w", err)
		}

		// Delete exactly the archived range, not everything before the
		// cutoff, so rows written mid-run are untouched.
		last := records[len(records)-1].Timestamp
		deleted, err := a.stats.DeleteBefore(ctx, last.Add(time.Millisecond))
		if err != nil {
			return total, fmt.Errorf("s3blob: archive stats delete: %w", err)
		}

		total += deleted
		a.logger.InfoContext(ctx, "stats slice archived",
			slog.String("path", path),
			slog.Int64("rows", deleted),
		)

		if len(records) < archiveBatchSize {
			break
		}
	}
	return total, nil
}

// ArchiveTrades moves fills older than the cutoff to object storage and
// deletes them from the database. It returns the number of fills archived.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for slice := 0; ; slice++ {
		trades, err := a.trades.ListBefore(ctx, before, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades query: %w", err)
		}
		if len(trades) == 0 {
			break
		}

		buf, err := marshalJSONL(trades)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades marshal: %w", err)
		}

		path := archivePath("trades", before, slice)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive trades upload: %w", err)
		}

		last := trades[len(trades)-1].Timestamp
		deleted, err := a.trades.DeleteBefore(ctx, last.Add(time.Millisecond))
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades delete: %w", err)
		}

		total += deleted
		a.logger.InfoContext(ctx, "trades slice archived",
			slog.String("path", path),
			slog.Int64("rows", deleted),
		)

		if len(trades) < archiveBatchSize {
			break
		}
	}
	return total, nil
}

// archivePath builds the object key for an archive slice, partitioned by the
// year-month of the cutoff:
//
//	archive/stats/2026-08/000.jsonl
//	archive/trades/2026-08/001.jsonl
func archivePath(kind string, before time.Time, slice int) string {
	return fmt.Sprintf("archive/%s/%s/%03d.jsonl", kind, before.Format("2006-01"), slice)
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
