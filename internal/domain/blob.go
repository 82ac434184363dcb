package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is the listing metadata for one archived object. ContentType is
// only populated on paths that report it; bulk listings leave it empty.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads archive objects to cold storage. Put is for payloads
// that fit one request; PutMultipart streams larger ones in parts.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves archive objects from cold storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports aged stat and trade rows to cold storage and deletes
// them from the database, returning the number of rows moved.
type Archiver interface {
	ArchiveStats(ctx context.Context, before time.Time) (int64, error)
	ArchiveTrades(ctx context.Context, before time.Time) (int64, error)
}
