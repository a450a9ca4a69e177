package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStorage defines minimal object storage operations required by the
// judge data flow. It is intentionally small so we can swap MinIO/AWS-S3
// implementations without touching business logic.
type ObjectStorage interface {
	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error)

	// PutObject uploads an object; sizeBytes may be -1 for unknown size.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// StatObject returns size and modification time for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectReader is a readable, closable object stream.
type ObjectReader interface {
	io.ReadCloser
}

// ObjectStat describes an object without reading it.
type ObjectStat struct {
	Size         int64
	ETag         string
	LastModified time.Time
}
