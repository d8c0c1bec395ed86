package storage

import (
	"context"
	"errors"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// Metadata keys attached to published snapshots.
const (
	MetaFingerprint = "fingerprint"
	MetaRows        = "rows"
	MetaSource      = "source"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	Metadata     map[string]string
}

// ObjectStore moves dataset files between local disk and a bucket. Keys are
// relative to the store's prefix.
type ObjectStore interface {
	Upload(ctx context.Context, key, localPath string, metadata map[string]string) (ObjectInfo, error)
	Download(ctx context.Context, key, localPath string) (ObjectInfo, error)
}
