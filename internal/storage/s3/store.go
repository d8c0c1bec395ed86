package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tabletalk/tabletalk/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// transfer is the slice of the S3 API the store needs: whole-file copies,
// metadata lookups and bucket bootstrap.
type transfer interface {
	PutFile(ctx context.Context, bucket, key, localPath string, opts minio.PutObjectOptions) (storage.ObjectInfo, error)
	GetFile(ctx context.Context, bucket, key, localPath string) error
	Head(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

// Store keeps dataset sources and published snapshots in one bucket.
type Store struct {
	api    transfer
	bucket string
	prefix string
}

var _ storage.ObjectStore = (*Store)(nil)

func New(ctx context.Context, cfg Config) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	host, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	store := newStore(bucket, cfg.Prefix, minioTransfer{client: client})
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(bucket, prefix string, api transfer) *Store {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		prefix = path.Clean(prefix)
	}
	return &Store{api: api, bucket: bucket, prefix: prefix}
}

// Upload publishes the file at localPath under key. Metadata is stored as S3
// user metadata and comes back from Download.
func (s *Store) Upload(ctx context.Context, key, localPath string, metadata map[string]string) (storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	stat, err := os.Stat(localPath)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("stat %q: %w", localPath, err)
	}
	if !stat.Mode().IsRegular() {
		return storage.ObjectInfo{}, fmt.Errorf("upload %q: not a regular file", localPath)
	}

	info, err := s.api.PutFile(ctx, s.bucket, objectKey, localPath, minio.PutObjectOptions{
		ContentType:  ContentTypeFor(key),
		UserMetadata: metadata,
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload %q: %w", objectKey, err)
	}
	if info.Size != stat.Size() {
		return storage.ObjectInfo{}, fmt.Errorf("upload %q: stored %d bytes, want %d", objectKey, info.Size, stat.Size())
	}
	info.Metadata = metadata
	return info, nil
}

// Download copies the object at key to localPath, which must not exist yet.
func (s *Store) Download(ctx context.Context, key, localPath string) (storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if _, err := os.Lstat(localPath); err == nil {
		return storage.ObjectInfo{}, fmt.Errorf("download %q: %s already exists", objectKey, localPath)
	}

	info, err := s.api.Head(ctx, s.bucket, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.ObjectInfo{}, storage.ErrObjectNotFound
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat %q: %w", objectKey, err)
	}
	if err := s.api.GetFile(ctx, s.bucket, objectKey, localPath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.ObjectInfo{}, storage.ErrObjectNotFound
		}
		return storage.ObjectInfo{}, fmt.Errorf("download %q: %w", objectKey, err)
	}

	local, err := os.Stat(localPath)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("stat %q: %w", localPath, err)
	}
	if local.Size() != info.Size {
		_ = os.Remove(localPath)
		return storage.ObjectInfo{}, fmt.Errorf("download %q: got %d bytes, want %d", objectKey, local.Size(), info.Size)
	}
	return info, nil
}

// ContentTypeFor maps dataset file extensions to content types.
func ContentTypeFor(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".csv":
		return "text/csv"
	case ".tsv":
		return "text/tab-separated-values"
	case ".json":
		return "application/json"
	case ".ndjson", ".jsonl":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// objectKey rejects empty and escaping keys and applies the prefix.
func (s *Store) objectKey(key string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return path.Join(s.prefix, cleaned), nil
}

// splitEndpoint accepts "host:port" or a URL; an https URL forces TLS.
func splitEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	switch {
	case parsed.Host == "":
		return "", false, fmt.Errorf("s3 endpoint %q has no host", raw)
	case parsed.Scheme == "https":
		return parsed.Host, true, nil
	case parsed.Scheme == "http":
		return parsed.Host, useSSL, nil
	default:
		return "", false, fmt.Errorf("s3 endpoint %q: unsupported scheme %q", raw, parsed.Scheme)
	}
}

type minioTransfer struct {
	client *minio.Client
}

func (m minioTransfer) PutFile(ctx context.Context, bucket, key, localPath string, opts minio.PutObjectOptions) (storage.ObjectInfo, error) {
	uploaded, err := m.client.FPutObject(ctx, bucket, key, localPath, opts)
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{Key: uploaded.Key, Size: uploaded.Size, ETag: uploaded.ETag, LastModified: uploaded.LastModified}, nil
}

func (m minioTransfer) GetFile(ctx context.Context, bucket, key, localPath string) error {
	return notFound(m.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}))
}

func (m minioTransfer) Head(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	object, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{
		Key:          object.Key,
		Size:         object.Size,
		ETag:         object.ETag,
		LastModified: object.LastModified,
		Metadata:     object.UserMetadata,
	}, nil
}

func (m minioTransfer) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	return exists, notFound(err)
}

func (m minioTransfer) MakeBucket(ctx context.Context, bucket, region string) error {
	return notFound(m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

// notFound maps S3 missing-object responses to storage.ErrObjectNotFound.
func notFound(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
