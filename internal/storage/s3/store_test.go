package s3

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/tabletalk/tabletalk/internal/storage"
)

func TestUploadUsesPrefixContentTypeAndMetadata(t *testing.T) {
	fake := newFakeTransfer()
	store := newStore("bucket-a", "/tabletalk/prod/", fake)

	local := writeLocal(t, "df.parquet", "PAR1")
	meta := map[string]string{storage.MetaFingerprint: "abc123", storage.MetaRows: "3"}
	info, err := store.Upload(context.Background(), "/datasets/sales/df.parquet", local, meta)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if info.Key != "tabletalk/prod/datasets/sales/df.parquet" || info.Size != 4 {
		t.Fatalf("info = %#v", info)
	}
	if fake.lastBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastBucket)
	}
	if fake.lastOpts.ContentType != "application/vnd.apache.parquet" {
		t.Fatalf("content type = %q", fake.lastOpts.ContentType)
	}
	if fake.lastOpts.UserMetadata[storage.MetaFingerprint] != "abc123" {
		t.Fatalf("metadata = %#v", fake.lastOpts.UserMetadata)
	}
	if info.Metadata[storage.MetaRows] != "3" {
		t.Fatalf("returned metadata = %#v", info.Metadata)
	}
}

func TestUploadRejectsBadKeysAndDirectories(t *testing.T) {
	store := newStore("bucket-a", "", newFakeTransfer())
	local := writeLocal(t, "a.csv", "x")

	for _, key := range []string{"", "  ", "../secrets.txt", "a/../../b", ".."} {
		if _, err := store.Upload(context.Background(), key, local, nil); err == nil {
			t.Fatalf("Upload(%q) expected key validation error", key)
		}
	}
	if _, err := store.Upload(context.Background(), "dir.csv", t.TempDir(), nil); err == nil {
		t.Fatal("expected error uploading a directory")
	}
}

func TestDownloadCopiesObjectAndMetadata(t *testing.T) {
	fake := newFakeTransfer()
	fake.put("raw/sales.csv", "a,b\n1,2\n", map[string]string{"Source": "crm"})
	store := newStore("bucket-a", "", fake)

	local := filepath.Join(t.TempDir(), "sales.csv")
	info, err := store.Download(context.Background(), "raw/sales.csv", local)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if info.Size != 8 || info.Metadata["Source"] != "crm" {
		t.Fatalf("info = %#v", info)
	}
	got, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != "a,b\n1,2\n" {
		t.Fatalf("downloaded = %q", got)
	}
}

func TestDownloadMissingObject(t *testing.T) {
	store := newStore("bucket-a", "", newFakeTransfer())
	_, err := store.Download(context.Background(), "raw/missing.csv", filepath.Join(t.TempDir(), "x.csv"))
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Download() error = %v, want ErrObjectNotFound", err)
	}
}

func TestDownloadRefusesExistingFile(t *testing.T) {
	fake := newFakeTransfer()
	fake.put("raw/sales.csv", "a\n", nil)
	store := newStore("bucket-a", "", fake)

	local := writeLocal(t, "sales.csv", "keep me")
	if _, err := store.Download(context.Background(), "raw/sales.csv", local); err == nil {
		t.Fatal("expected error for existing local file")
	}
	got, _ := os.ReadFile(local)
	if string(got) != "keep me" {
		t.Fatalf("local file overwritten: %q", got)
	}
}

func TestDownloadRemovesShortFile(t *testing.T) {
	fake := newFakeTransfer()
	fake.put("raw/sales.csv", "a,b\n1,2\n", nil)
	fake.truncate = true
	store := newStore("bucket-a", "", fake)

	local := filepath.Join(t.TempDir(), "sales.csv")
	if _, err := store.Download(context.Background(), "raw/sales.csv", local); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Fatalf("short download left behind: %v", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := newFakeTransfer()
	store := newStore("bucket-a", "", fake)

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.madeRegion != "us-east-1" {
		t.Fatalf("MakeBucket region = %q", fake.madeRegion)
	}

	fake.madeRegion = ""
	fake.bucketExists = true
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.madeRegion != "" {
		t.Fatal("MakeBucket called for existing bucket")
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a/b.PARQUET": "application/vnd.apache.parquet",
		"a.csv":       "text/csv",
		"a.ndjson":    "application/x-ndjson",
		"a.bin":       "application/octet-stream",
	}
	for key, want := range tests {
		if got := ContentTypeFor(key); got != want {
			t.Fatalf("ContentTypeFor(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		raw    string
		useSSL bool
		host   string
		secure bool
	}{
		{raw: "https://minio.example.com", host: "minio.example.com", secure: true},
		{raw: "http://localhost:9000", useSSL: true, host: "localhost:9000", secure: true},
		{raw: "localhost:9000", host: "localhost:9000"},
	}
	for _, tc := range tests {
		host, secure, err := splitEndpoint(tc.raw, tc.useSSL)
		if err != nil {
			t.Fatalf("splitEndpoint(%q) error = %v", tc.raw, err)
		}
		if host != tc.host || secure != tc.secure {
			t.Fatalf("splitEndpoint(%q) = %q/%v", tc.raw, host, secure)
		}
	}
	for _, raw := range []string{"", "ftp://minio", "https://"} {
		if _, _, err := splitEndpoint(raw, false); err == nil {
			t.Fatalf("splitEndpoint(%q) expected error", raw)
		}
	}
}

func writeLocal(t *testing.T, name, body string) string {
	t.Helper()
	local := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(local, []byte(body), 0o600); err != nil {
		t.Fatalf("write local file: %v", err)
	}
	return local
}

type fakeObject struct {
	body     string
	metadata map[string]string
}

type fakeTransfer struct {
	objects      map[string]fakeObject
	lastBucket   string
	lastOpts     minio.PutObjectOptions
	bucketExists bool
	madeRegion   string
	truncate     bool
}

func newFakeTransfer() *fakeTransfer {
	return &fakeTransfer{objects: map[string]fakeObject{}}
}

func (f *fakeTransfer) put(key, body string, metadata map[string]string) {
	f.objects[key] = fakeObject{body: body, metadata: metadata}
}

func (f *fakeTransfer) PutFile(_ context.Context, bucket, key, localPath string, opts minio.PutObjectOptions) (storage.ObjectInfo, error) {
	body, err := os.ReadFile(localPath)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.lastBucket = bucket
	f.lastOpts = opts
	f.put(key, string(body), opts.UserMetadata)
	return storage.ObjectInfo{Key: key, Size: int64(len(body)), ETag: "etag-1"}, nil
}

func (f *fakeTransfer) GetFile(_ context.Context, _, key, localPath string) error {
	object, ok := f.objects[key]
	if !ok {
		return storage.ErrObjectNotFound
	}
	body := object.body
	if f.truncate {
		body = body[:len(body)/2]
	}
	return os.WriteFile(localPath, []byte(body), 0o600)
}

func (f *fakeTransfer) Head(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	object, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(object.body)), Metadata: object.metadata}, nil
}

func (f *fakeTransfer) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeTransfer) MakeBucket(_ context.Context, _, region string) error {
	f.madeRegion = region
	return nil
}
