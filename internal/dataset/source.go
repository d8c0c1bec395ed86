package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tabletalk/tabletalk/internal/storage"
)

var ErrUnsupportedFormat = errors.New("unsupported dataset format")

type Format string

const (
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
	FormatNDJSON  Format = "ndjson"
)

// Staged is a local file DuckDB can read. Columns, when set, fixes the
// column order of the snapshot.
type Staged struct {
	Path    string
	Format  Format
	Columns []string
}

// Source produces the raw dataset into workDir.
type Source interface {
	Stage(ctx context.Context, workDir string) (Staged, error)
	Describe() string
}

func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	case ".json":
		return FormatJSON, nil
	case ".ndjson", ".jsonl":
		return FormatNDJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// FileSource reads a dataset file from local disk in place.
type FileSource struct {
	Path string
}

func (s FileSource) Describe() string {
	return "file:" + s.Path
}

func (s FileSource) Stage(_ context.Context, _ string) (Staged, error) {
	format, err := DetectFormat(s.Path)
	if err != nil {
		return Staged{}, err
	}
	info, err := os.Stat(s.Path)
	if err != nil {
		return Staged{}, fmt.Errorf("dataset file: %w", err)
	}
	if info.IsDir() {
		return Staged{}, fmt.Errorf("dataset file %q is a directory", s.Path)
	}
	absolute, err := filepath.Abs(s.Path)
	if err != nil {
		return Staged{}, fmt.Errorf("resolve dataset path: %w", err)
	}
	return Staged{Path: absolute, Format: format}, nil
}

type Downloader interface {
	Download(ctx context.Context, key, localPath string) (storage.ObjectInfo, error)
}

// ObjectSource downloads a dataset file from object storage.
type ObjectSource struct {
	Store Downloader
	Key   string
}

func (s ObjectSource) Describe() string {
	return "object:" + s.Key
}

func (s ObjectSource) Stage(ctx context.Context, workDir string) (Staged, error) {
	if s.Store == nil {
		return Staged{}, fmt.Errorf("object store is required")
	}
	format, err := DetectFormat(s.Key)
	if err != nil {
		return Staged{}, err
	}
	localPath := filepath.Join(workDir, "source"+filepath.Ext(s.Key))
	if _, err := s.Store.Download(ctx, s.Key, localPath); err != nil {
		return Staged{}, fmt.Errorf("download dataset %q: %w", s.Key, err)
	}
	return Staged{Path: localPath, Format: format}, nil
}
