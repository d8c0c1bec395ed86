package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/query"
	"github.com/tabletalk/tabletalk/internal/query/duckdb"
)

const snapshotFileName = "df.parquet"

type BuildOptions struct {
	// SnapshotDir receives df.parquet. A temporary directory is used when empty.
	SnapshotDir            string
	CategoricalMaxDistinct int
	DuckDB                 duckdb.Settings
	Engine                 query.Engine
	Logger                 *slog.Logger
	Now                    func() time.Time
}

// Build stages the source, converts it to a read-only parquet snapshot and
// profiles the columns.
func Build(ctx context.Context, source Source, opts BuildOptions) (*Snapshot, error) {
	if source == nil {
		return nil, fmt.Errorf("dataset source is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	engine := opts.Engine
	if engine == nil {
		engine = duckdb.NewEngine(opts.DuckDB)
	}
	maxDistinct := opts.CategoricalMaxDistinct
	if maxDistinct <= 0 {
		maxDistinct = 20
	}

	dir := opts.SnapshotDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "tabletalk-snapshot-")
		if err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
		dir = tmp
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	stageDir, err := os.MkdirTemp(dir, "stage-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(stageDir) }()

	start := time.Now()
	staged, err := source.Stage(ctx, stageDir)
	if err != nil {
		return nil, fmt.Errorf("stage dataset: %w", err)
	}

	stagedParquet := filepath.Join(stageDir, snapshotFileName)
	if err := convert(ctx, opts.DuckDB, staged, stagedParquet); err != nil {
		return nil, err
	}
	target, err := filepath.Abs(filepath.Join(dir, snapshotFileName))
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot path: %w", err)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("replace snapshot: %w", err)
	}
	if err := os.Rename(stagedParquet, target); err != nil {
		return nil, fmt.Errorf("publish snapshot: %w", err)
	}
	if err := os.Chmod(target, 0o444); err != nil {
		return nil, fmt.Errorf("seal snapshot: %w", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	fingerprint, err := fileFingerprint(target)
	if err != nil {
		return nil, err
	}

	rows, columns, err := profile(ctx, engine, target, maxDistinct)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		path:        target,
		source:      source.Describe(),
		rows:        rows,
		sizeBytes:   info.Size(),
		fingerprint: fingerprint,
		columns:     columns,
		loadedAt:    now().UTC(),
	}
	logger.Info("dataset snapshot built",
		"source", snapshot.source,
		"path", target,
		"rows", rows,
		"columns", len(columns),
		"size_bytes", snapshot.sizeBytes,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snapshot, nil
}

func readerExpression(staged Staged) (string, error) {
	path := duckdb.QuoteString(staged.Path)
	switch staged.Format {
	case FormatCSV:
		return fmt.Sprintf("read_csv(%s, header = true, auto_detect = true)", path), nil
	case FormatTSV:
		return fmt.Sprintf("read_csv(%s, header = true, delim = '\\t', auto_detect = true)", path), nil
	case FormatParquet:
		return fmt.Sprintf("read_parquet(%s)", path), nil
	case FormatJSON:
		return fmt.Sprintf("read_json_auto(%s)", path), nil
	case FormatNDJSON:
		return fmt.Sprintf("read_json(%s, format = 'newline_delimited')", path), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, staged.Format)
	}
}

func convert(ctx context.Context, settings duckdb.Settings, staged Staged, target string) error {
	reader, err := readerExpression(staged)
	if err != nil {
		return err
	}
	projection := "*"
	if len(staged.Columns) > 0 {
		quoted := make([]string, len(staged.Columns))
		for i, column := range staged.Columns {
			quoted[i] = duckdb.QuoteIdent(column)
		}
		projection = strings.Join(quoted, ", ")
	}

	db, err := duckdb.Open(settings)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	copySQL := fmt.Sprintf("COPY (SELECT %s FROM %s) TO %s (FORMAT parquet)", projection, reader, duckdb.QuoteString(target))
	if _, err := db.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("convert dataset to parquet: %w", err)
	}
	return nil
}

func fileFingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("hash snapshot: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
