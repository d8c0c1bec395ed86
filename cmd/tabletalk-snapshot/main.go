package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/observability"
	duckdbengine "github.com/tabletalk/tabletalk/internal/query/duckdb"
	"github.com/tabletalk/tabletalk/internal/storage"
	s3store "github.com/tabletalk/tabletalk/internal/storage/s3"
)

func main() {
	upload := flag.Bool("upload", false, "publish the snapshot parquet file to the object store")
	name := flag.String("name", "dataset", "dataset name used in the object key")
	flag.Parse()

	cfg, err := config.LoadFromEnv("tabletalk-snapshot")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, closeSource, err := dataset.OpenSource(ctx, cfg)
	if err != nil {
		logger.Error("failed to open dataset source", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeSource()

	settings := duckdbengine.Settings{Threads: cfg.Sandbox.Threads, MemoryLimit: cfg.Sandbox.MemoryLimit}
	snapshot, err := dataset.Build(ctx, source, dataset.BuildOptions{
		SnapshotDir:            cfg.Dataset.SnapshotDir,
		CategoricalMaxDistinct: cfg.Dataset.CategoricalMaxDistinct,
		DuckDB:                 settings,
		Engine:                 duckdbengine.NewEngine(settings),
		Logger:                 logger,
	})
	if err != nil {
		logger.Error("failed to build snapshot", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Println(snapshot.Summary())
	fmt.Printf("snapshot: %s (%d bytes, sha256 %s)\n", snapshot.Path(), snapshot.SizeBytes(), snapshot.Fingerprint())

	if !*upload {
		return
	}
	store, err := s3store.New(ctx, dataset.S3Config(cfg.ObjectStore))
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	key, err := storage.BuildSnapshotKey(*name, snapshot.LoadedAt(), snapshot.Fingerprint())
	if err != nil {
		logger.Error("invalid snapshot key", slog.Any("error", err))
		os.Exit(1)
	}
	info, err := store.Upload(ctx, key, snapshot.Path(), map[string]string{
		storage.MetaFingerprint: snapshot.Fingerprint(),
		storage.MetaRows:        strconv.FormatInt(snapshot.Rows(), 10),
		storage.MetaSource:      snapshot.Source(),
	})
	if err != nil {
		logger.Error("failed to upload snapshot", slog.Any("error", err), slog.String("key", key))
		os.Exit(1)
	}
	logger.Info("snapshot uploaded", slog.String("key", info.Key), slog.Int64("size_bytes", info.Size))
	fmt.Printf("uploaded: %s\n", info.Key)
}
