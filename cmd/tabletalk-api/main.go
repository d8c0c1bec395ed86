package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tabletalk/tabletalk/internal/api"
	"github.com/tabletalk/tabletalk/internal/codegen"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/policy"
	"github.com/tabletalk/tabletalk/internal/prompt"
	"github.com/tabletalk/tabletalk/internal/qa"
	duckdbengine "github.com/tabletalk/tabletalk/internal/query/duckdb"
	"github.com/tabletalk/tabletalk/internal/sandbox"
)

func main() {
	// Worker mode must not load config or write anything but program rows.
	if len(os.Args) > 1 && os.Args[1] == sandbox.WorkerArg {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		code := sandbox.RunWorker(ctx, os.Stdin, os.Stdout, os.Stderr)
		stop()
		os.Exit(code)
	}

	cfg, err := config.LoadFromEnv("tabletalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("api server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancelStartup()

	duckSettings := duckdbengine.Settings{Threads: cfg.Sandbox.Threads, MemoryLimit: cfg.Sandbox.MemoryLimit}
	queryEngine := duckdbengine.NewEngine(duckSettings)

	source, closeSource, err := dataset.OpenSource(startupCtx, cfg)
	if err != nil {
		return err
	}
	snapshot, err := dataset.Build(startupCtx, source, dataset.BuildOptions{
		SnapshotDir:            cfg.Dataset.SnapshotDir,
		CategoricalMaxDistinct: cfg.Dataset.CategoricalMaxDistinct,
		DuckDB:                 duckSettings,
		Engine:                 queryEngine,
		Logger:                 logger,
	})
	closeSource()
	if err != nil {
		return err
	}
	if cfg.Dataset.SnapshotDir == "" {
		defer func() { _ = os.RemoveAll(filepath.Dir(snapshot.Path())) }()
	}
	observability.SetDatasetRows(snapshot.Rows())

	instructions, err := prompt.LoadInstructionSet(cfg.Prompt.File, cfg.Prompt.Version)
	if err != nil {
		return err
	}
	builder, err := prompt.NewBuilder(instructions)
	if err != nil {
		return err
	}
	generator, err := codegen.New(cfg.AI)
	if err != nil {
		return err
	}

	policyContent, err := policy.LoadPolicy(cfg.Sandbox.PolicyFile)
	if err != nil {
		return err
	}
	checker, err := sandbox.NewChecker(startupCtx, policyContent, snapshot.Table())
	if err != nil {
		return err
	}
	defer func() { _ = checker.Close() }()

	runner, err := sandbox.NewRunner(sandbox.Options{
		Command:        cfg.Sandbox.WorkerCommand,
		Deadline:       cfg.Sandbox.Deadline,
		MaxConcurrent:  cfg.Sandbox.MaxConcurrent,
		QueueTimeout:   cfg.Sandbox.QueueTimeout,
		MemoryLimit:    cfg.Sandbox.MemoryLimit,
		Threads:        cfg.Sandbox.Threads,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		Env:            cfg.Sandbox.Env,
		Logger:         logger,
	}, snapshot.Path(), snapshot.Table(), checker)
	if err != nil {
		return err
	}

	service, err := qa.NewService(qa.Config{
		Builder:   builder,
		Generator: generator,
		Executor:  runner,
		Schema:    snapshot.Summary(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	logger.Info("question pipeline ready",
		slog.String("provider", generator.Provider()),
		slog.String("prompt_version", builder.Version()),
		slog.String("worker", runner.WorkerPath()),
		slog.Duration("deadline", cfg.Sandbox.Deadline),
	)

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:         logger,
		Asker:          service,
		Snapshot:       snapshot,
		QueryEngine:    queryEngine,
		MaxPreviewRows: cfg.Dataset.MaxPreviewRows,
		Readiness: api.CombineReadinessChecks(
			api.CheckSnapshotFile(snapshot),
			api.CheckWorkerExecutable(runner.WorkerPath()),
		),
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return err
	}
	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}
