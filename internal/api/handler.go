package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabletalk/tabletalk/internal/answer"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/prompt"
	"github.com/tabletalk/tabletalk/internal/query"
)

const maxRequestBytes = 1 << 20

type ReadinessCheck func(ctx context.Context) error

// Asker answers one conversation. Implementations never fail; every
// problem is folded into the payload.
type Asker interface {
	Ask(ctx context.Context, turns []prompt.Turn) answer.Payload
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Asker             Asker
	Snapshot          *dataset.Snapshot
	QueryEngine       query.Engine
	MaxPreviewRows    int
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/chat", func(w http.ResponseWriter, r *http.Request) {
		handleChat(deps, w, r)
	})
	mux.HandleFunc("GET /v1/chat/ws", func(w http.ResponseWriter, r *http.Request) {
		handleChatSocket(cfg, deps, w, r)
	})
	mux.HandleFunc("GET /v1/dataset/schema", func(w http.ResponseWriter, r *http.Request) {
		handleDatasetSchema(deps, w, r)
	})
	mux.HandleFunc("GET /v1/dataset/rows", func(w http.ResponseWriter, r *http.Request) {
		handleDatasetRows(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, CORSMiddleware(cfg.CORS.AllowedOrigins))
	return chain(mux, middlewares...)
}

// CheckSnapshotFile reports whether the dataset snapshot is still on disk.
func CheckSnapshotFile(snapshot *dataset.Snapshot) ReadinessCheck {
	return func(_ context.Context) error {
		if snapshot == nil {
			return errors.New("dataset snapshot is not loaded")
		}
		if _, err := os.Stat(snapshot.Path()); err != nil {
			return fmt.Errorf("dataset snapshot: %w", err)
		}
		return nil
	}
}

// CheckWorkerExecutable reports whether the sandbox worker can be started.
func CheckWorkerExecutable(path string) ReadinessCheck {
	return func(_ context.Context) error {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("sandbox worker: %w", err)
		}
		if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			return fmt.Errorf("sandbox worker %q is not executable", path)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, errorBody(ctx, code, message, retryable, extra))
}

func errorBody(ctx context.Context, code, message string, retryable bool, extra map[string]any) map[string]any {
	return map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	}
}
