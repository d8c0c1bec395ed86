package api

import (
	"net/http"
	"strconv"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

const defaultPreviewRows = 500

func handleDatasetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Snapshot == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASET_NOT_CONFIGURED", "dataset snapshot is not loaded", false, nil)
		return
	}
	snapshot := deps.Snapshot
	writeJSON(w, http.StatusOK, map[string]any{
		"table":       snapshot.Table(),
		"rows":        snapshot.Rows(),
		"columns":     snapshot.Columns(),
		"summary":     snapshot.Summary(),
		"source":      snapshot.Source(),
		"fingerprint": snapshot.Fingerprint(),
		"loaded_at":   snapshot.LoadedAt(),
	})
}

func handleDatasetRows(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Snapshot == nil || deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASET_NOT_CONFIGURED", "dataset dependencies are not configured", false, nil)
		return
	}

	maxRows := deps.MaxPreviewRows
	if maxRows <= 0 {
		maxRows = defaultPreviewRows
	}
	limit := maxRows
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		limit = min(parsed, maxRows)
	}

	result, err := dataset.Preview(r.Context(), deps.QueryEngine, deps.Snapshot, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_READ_FAILED", "failed to read dataset rows", true, map[string]any{"details": err.Error()})
		return
	}

	records := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		record := make(map[string]any, len(result.Columns))
		for i, column := range result.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": result.Columns,
		"rows":    records,
		"count":   len(records),
		"total":   deps.Snapshot.Rows(),
	})
}
