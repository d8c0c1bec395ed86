package api

import (
	"encoding/json"
	"net/http"

	"github.com/tabletalk/tabletalk/internal/prompt"
)

type chatRequest struct {
	Messages []prompt.Turn `json:"messages"`
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}

	var request chatRequest
	// Clients may attach their own fields (message ids, timestamps); they are ignored.
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, deps.Asker.Ask(r.Context(), request.Messages))
}
