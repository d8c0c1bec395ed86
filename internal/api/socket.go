package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/observability"
)

const socketWriteTimeout = 10 * time.Second

// handleChatSocket serves one conversation per connection. Each text frame
// is a chat request and is answered with one payload frame, in order.
func handleChatSocket(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(cfg.CORS.AllowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxRequestBytes)

	ctx := r.Context()
	logger := deps.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	logger = logger.With(observability.RequestAttrs(ctx)...)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("chat socket read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			if !writeSocketJSON(conn, errorBody(ctx, "TEXT_FRAME_REQUIRED", "chat requests must be sent as text frames", false, nil)) {
				return
			}
			continue
		}

		var request chatRequest
		if err := json.Unmarshal(data, &request); err != nil {
			if !writeSocketJSON(conn, errorBody(ctx, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})) {
				return
			}
			continue
		}

		if !writeSocketJSON(conn, deps.Asker.Ask(ctx, request.Messages)) {
			logger.Warn("chat socket write failed")
			return
		}
	}
}

func writeSocketJSON(conn *websocket.Conn, payload any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	return conn.WriteJSON(payload) == nil
}
