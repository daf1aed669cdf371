package stream

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/veritas-eu/orchestrator-core/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades an HTTP connection and tails sessionID's stream
// over it, one JSON-encoded ProgressEvent per message — the optional
// multi-client transport sink alongside the NDJSON file/stdout sink.
type WebSocketHandler struct {
	stream *Stream
	logger core.Logger
}

func NewWebSocketHandler(stream *Stream, logger core.Logger) *WebSocketHandler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &WebSocketHandler{stream: stream, logger: logger}
}

func (h *WebSocketHandler) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string, sinceSequence int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error(), "session_id": sessionID})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch, unsubscribe, err := h.stream.Subscribe(ctx, sessionID, sinceSequence)
	if err != nil {
		h.logger.Warn("stream subscribe failed", map[string]interface{}{"error": err.Error(), "session_id": sessionID})
		return
	}
	defer unsubscribe()

	go drainClient(conn, cancel)

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("websocket write failed, closing session stream", map[string]interface{}{"error": err.Error(), "session_id": sessionID})
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// drainClient reads (and discards) inbound frames so the connection's close
// handshake and ping/pong keepalive are observed; closes the session when
// the client disconnects.
func drainClient(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
