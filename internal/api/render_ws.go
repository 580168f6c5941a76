package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleRenderWS accepts a rendering-context connection and binds it to its
// channel. The context identifies itself by scenario and channel name in
// the query string; frames it sends afterwards (mount acks, captures) are
// handed to the channel, which filters out anything stale.
func (s *Server) handleRenderWS(w http.ResponseWriter, r *http.Request) {
	scenarioID := r.URL.Query().Get("scenario")
	name := r.URL.Query().Get("name")
	if scenarioID == "" || name == "" {
		http.Error(w, "scenario and name are required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}

	ch, err := s.game.Attach(scenarioID, name, conn)
	if err != nil {
		slog.Warn("rendering context for unknown channel",
			"scenario", scenarioID, "channel", name, "error", err)
		_ = conn.Close()
		return
	}

	slog.Info("rendering context connected", "scenario", scenarioID, "channel", name)

	defer func() {
		ch.Detach(conn)
		_ = conn.Close()
		slog.Info("rendering context disconnected", "scenario", scenarioID, "channel", name)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "scenario", scenarioID, "channel", name, "error", err)
			}
			return
		}
		ch.HandleFrame(message)
	}
}
