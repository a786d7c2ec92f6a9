package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"roomchat/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the session token carried in the query is the access control here
	CheckOrigin: func(r *http.Request) bool { return true },
}

// roomEvents handles HTTP requests on "/rooms/events" endpoint. It upgrades
// the connection to a websocket scoped to the session's room and streams
// change records until the peer disconnects.
func (h *handler) roomEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing session token", http.StatusUnauthorized)
		return
	}

	claims, err := h.sessions.Resolve(token)
	if err != nil {
		http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade: %v", err)
		return
	}

	realtime.NewClient(h.hub, conn, claims.RoomID, claims.ID, h.logger).Serve()
}
