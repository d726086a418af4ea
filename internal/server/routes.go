package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/peercall/peercall/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// The broker carries no credentials and admits anyone who knows a room
	// id, so cross-origin browser clients are allowed.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns the websocket handler for signaling connections.
func ServeWs(hub *signaling.Hub, reg *signaling.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "err", err)
			return
		}

		client := &signaling.Client{
			Hub:  hub,
			Conn: conn,
			Send: make(chan []byte, 256),
		}
		reg.Add(client)
		client.Hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

// Health responds to liveness probes.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("signaling server is healthy"))
}

// NewMux builds the broker's full route table.
func NewMux(hub *signaling.Hub, reg *signaling.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", Health)
	mux.HandleFunc("/ws", ServeWs(hub, reg))
	return mux
}
