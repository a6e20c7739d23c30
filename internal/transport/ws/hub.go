// Package ws implements the subscription API: a WebSocket upgrade that
// sends a hello frame on connect and then streams session events,
// draining the owning user session's subscriber channel.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/airwayfind/wayfinding-core/internal/bus"
	"github.com/airwayfind/wayfinding-core/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ProtocolVersion is the wire protocol version announced in the hello
// frame on connect.
const ProtocolVersion = 1

// HelloFrame is the first message sent on every subscription
// connection, announcing protocol and graph versions so clients can
// detect a stale cache before processing further events.
type HelloFrame struct {
	Type         string `json:"type"`
	Protocol     int    `json:"protocol"`
	GraphVersion uint64 `json:"graphVersion"`
	UserID       string `json:"userId"`
}

// GraphVersionFunc returns the navigation graph's current version, used
// to populate the hello frame without the ws package depending on
// internal/graph directly.
type GraphVersionFunc func() uint64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP connections to the subscription WebSocket
// protocol and bridges them to the bus.
type Handler struct {
	hub          *bus.Hub
	graphVersion GraphVersionFunc
	logger       *zap.Logger
}

// NewHandler builds a subscription Handler.
func NewHandler(hub *bus.Hub, graphVersion GraphVersionFunc, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, graphVersion: graphVersion, logger: logger}
}

// ServeHTTP upgrades the request and serves the subscription protocol
// for the user named by the "userId" query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	building := r.URL.Query().Get("building")
	if building == "" {
		building = "default"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	actor := h.hub.GetOrCreate(userID, models.BuildingID(building))
	connID := uuid.NewString()
	sub := actor.Subscribe(connID)

	hello := HelloFrame{Type: "hello", Protocol: ProtocolVersion, GraphVersion: h.graphVersion(), UserID: userID}
	if payload, err := json.Marshal(hello); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	}

	done := make(chan struct{})
	go h.readPump(conn, actor, connID, done)
	h.writePump(conn, sub, done)
}

func (h *Handler) readPump(conn *websocket.Conn, actor *bus.Actor, connID string, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			actor.Unsubscribe(connID)
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sub *bus.Subscriber, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
