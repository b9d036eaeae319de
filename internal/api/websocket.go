package api

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mewayz-notifications/internal/realtime"
)

type clientMessage struct {
	Type string `json:"type"`
}

type pongMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ServeWebSocket upgrades the request and keeps the session registered until
// the client goes away. Clients send "ping" (plain or as {"type":"ping"}) to
// keep the session alive; anything else is ignored.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID := c.Param("user_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed for user %s: %v", userID, err)
		return
	}
	defer conn.Close()

	if err := h.registry.Register(conn, userID); err != nil {
		h.logger.Warnf("Rejected WebSocket connection for user %s: %v", userID, err)
		reason := "registration failed"
		if errors.Is(err, realtime.ErrTooManyConnections) {
			reason = "too many connections"
		}
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}
	defer h.registry.Unregister(conn)

	if h.ws.readLimit > 0 {
		conn.SetReadLimit(h.ws.readLimit)
	}
	_ = conn.SetReadDeadline(time.Now().Add(h.ws.pongWait))
	conn.SetPongHandler(func(string) error {
		h.registry.Touch(conn)
		return conn.SetReadDeadline(time.Now().Add(h.ws.pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnf("WebSocket read error for user %s: %v", userID, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.ws.pongWait))
		if !isPing(data) {
			continue
		}
		h.registry.Touch(conn)
		reply, _ := json.Marshal(pongMessage{Type: "pong", Timestamp: time.Now().UTC()})
		if err := h.registry.Reply(conn, reply); err != nil {
			h.logger.Warnf("Failed to answer ping from user %s: %v", userID, err)
			return
		}
	}
}

func isPing(data []byte) bool {
	if strings.EqualFold(strings.TrimSpace(string(data)), "ping") {
		return true
	}
	var msg clientMessage
	return json.Unmarshal(data, &msg) == nil && msg.Type == "ping"
}
