package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is token protected; dashboards may be served from any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeStatsWebSocket pushes the status counters every PushInterval until the
// client disconnects.
func (h *Handler) ServeStatsWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	closed := make(chan struct{})
	go h.readPump(conn, closed)

	push := time.NewTicker(h.PushInterval)
	defer push.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if !h.pushStats(c, conn) {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case <-push.C:
			if !h.pushStats(c, conn) {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) pushStats(c *gin.Context, conn *websocket.Conn) bool {
	counts, err := h.Stats.CountByStatus(c.Request.Context())
	if err != nil {
		h.log.Error("failed to count users", "error", err)
		return true
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(counts); err != nil {
		h.log.Debug("stats feed closed", "error", err)
		return false
	}
	return true
}

// readPump discards client frames and signals when the connection closes.
func (h *Handler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
