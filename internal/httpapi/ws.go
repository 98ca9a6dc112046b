package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"liveclass/internal/auth"
	"liveclass/internal/classes"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// canWatch lets students follow their own program room and the class rooms of
// sessions in that program.
func (h *Handler) canWatch(ctx context.Context, claims auth.Claims, room string) (bool, error) {
	if claims.IsAdmin() {
		return true, nil
	}
	if claims.Program == "" {
		return false, nil
	}
	if id, ok := strings.CutPrefix(room, classes.ClassRoom("")); ok {
		sess, err := h.classes.Get(ctx, id)
		if err != nil {
			return false, err
		}
		return sess.Program == claims.Program, nil
	}
	return room == classes.ProgramRoom(claims.Program), nil
}

func (h *Handler) roomStream(c *gin.Context) {
	room := c.Param("room")
	claims, _ := auth.FromContext(c)
	allowed, err := h.canWatch(c.Request.Context(), claims, room)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if !allowed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "not allowed to watch this room"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// subscribe before the handshake so nothing published after it is missed
	sub, err := h.bus.Subscribe(ctx, room)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	go readPump(conn, cancel, h.log)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and cancels the stream once the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc, log *zap.Logger) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}
