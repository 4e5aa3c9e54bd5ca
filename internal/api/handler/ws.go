package handler

import (
	"net/http"

	"chatrelay/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow any origin; put a proxy with an origin policy in front in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket verifies the caller's token and upgrades the connection.
// The token may come from the Authorization header or the access_token
// query parameter.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token missing"})
		return
	}
	id, err := h.Tokens.Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := chathub.NewWebSocketClient(conn, id, h.Router, h.Dispatcher, h.SendBuffer, h.Logger)
	if err := h.Router.Connect(client); err != nil {
		h.Logger.Warn("connect rejected", zap.String("user_id", id.UserID), zap.Error(err))
		conn.Close()
		return
	}
	client.Run()
}
