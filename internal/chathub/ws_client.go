package chathub

import (
	"context"
	"time"

	"chatrelay/backend/internal/auth"
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	ID     string
	UserID string
	Name   string
	Conn   *websocket.Conn
	Send   chan models.OutboundEvent

	router     *Router
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewWebSocketClient wraps an upgraded connection for a verified identity.
// A fresh connection id is assigned.
func NewWebSocketClient(conn *websocket.Conn, id auth.Identity, router *Router, dispatcher *Dispatcher, buffer int, logger *zap.Logger) *WebSocketClient {
	if buffer <= 0 {
		buffer = config.DefaultSendBuffer
	}
	connID := uuid.New().String()
	return &WebSocketClient{
		ID:         connID,
		UserID:     id.UserID,
		Name:       id.DisplayName,
		Conn:       conn,
		Send:       make(chan models.OutboundEvent, buffer),
		router:     router,
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("connection_id", connID), zap.String("user_id", id.UserID)),
	}
}

func (c *WebSocketClient) GetConnectionID() string                     { return c.ID }
func (c *WebSocketClient) GetUserID() string                           { return c.UserID }
func (c *WebSocketClient) GetDisplayName() string                      { return c.Name }
func (c *WebSocketClient) GetSendChannel() chan<- models.OutboundEvent { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which stops writePump. readPump stops once the
// connection is closed by writePump.
func (c *WebSocketClient) Close() {
	close(c.Send)
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.router.Disconnect(c.ID)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}
		c.dispatcher.Handle(context.Background(), c.ID, message)
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				// The router closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(event); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}

			// Flush whatever queued up meanwhile, one frame per event.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.Conn.WriteJSON(next); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
