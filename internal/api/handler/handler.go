package handler

import (
	"chatrelay/backend/internal/auth"
	"chatrelay/backend/internal/blob"
	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler holds what the HTTP and WebSocket endpoints need.
type Handler struct {
	Router     *chathub.Router
	Dispatcher *chathub.Dispatcher
	Store      storage.Storage
	Tokens     *auth.TokenService
	Blobs      blob.Store
	Logger     *zap.Logger

	SendBuffer     int
	HistoryLimit   int
	MaxUploadBytes int64
}

func NewHandler(router *chathub.Router, dispatcher *chathub.Dispatcher, store storage.Storage, tokens *auth.TokenService, blobs blob.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Router:         router,
		Dispatcher:     dispatcher,
		Store:          store,
		Tokens:         tokens,
		Blobs:          blobs,
		Logger:         logger,
		SendBuffer:     config.DefaultSendBuffer,
		HistoryLimit:   config.DefaultHistoryLimit,
		MaxUploadBytes: config.DefaultMaxUploadBytes,
	}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.POST("/auth/register", h.RegisterUser)
	api.POST("/auth/login", h.Login)

	authed := api.Group("", h.RequireAuth())
	authed.GET("/users", h.ListUsers)
	authed.GET("/rooms", h.ListRooms)
	authed.GET("/rooms/:roomID/messages", h.RoomMessages)
	authed.POST("/upload", h.Upload)

	r.GET("/ws", h.ServeWebSocket)
}
