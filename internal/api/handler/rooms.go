package handler

import (
	"errors"
	"net/http"
	"strconv"

	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type roomView struct {
	RoomID     string          `json:"room_id"`
	Kind       models.RoomKind `json:"kind"`
	PeerID     string          `json:"peer_id,omitempty"`
	PeerName   string          `json:"peer_name,omitempty"`
	PeerOnline bool            `json:"peer_online,omitempty"`
}

// ListRooms returns the global room followed by the caller's private rooms.
func (h *Handler) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()
	me := identity(c)

	rooms, err := h.Store.ListRoomsForUser(ctx, me.UserID)
	if err != nil {
		h.Logger.Error("list rooms", zap.String("user_id", me.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}

	dir := h.Router.Rooms()
	peers := lo.FilterMap(rooms, func(r models.Room, _ int) (string, bool) {
		peer, err := dir.Peer(r.RoomID, me.UserID)
		return peer, err == nil
	})
	names, err := h.Store.DisplayNames(ctx, peers)
	if err != nil {
		h.Logger.Warn("peer names unavailable", zap.Error(err))
	}

	views := []roomView{{RoomID: dir.GlobalRoomID(), Kind: models.RoomKindGlobal}}
	for _, r := range rooms {
		peer, err := dir.Peer(r.RoomID, me.UserID)
		if err != nil {
			continue
		}
		views = append(views, roomView{
			RoomID:     r.RoomID,
			Kind:       models.RoomKindPrivate,
			PeerID:     peer,
			PeerName:   names[peer],
			PeerOnline: h.Router.IsOnline(peer),
		})
	}
	c.JSON(http.StatusOK, views)
}

// RoomMessages returns the latest messages of a room the caller belongs to.
func (h *Handler) RoomMessages(c *gin.Context) {
	ctx := c.Request.Context()
	me := identity(c)
	roomID := c.Param("roomID")

	limit := h.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, 500)
	}

	if err := h.Router.CanAccess(ctx, me.UserID, roomID); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, chathub.ErrInvalidRoom) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": chathub.ErrorCode(err)})
		return
	}

	messages, err := h.Store.ListHistory(ctx, roomID, limit)
	if err != nil {
		h.Logger.Error("list history", zap.String("room_id", roomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	names, err := h.Store.DisplayNames(ctx, lo.Map(messages, func(m models.Message, _ int) string { return m.SenderID }))
	if err != nil {
		h.Logger.Warn("sender names unavailable", zap.Error(err))
	}

	payload := models.HistoryPayload{RoomID: roomID, Messages: make([]models.MessagePayload, 0, len(messages))}
	for i := range messages {
		payload.Messages = append(payload.Messages, models.NewMessagePayload(&messages[i], roomID, names[messages[i].SenderID]))
	}
	c.JSON(http.StatusOK, payload)
}
