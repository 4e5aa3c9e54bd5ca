package handler

import (
	"net/http"

	"chatrelay/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type userView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// ListUsers returns every other user with their live presence.
func (h *Handler) ListUsers(c *gin.Context) {
	me := identity(c)
	users, err := h.Store.ListUsers(c.Request.Context())
	if err != nil {
		h.Logger.Error("list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}

	online := lo.SliceToMap(h.Router.Online(), func(e chathub.PresenceEntry) (string, bool) { return e.UserID, true })
	views := make([]userView, 0, len(users))
	for _, u := range users {
		if u.ID == me.UserID {
			continue
		}
		views = append(views, userView{ID: u.ID, Name: u.Name, Online: online[u.ID]})
	}
	c.JSON(http.StatusOK, views)
}
