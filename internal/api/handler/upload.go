package handler

import (
	"errors"
	"net/http"

	"chatrelay/backend/internal/blob"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Upload stores a multipart "file" field and returns the attachment
// reference to use in a send-message event.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	if fh.Size > h.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer f.Close()

	att, err := blob.Upload(c.Request.Context(), h.Blobs, fh.Filename, f, fh.Size)
	if err != nil {
		if errors.Is(err, blob.ErrEmptyFile) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.Logger.Error("upload failed", zap.String("user_id", identity(c).UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusCreated, att)
}
