package chathub

import (
	"context"

	"chatrelay/backend/internal/models"
)

// DeliveryBridge is what the router needs from the record store.
// Calls for a single room are issued in the order the router accepted the
// events, and the store must not reorder them.
type DeliveryBridge interface {
	// PersistMessage stores msg, assigning its ID and CreatedAt.
	PersistMessage(ctx context.Context, msg *models.Message) error
	// AppendReaction adds a reaction and returns the full, ordered reaction list.
	AppendReaction(ctx context.Context, messageID uint, userID, emoji string) ([]models.Reaction, error)
	// MarkRead records a read receipt and returns every reader.
	MarkRead(ctx context.Context, messageID uint, userID string) ([]string, error)
	// FindMessage returns nil without an error when the message does not exist.
	FindMessage(ctx context.Context, id uint) (*models.Message, error)

	FindOrCreateRoom(ctx context.Context, room *models.Room) error
	RoomExists(ctx context.Context, roomID string) (bool, error)
	ListHistory(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}
