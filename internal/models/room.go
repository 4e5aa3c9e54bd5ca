package models

import "time"

// RoomKind distinguishes the global room from pairwise private rooms.
type RoomKind string

const (
	RoomKindGlobal  RoomKind = "global"
	RoomKindPrivate RoomKind = "private"
)

// GlobalRoomID is the id of the single room every connected user can join.
const GlobalRoomID = "global"

// Room is the persisted record of a routing scope.
// For private rooms UserAID and UserBID hold the two participants in sorted order;
// both are empty for the global room.
type Room struct {
	// RoomID is the deterministic room identifier produced by the room directory.
	RoomID string `gorm:"primaryKey" json:"room_id"`
	// Kind is either "global" or "private".
	Kind RoomKind `gorm:"type:text;not null" json:"kind"`
	// UserAID is the lexically smaller participant of a private room.
	UserAID string `gorm:"index" json:"user_a_id,omitempty"`
	// UserBID is the lexically greater participant of a private room.
	UserBID   string    `gorm:"index" json:"user_b_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Participants returns the two user ids of a private room, or nil for the global room.
func (r *Room) Participants() []string {
	if r.Kind != RoomKindPrivate {
		return nil
	}
	return []string{r.UserAID, r.UserBID}
}
