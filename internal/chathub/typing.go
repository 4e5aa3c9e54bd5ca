package chathub

import (
	"time"

	"chatrelay/backend/internal/models"

	"go.uber.org/zap"
)

type typingKey struct {
	roomID string
	userID string
}

// typingState is a live indicator. gen identifies the timer that may
// expire it; a refreshed indicator gets a new gen so an old timer that
// already fired cannot clear it.
type typingState struct {
	timer *time.Timer
	gen   uint64
	name  string
}

// Typing starts, refreshes or stops the caller's typing indicator in a room.
// Non-members are ignored without an error. Indicators expire on their own
// after the typing timeout. The state is never echoed to the sender.
func (r *Router) Typing(connID, roomID string, isTyping bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.presence.ByConnection(connID)
	if !ok {
		return ErrNotConnected
	}
	if !r.canType(entry.UserID, roomID) {
		r.logger.Debug("typing ignored for non-member",
			zap.String("user_id", entry.UserID),
			zap.String("room_id", roomID))
		return nil
	}

	key := typingKey{roomID: roomID, userID: entry.UserID}
	existing, active := r.typing[key]

	if !isTyping {
		if active {
			existing.timer.Stop()
			delete(r.typing, key)
			r.broadcastTyping(key, entry.DisplayName, false)
		}
		return nil
	}

	r.typingGen++
	gen := r.typingGen
	timer := time.AfterFunc(r.typingTimeout, func() { r.expireTyping(key, gen) })
	if active {
		existing.timer.Stop()
	}
	r.typing[key] = &typingState{timer: timer, gen: gen, name: entry.DisplayName}
	if !active {
		r.broadcastTyping(key, entry.DisplayName, true)
	}
	return nil
}

// IsTyping reports whether userID has a live indicator in roomID.
func (r *Router) IsTyping(roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.typing[typingKey{roomID: roomID, userID: userID}]
	return ok
}

func (r *Router) expireTyping(key typingKey, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.typing[key]
	if !ok || st.gen != gen {
		return
	}
	delete(r.typing, key)
	r.broadcastTyping(key, st.name, false)
}

// clearTypingFor stops every indicator of a departing user. mu must be held.
func (r *Router) clearTypingFor(entry PresenceEntry) {
	for key, st := range r.typing {
		if key.userID != entry.UserID {
			continue
		}
		st.timer.Stop()
		delete(r.typing, key)
		r.broadcastTyping(key, entry.DisplayName, false)
	}
}

// canType is the in-memory membership check used for typing. It never
// consults the store. mu must be held.
func (r *Router) canType(userID, roomID string) bool {
	member, err := r.rooms.IsMember(roomID, userID, r.presence.IsOnline(userID))
	if err != nil || !member {
		return false
	}
	return roomID == r.rooms.GlobalRoomID() || r.handshake.IsAccepted(roomID)
}

func (r *Router) broadcastTyping(key typingKey, name string, isTyping bool) {
	r.broadcastRoom(key.roomID, models.OutboundEvent{
		Type: models.EventTypingState,
		Payload: models.TypingStatePayload{
			RoomID:   key.roomID,
			User:     models.UserSummary{UserID: key.userID, DisplayName: name},
			IsTyping: isTyping,
		},
	}, key.userID)
}
