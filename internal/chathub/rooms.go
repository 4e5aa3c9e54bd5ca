package chathub

import (
	"fmt"
	"strings"

	"chatrelay/backend/internal/models"
)

const (
	privatePrefix = "dm"
	roomSeparator = ":"
)

// RoomDirectory names rooms and answers membership questions.
// Private room ids encode both participants, so membership is decoded from
// the id itself and no registry is needed.
type RoomDirectory struct{}

func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{}
}

// GlobalRoomID returns the id of the singleton global room.
func (d *RoomDirectory) GlobalRoomID() string {
	return models.GlobalRoomID
}

// PrivateRoomID returns "dm:<lo>:<hi>" for two distinct user ids.
// The result does not depend on argument order. Ids that are empty or
// contain the separator are rejected so that distinct pairs never collide.
func (d *RoomDirectory) PrivateRoomID(userA, userB string) (string, error) {
	if err := validUserID(userA); err != nil {
		return "", err
	}
	if err := validUserID(userB); err != nil {
		return "", err
	}
	if userA == userB {
		return "", fmt.Errorf("%w: cannot open a private room with yourself", ErrInvalidRoom)
	}
	if userB < userA {
		userA, userB = userB, userA
	}
	return privatePrefix + roomSeparator + userA + roomSeparator + userB, nil
}

// ParsePrivate decodes the two participants of a private room id.
func (d *RoomDirectory) ParsePrivate(roomID string) (string, string, error) {
	parts := strings.Split(roomID, roomSeparator)
	if len(parts) != 3 || parts[0] != privatePrefix || parts[1] == "" || parts[2] == "" || parts[1] >= parts[2] {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRoom, roomID)
	}
	return parts[1], parts[2], nil
}

// IsMember reports whether userID may act in roomID. Any online user is a
// member of the global room. For a private room the user must be one of the
// two encoded participants.
func (d *RoomDirectory) IsMember(roomID, userID string, online bool) (bool, error) {
	if roomID == models.GlobalRoomID {
		return online, nil
	}
	a, b, err := d.ParsePrivate(roomID)
	if err != nil {
		return false, err
	}
	return userID == a || userID == b, nil
}

// Room builds the persisted record for roomID.
func (d *RoomDirectory) Room(roomID string) (models.Room, error) {
	if roomID == models.GlobalRoomID {
		return models.Room{RoomID: roomID, Kind: models.RoomKindGlobal}, nil
	}
	a, b, err := d.ParsePrivate(roomID)
	if err != nil {
		return models.Room{}, err
	}
	return models.Room{RoomID: roomID, Kind: models.RoomKindPrivate, UserAID: a, UserBID: b}, nil
}

// Peer returns the other participant of a private room.
func (d *RoomDirectory) Peer(roomID, userID string) (string, error) {
	a, b, err := d.ParsePrivate(roomID)
	if err != nil {
		return "", err
	}
	switch userID {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", ErrNotAMember
}

func validUserID(id string) error {
	if id == "" || strings.Contains(id, roomSeparator) {
		return fmt.Errorf("%w: bad user id %q", ErrInvalidRoom, id)
	}
	return nil
}
