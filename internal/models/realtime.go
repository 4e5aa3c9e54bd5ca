package models

import (
	"encoding/json"
	"time"
)

// Inbound event types sent by clients over the WebSocket.
const (
	EventJoinGlobal  = "join-global"
	EventJoinPrivate = "join-private"
	EventRequestChat = "request-chat"
	EventRespondChat = "respond-chat"
	EventSendMessage = "send-message"
	EventTyping      = "typing"
	EventReact       = "react"
	EventRead        = "read"
)

// Outbound event types produced by the router.
const (
	EventPresenceSnapshot = "presence-snapshot"
	EventPresenceChanged  = "presence-changed"
	EventChatRequested    = "chat-requested"
	EventChatResponse     = "chat-response"
	EventMessageReceived  = "message-received"
	EventTypingState      = "typing-state"
	EventReactionUpdated  = "reaction-updated"
	EventReadUpdated      = "read-updated"
	EventHistory          = "history"
	EventAck              = "ack"
)

// InboundEvent is the envelope every client frame is decoded into.
// Data is decoded again into the payload type that matches Type.
type InboundEvent struct {
	Type      string          `json:"type" validate:"required"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type JoinPrivateData struct {
	TargetUserID string `json:"target_user_id" validate:"required"`
}

type RequestChatData struct {
	TargetUserID string `json:"target_user_id" validate:"required"`
}

type RespondChatData struct {
	RequesterID string `json:"requester_id" validate:"required"`
	Accept      bool   `json:"accept"`
}

type SendMessageData struct {
	RoomID     string      `json:"room_id" validate:"required"`
	Text       string      `json:"text,omitempty" validate:"max=4000"`
	Attachment *Attachment `json:"attachment,omitempty" validate:"omitempty"`
}

type TypingData struct {
	RoomID   string `json:"room_id" validate:"required"`
	IsTyping bool   `json:"is_typing"`
}

type ReactData struct {
	MessageID uint   `json:"message_id" validate:"required"`
	Reaction  string `json:"reaction" validate:"required,max=32"`
}

type ReadData struct {
	MessageID uint `json:"message_id" validate:"required"`
}

// OutboundEvent is the envelope written to clients.
type OutboundEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// UserSummary identifies a user in presence and handshake events.
type UserSummary struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type PresenceSnapshotPayload struct {
	Online []UserSummary `json:"online"`
}

type PresenceChangedPayload struct {
	User   UserSummary `json:"user"`
	Online bool        `json:"online"`
}

type ChatRequestedPayload struct {
	From UserSummary `json:"from"`
}

// ChatResponsePayload tells both parties how a chat request ended.
// RoomID is only set when Accepted is true.
type ChatResponsePayload struct {
	RequesterID string `json:"requester_id"`
	TargetID    string `json:"target_id"`
	Accepted    bool   `json:"accepted"`
	RoomID      string `json:"room_id,omitempty"`
}

// MessagePayload is the client view of a persisted message.
type MessagePayload struct {
	ID         uint        `json:"id"`
	RoomID     string      `json:"room_id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Reactions  []Reaction  `json:"reactions"`
	ReadBy     []string    `json:"read_by"`
}

type TypingStatePayload struct {
	RoomID   string      `json:"room_id"`
	User     UserSummary `json:"user"`
	IsTyping bool        `json:"is_typing"`
}

type ReactionUpdatedPayload struct {
	MessageID uint       `json:"message_id"`
	RoomID    string     `json:"room_id"`
	Reactions []Reaction `json:"reactions"`
}

type ReadUpdatedPayload struct {
	MessageID uint     `json:"message_id"`
	RoomID    string   `json:"room_id"`
	ReadBy    []string `json:"read_by"`
}

type HistoryPayload struct {
	RoomID   string           `json:"room_id"`
	Messages []MessagePayload `json:"messages"`
}

// AckPayload answers one inbound event. Only the sender of that event receives it.
type AckPayload struct {
	RequestID string `json:"request_id,omitempty"`
	Event     string `json:"event"`
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
	RoomID    string `json:"room_id,omitempty"`
}

// NewMessagePayload builds the client view of msg. roomID overrides the stored
// room for legacy messages that have none.
func NewMessagePayload(msg *Message, roomID, senderName string) MessagePayload {
	if msg.RoomID != nil {
		roomID = *msg.RoomID
	}
	reactions := msg.Reactions
	if reactions == nil {
		reactions = []Reaction{}
	}
	return MessagePayload{
		ID:         msg.ID,
		RoomID:     roomID,
		SenderID:   msg.SenderID,
		SenderName: senderName,
		Text:       msg.Text,
		Attachment: msg.Attachment(),
		Timestamp:  msg.CreatedAt,
		Reactions:  reactions,
		ReadBy:     msg.ReadBy(),
	}
}
