package models

import "gorm.io/gorm"

// Message is a persisted chat message.
// The embedded gorm.Model supplies the message ID and CreatedAt, which the store
// assigns and which define persisted order.
type Message struct {
	gorm.Model

	// RoomID is nil for legacy messages written before rooms existed;
	// those are shown in the global room's history.
	RoomID *string `gorm:"index:idx_room_created"`
	// SenderID is the user id of the author.
	SenderID string `gorm:"type:text;not null;index"`
	// Text is the message body. May be empty when an attachment is present.
	Text string `gorm:"type:text"`

	// AttachmentURL is the opaque blob reference returned by the upload endpoint.
	AttachmentURL  string `gorm:"type:text"`
	AttachmentName string `gorm:"type:text"`
	AttachmentMime string `gorm:"type:text"`

	Reactions []Reaction    `gorm:"foreignKey:MessageID"`
	Reads     []MessageRead `gorm:"foreignKey:MessageID"`
}

// Attachment returns the message attachment, or nil when there is none.
func (m *Message) Attachment() *Attachment {
	if m.AttachmentURL == "" {
		return nil
	}
	return &Attachment{URL: m.AttachmentURL, Filename: m.AttachmentName, MimeType: m.AttachmentMime}
}

// SetAttachment copies an attachment reference onto the message.
func (m *Message) SetAttachment(a *Attachment) {
	if a == nil {
		return
	}
	m.AttachmentURL = a.URL
	m.AttachmentName = a.Filename
	m.AttachmentMime = a.MimeType
}

// ReadBy lists the users who have read the message, in receipt order.
func (m *Message) ReadBy() []string {
	ids := make([]string, 0, len(m.Reads))
	for _, r := range m.Reads {
		ids = append(ids, r.UserID)
	}
	return ids
}

// RoomKey returns the room id, or an empty string for legacy messages.
func (m *Message) RoomKey() string {
	if m.RoomID == nil {
		return ""
	}
	return *m.RoomID
}

// Reaction is one entry of a message's append-only reaction list.
// Duplicate reactions by the same user are kept.
type Reaction struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	MessageID uint   `gorm:"not null;index" json:"message_id"`
	UserID    string `gorm:"type:text;not null" json:"user_id"`
	Emoji     string `gorm:"type:text;not null" json:"emoji"`
}

// MessageRead records that a user has read a message.
type MessageRead struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID uint   `gorm:"not null;uniqueIndex:idx_message_reader"`
	UserID    string `gorm:"type:text;not null;uniqueIndex:idx_message_reader"`
}

// Attachment is a reference to an uploaded blob.
type Attachment struct {
	URL      string `json:"url" validate:"required"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}
