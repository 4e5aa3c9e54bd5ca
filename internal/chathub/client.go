package chathub

import "chatrelay/backend/internal/models"

// Client is one live transport session as seen by the router.
// It abstracts the underlying connection so the router can be driven by
// WebSocket clients in production and by in-memory clients in tests.
type Client interface {
	// GetConnectionID returns the opaque id assigned when the transport was opened.
	GetConnectionID() string
	// GetUserID returns the verified user id bound to the connection.
	GetUserID() string
	// GetDisplayName returns the name shown to other users.
	GetDisplayName() string

	// GetSendChannel returns the channel the router writes outbound events to.
	// Only the router sends on it, and only the router closes it via Close.
	GetSendChannel() chan<- models.OutboundEvent

	// Run starts the client's read and write pumps.
	Run()
	// Close closes the send channel, which ends the write pump.
	Close()
}
