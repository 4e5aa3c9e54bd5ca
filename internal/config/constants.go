package config

import "time"

const (
	// WebSocket transport
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 16 * 1024

	// Router
	DefaultTypingTimeout = 5 * time.Second
	DefaultHistoryLimit  = 50
	DefaultSendBuffer    = 256

	// Presence mirror
	PresenceWriteTimeout = 2 * time.Second
	PresenceOnlineKey    = "presence:online"
	PresenceLastSeenKey  = "presence:last_seen:"

	// Auth
	DefaultTokenTTL = 7 * 24 * time.Hour
	DefaultIssuer   = "chatrelay"

	// Uploads
	DefaultMaxUploadBytes = 10 << 20
)
