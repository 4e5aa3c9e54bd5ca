package chathub

import "time"

// SetClock replaces the clock used to age pending requests.
func (h *Handshake) SetClock(now func() time.Time) { h.now = now }
