package auth

import "time"

// SetClock replaces the clock used for issuing and verifying tokens.
func (s *TokenService) SetClock(now func() time.Time) { s.now = now }
