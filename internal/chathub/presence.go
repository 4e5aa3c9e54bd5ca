package chathub

import (
	"sort"

	"github.com/samber/lo"
)

// PresenceEntry binds an online user to their single live connection.
type PresenceEntry struct {
	UserID       string
	ConnectionID string
	DisplayName  string
	Online       bool
}

// PresenceRegistry tracks who is online. A user has at most one entry;
// a new connection for the same user replaces the old one.
//
// The registry is not safe for concurrent use. The Router owns it and
// only touches it while holding its lock.
type PresenceRegistry struct {
	byUser map[string]PresenceEntry
	byConn map[string]string
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		byUser: make(map[string]PresenceEntry),
		byConn: make(map[string]string),
	}
}

// Join marks the user online on connectionID. If the user was already online
// on another connection, that entry is evicted and returned so the caller can
// close the stale connection.
func (p *PresenceRegistry) Join(connectionID, userID, displayName string) *PresenceEntry {
	if prevUser, ok := p.byConn[connectionID]; ok && prevUser != userID {
		delete(p.byUser, prevUser)
	}

	var replaced *PresenceEntry
	if prev, ok := p.byUser[userID]; ok && prev.ConnectionID != connectionID {
		delete(p.byConn, prev.ConnectionID)
		replaced = &prev
	}

	p.byUser[userID] = PresenceEntry{
		UserID:       userID,
		ConnectionID: connectionID,
		DisplayName:  displayName,
		Online:       true,
	}
	p.byConn[connectionID] = userID
	return replaced
}

// Leave removes the entry bound to connectionID. It reports false when the
// connection never joined or was already evicted by a newer connection.
func (p *PresenceRegistry) Leave(connectionID string) (PresenceEntry, bool) {
	userID, ok := p.byConn[connectionID]
	if !ok {
		return PresenceEntry{}, false
	}
	delete(p.byConn, connectionID)

	entry := p.byUser[userID]
	delete(p.byUser, userID)
	entry.Online = false
	return entry, true
}

// ListOnline returns every online entry except excludingUserID, sorted by user id.
func (p *PresenceRegistry) ListOnline(excludingUserID string) []PresenceEntry {
	entries := lo.Filter(lo.Values(p.byUser), func(e PresenceEntry, _ int) bool {
		return e.UserID != excludingUserID
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// Lookup returns the entry of an online user.
func (p *PresenceRegistry) Lookup(userID string) (PresenceEntry, bool) {
	e, ok := p.byUser[userID]
	return e, ok
}

// ByConnection returns the entry bound to a live connection.
func (p *PresenceRegistry) ByConnection(connectionID string) (PresenceEntry, bool) {
	userID, ok := p.byConn[connectionID]
	if !ok {
		return PresenceEntry{}, false
	}
	return p.byUser[userID], true
}

func (p *PresenceRegistry) IsOnline(userID string) bool {
	_, ok := p.byUser[userID]
	return ok
}

func (p *PresenceRegistry) Len() int {
	return len(p.byUser)
}
