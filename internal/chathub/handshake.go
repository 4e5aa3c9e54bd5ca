package chathub

import (
	"time"

	"github.com/samber/lo"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// ChatRequest is one user's request to open a private room with another.
type ChatRequest struct {
	RequesterID string
	TargetID    string
	Status      RequestStatus
	CreatedAt   time.Time
}

// Outcome describes what a Request or Respond call did.
type Outcome struct {
	Request ChatRequest
	// RoomID is set once the pair is accepted.
	RoomID string
	// AlreadyAccepted is true when the pair had been accepted before the call.
	AlreadyAccepted bool
}

func (o Outcome) Accepted() bool {
	return o.Request.Status == RequestAccepted
}

// Handshake is the per-pair request state machine:
// none -> pending(requester) -> accepted | rejected -> none.
// At most one request is pending per unordered pair; pending and accepted
// state are keyed by the private room id.
//
// Like PresenceRegistry it is owned by the Router and is not safe for
// concurrent use on its own.
type Handshake struct {
	rooms    *RoomDirectory
	pending  map[string]ChatRequest
	accepted map[string]struct{}
	ttl      time.Duration
	now      func() time.Time
}

// NewHandshake creates a Handshake. A positive ttl makes pending requests
// expire after that long; zero keeps them until answered or discarded.
func NewHandshake(rooms *RoomDirectory, ttl time.Duration) *Handshake {
	return &Handshake{
		rooms:    rooms,
		pending:  make(map[string]ChatRequest),
		accepted: make(map[string]struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Request records a pending request from requester to target. A pending
// request in the opposite direction is accepted instead.
func (h *Handshake) Request(requester, target string) (Outcome, error) {
	roomID, err := h.rooms.PrivateRoomID(requester, target)
	if err != nil {
		return Outcome{}, err
	}
	if h.IsAccepted(roomID) {
		return Outcome{
			Request:         ChatRequest{RequesterID: requester, TargetID: target, Status: RequestAccepted},
			RoomID:          roomID,
			AlreadyAccepted: true,
		}, nil
	}

	if existing, ok := h.lookup(roomID); ok {
		if existing.RequesterID == requester {
			return Outcome{}, ErrAlreadyPending
		}
		delete(h.pending, roomID)
		h.accepted[roomID] = struct{}{}
		existing.Status = RequestAccepted
		return Outcome{Request: existing, RoomID: roomID}, nil
	}

	req := ChatRequest{
		RequesterID: requester,
		TargetID:    target,
		Status:      RequestPending,
		CreatedAt:   h.now(),
	}
	h.pending[roomID] = req
	return Outcome{Request: req}, nil
}

// Respond answers the request requester sent to responder.
func (h *Handshake) Respond(responder, requester string, accept bool) (Outcome, error) {
	roomID, err := h.rooms.PrivateRoomID(requester, responder)
	if err != nil {
		return Outcome{}, ErrNoSuchRequest
	}
	req, ok := h.lookup(roomID)
	if !ok || req.RequesterID != requester {
		return Outcome{}, ErrNoSuchRequest
	}
	delete(h.pending, roomID)

	if !accept {
		req.Status = RequestRejected
		return Outcome{Request: req}, nil
	}
	h.accepted[roomID] = struct{}{}
	req.Status = RequestAccepted
	return Outcome{Request: req, RoomID: roomID}, nil
}

// DiscardFor drops every pending request the user is part of and returns them.
func (h *Handshake) DiscardFor(userID string) []ChatRequest {
	var dropped []ChatRequest
	for roomID, req := range h.pending {
		if req.RequesterID == userID || req.TargetID == userID {
			delete(h.pending, roomID)
			dropped = append(dropped, req)
		}
	}
	return dropped
}

// Pending returns the pending request between two users, in either direction.
func (h *Handshake) Pending(userA, userB string) (ChatRequest, bool) {
	roomID, err := h.rooms.PrivateRoomID(userA, userB)
	if err != nil {
		return ChatRequest{}, false
	}
	return h.lookup(roomID)
}

// PendingCount returns the number of live pending requests.
func (h *Handshake) PendingCount() int {
	return len(lo.Filter(lo.Keys(h.pending), func(roomID string, _ int) bool {
		_, ok := h.lookup(roomID)
		return ok
	}))
}

func (h *Handshake) IsAccepted(roomID string) bool {
	_, ok := h.accepted[roomID]
	return ok
}

// MarkAccepted records a pair accepted earlier, e.g. a room found in storage.
func (h *Handshake) MarkAccepted(roomID string) {
	delete(h.pending, roomID)
	h.accepted[roomID] = struct{}{}
}

func (h *Handshake) lookup(roomID string) (ChatRequest, bool) {
	req, ok := h.pending[roomID]
	if !ok {
		return ChatRequest{}, false
	}
	if h.ttl > 0 && h.now().Sub(req.CreatedAt) > h.ttl {
		delete(h.pending, roomID)
		return ChatRequest{}, false
	}
	return req, true
}
