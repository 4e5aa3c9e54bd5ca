package chathub

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// PresenceNotifier receives fire-and-forget presence changes.
type PresenceNotifier interface {
	Notify(userID string, online bool)
}

// Options tune a Router. Zero values fall back to the defaults in config.
type Options struct {
	TypingTimeout  time.Duration
	ChatRequestTTL time.Duration
	HistoryLimit   int
	Logger         *zap.Logger
	// Mirror, when set, is told about every presence change.
	Mirror PresenceNotifier
}

// Router is the single authority over presence, room membership, chat
// requests and typing state. All of that state is guarded by mu.
// Events are fanned out while mu is held, with non-blocking sends, so a
// slow client loses events instead of stalling the router.
//
// Store calls never run under mu. Messages, reactions and read receipts of
// one room are serialized by a per-room lock so that broadcast order matches
// the order the router accepted them.
type Router struct {
	mu        sync.Mutex
	presence  *PresenceRegistry
	rooms     *RoomDirectory
	handshake *Handshake
	clients   map[string]Client
	joined    map[string]map[string]struct{}
	typing    map[typingKey]*typingState
	typingGen uint64
	closed    bool

	seqMu   sync.Mutex
	roomSeq map[string]*sync.Mutex

	bridge        DeliveryBridge
	mirror        PresenceNotifier
	logger        *zap.Logger
	typingTimeout time.Duration
	historyLimit  int
}

func NewRouter(bridge DeliveryBridge, opts Options) *Router {
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = config.DefaultTypingTimeout
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = config.DefaultHistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	rooms := NewRoomDirectory()
	return &Router{
		presence:      NewPresenceRegistry(),
		rooms:         rooms,
		handshake:     NewHandshake(rooms, opts.ChatRequestTTL),
		clients:       make(map[string]Client),
		joined:        make(map[string]map[string]struct{}),
		typing:        make(map[typingKey]*typingState),
		roomSeq:       make(map[string]*sync.Mutex),
		bridge:        bridge,
		mirror:        opts.Mirror,
		logger:        opts.Logger,
		typingTimeout: opts.TypingTimeout,
		historyLimit:  opts.HistoryLimit,
	}
}

// Rooms exposes the room directory for id resolution outside the router.
func (r *Router) Rooms() *RoomDirectory {
	return r.rooms
}

// Connect registers a freshly authenticated client. A previous connection
// of the same user is evicted and closed. The new client receives a
// presence snapshot and everyone else a presence-changed event.
func (r *Router) Connect(client Client) error {
	connID, userID := client.GetConnectionID(), client.GetUserID()
	if connID == "" || userID == "" {
		return ErrNotConnected
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		client.Close()
		return ErrNotConnected
	}

	replaced := r.presence.Join(connID, userID, client.GetDisplayName())
	if replaced != nil {
		r.dropConnection(replaced.ConnectionID)
		r.logger.Info("connection replaced",
			zap.String("user_id", userID),
			zap.String("old_connection_id", replaced.ConnectionID),
			zap.String("connection_id", connID))
	}
	r.clients[connID] = client
	r.joined[connID] = make(map[string]struct{})

	snapshot := lo.Map(r.presence.ListOnline(userID), func(e PresenceEntry, _ int) models.UserSummary {
		return summary(e)
	})
	r.sendToConn(connID, models.OutboundEvent{
		Type:    models.EventPresenceSnapshot,
		Payload: models.PresenceSnapshotPayload{Online: snapshot},
	})

	entry, _ := r.presence.Lookup(userID)
	r.broadcastAll(models.OutboundEvent{
		Type:    models.EventPresenceChanged,
		Payload: models.PresenceChangedPayload{User: summary(entry), Online: true},
	}, userID)
	r.notifyMirror(userID, true)

	r.logger.Info("client connected", zap.String("user_id", userID), zap.String("connection_id", connID))
	return nil
}

// Disconnect tears down a connection. Pending chat requests of the user are
// discarded and their typing indicators are cleared. Calling it for an
// unknown or already evicted connection does nothing.
func (r *Router) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropConnection(connID)
	entry, ok := r.presence.Leave(connID)
	if !ok {
		return
	}

	dropped := r.handshake.DiscardFor(entry.UserID)
	r.clearTypingFor(entry)
	r.broadcastAll(models.OutboundEvent{
		Type:    models.EventPresenceChanged,
		Payload: models.PresenceChangedPayload{User: summary(entry), Online: false},
	}, entry.UserID)
	r.notifyMirror(entry.UserID, false)

	r.logger.Info("client disconnected",
		zap.String("user_id", entry.UserID),
		zap.String("connection_id", connID),
		zap.Int("discarded_requests", len(dropped)))
}

// JoinGlobal joins the connection to the global room and delivers its history.
func (r *Router) JoinGlobal(ctx context.Context, connID string) (string, error) {
	roomID := r.rooms.GlobalRoomID()

	r.mu.Lock()
	if _, ok := r.presence.ByConnection(connID); !ok {
		r.mu.Unlock()
		return "", ErrNotConnected
	}
	r.joined[connID][roomID] = struct{}{}
	r.mu.Unlock()

	r.deliverHistory(ctx, connID, roomID)
	return roomID, nil
}

// JoinPrivate joins the private room shared with targetUserID. The pair must
// have an accepted chat request, or a room that already exists in storage.
func (r *Router) JoinPrivate(ctx context.Context, connID, targetUserID string) (string, error) {
	r.mu.Lock()
	entry, ok := r.presence.ByConnection(connID)
	r.mu.Unlock()
	if !ok {
		return "", ErrNotConnected
	}

	roomID, err := r.rooms.PrivateRoomID(entry.UserID, targetUserID)
	if err != nil {
		return "", err
	}
	if err := r.authorize(ctx, entry.UserID, roomID); err != nil {
		return "", err
	}

	r.mu.Lock()
	joined, ok := r.joined[connID]
	if ok {
		joined[roomID] = struct{}{}
	}
	r.mu.Unlock()
	if !ok {
		return "", ErrNotConnected
	}

	r.deliverHistory(ctx, connID, roomID)
	return roomID, nil
}

// RequestChat asks targetUserID to open a private room. If the target had
// already asked the caller, the pair is accepted on the spot and both
// receive a chat-response.
func (r *Router) RequestChat(connID, targetUserID string) (Outcome, error) {
	r.mu.Lock()
	entry, ok := r.presence.ByConnection(connID)
	if !ok {
		r.mu.Unlock()
		return Outcome{}, ErrNotConnected
	}

	roomID, err := r.rooms.PrivateRoomID(entry.UserID, targetUserID)
	if err != nil {
		r.mu.Unlock()
		return Outcome{}, err
	}
	if !r.handshake.IsAccepted(roomID) && !r.presence.IsOnline(targetUserID) {
		r.mu.Unlock()
		return Outcome{}, ErrTargetOffline
	}

	outcome, err := r.handshake.Request(entry.UserID, targetUserID)
	if err != nil {
		r.mu.Unlock()
		return Outcome{}, err
	}

	switch {
	case outcome.AlreadyAccepted:
	case outcome.Accepted():
		r.sendChatResponse(outcome)
	default:
		r.sendToUser(targetUserID, models.OutboundEvent{
			Type:    models.EventChatRequested,
			Payload: models.ChatRequestedPayload{From: summary(entry)},
		})
	}
	r.mu.Unlock()

	if outcome.Accepted() && !outcome.AlreadyAccepted {
		r.materializeRoom(outcome.RoomID)
	}
	return outcome, nil
}

// RespondChat answers a pending request from requesterID. Both parties
// receive a chat-response; on acceptance it carries the room id.
func (r *Router) RespondChat(connID, requesterID string, accept bool) (Outcome, error) {
	r.mu.Lock()
	entry, ok := r.presence.ByConnection(connID)
	if !ok {
		r.mu.Unlock()
		return Outcome{}, ErrNotConnected
	}

	outcome, err := r.handshake.Respond(entry.UserID, requesterID, accept)
	if err != nil {
		r.mu.Unlock()
		return Outcome{}, err
	}
	r.sendChatResponse(outcome)
	r.mu.Unlock()

	if outcome.Accepted() {
		r.materializeRoom(outcome.RoomID)
	}
	return outcome, nil
}

// SendMessage persists a message and then broadcasts it to every online
// member of the room, sender included. Nothing is broadcast when the store
// rejects the message.
func (r *Router) SendMessage(ctx context.Context, connID, roomID, text string, attachment *models.Attachment) (models.MessagePayload, error) {
	if strings.TrimSpace(text) == "" && attachment == nil {
		return models.MessagePayload{}, ErrEmptyMessage
	}

	r.mu.Lock()
	entry, ok := r.presence.ByConnection(connID)
	r.mu.Unlock()
	if !ok {
		return models.MessagePayload{}, ErrNotConnected
	}
	if err := r.authorize(ctx, entry.UserID, roomID); err != nil {
		return models.MessagePayload{}, err
	}

	seq := r.sequencer(roomID)
	seq.Lock()
	defer seq.Unlock()

	msg := &models.Message{RoomID: &roomID, SenderID: entry.UserID, Text: text}
	msg.SetAttachment(attachment)
	if err := r.bridge.PersistMessage(ctx, msg); err != nil {
		r.logger.Error("persist message failed",
			zap.String("room_id", roomID),
			zap.String("sender_id", entry.UserID),
			zap.Error(err))
		return models.MessagePayload{}, ErrPersistenceFailed
	}

	payload := models.NewMessagePayload(msg, roomID, entry.DisplayName)

	r.mu.Lock()
	r.broadcastRoom(roomID, models.OutboundEvent{Type: models.EventMessageReceived, Payload: payload}, "")
	r.mu.Unlock()
	return payload, nil
}

// React appends a reaction to a message and broadcasts the updated list to
// the message's room.
func (r *Router) React(ctx context.Context, connID string, messageID uint, reaction string) ([]models.Reaction, error) {
	entry, roomID, err := r.resolveMessage(ctx, connID, messageID)
	if err != nil {
		return nil, err
	}

	seq := r.sequencer(roomID)
	seq.Lock()
	defer seq.Unlock()

	reactions, err := r.bridge.AppendReaction(ctx, messageID, entry.UserID, reaction)
	if err != nil {
		r.logger.Error("append reaction failed", zap.Uint("message_id", messageID), zap.Error(err))
		return nil, ErrPersistenceFailed
	}

	r.mu.Lock()
	r.broadcastRoom(roomID, models.OutboundEvent{
		Type:    models.EventReactionUpdated,
		Payload: models.ReactionUpdatedPayload{MessageID: messageID, RoomID: roomID, Reactions: reactions},
	}, "")
	r.mu.Unlock()
	return reactions, nil
}

// MarkRead records that the caller read a message and broadcasts the
// reader list to the message's room.
func (r *Router) MarkRead(ctx context.Context, connID string, messageID uint) ([]string, error) {
	entry, roomID, err := r.resolveMessage(ctx, connID, messageID)
	if err != nil {
		return nil, err
	}

	seq := r.sequencer(roomID)
	seq.Lock()
	defer seq.Unlock()

	readers, err := r.bridge.MarkRead(ctx, messageID, entry.UserID)
	if err != nil {
		r.logger.Error("mark read failed", zap.Uint("message_id", messageID), zap.Error(err))
		return nil, ErrPersistenceFailed
	}

	r.mu.Lock()
	r.broadcastRoom(roomID, models.OutboundEvent{
		Type:    models.EventReadUpdated,
		Payload: models.ReadUpdatedPayload{MessageID: messageID, RoomID: roomID, ReadBy: readers},
	}, "")
	r.mu.Unlock()
	return readers, nil
}

// Reply sends an event to a single connection, e.g. an ack.
func (r *Router) Reply(connID string, event models.OutboundEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendToConn(connID, event)
}

// Online returns the current presence snapshot sorted by user id.
func (r *Router) Online() []PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.ListOnline("")
}

// JoinedRooms lists the rooms a connection has joined, sorted.
func (r *Router) JoinedRooms(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := lo.Keys(r.joined[connID])
	sort.Strings(rooms)
	return rooms
}

func (r *Router) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.IsOnline(userID)
}

// CanAccess reports whether userID may read roomID. It is used by the
// history endpoint, where the user need not be connected.
func (r *Router) CanAccess(ctx context.Context, userID, roomID string) error {
	if roomID == r.rooms.GlobalRoomID() {
		return nil
	}
	return r.authorize(ctx, userID, roomID)
}

// Close disconnects every client and stops all typing timers. Each user
// still online is reported offline to the mirror.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for key, st := range r.typing {
		st.timer.Stop()
		delete(r.typing, key)
	}
	for connID := range r.clients {
		r.dropConnection(connID)
		if entry, ok := r.presence.Leave(connID); ok {
			r.notifyMirror(entry.UserID, false)
		}
	}
}

// authorize checks that userID may act in roomID. Private rooms need an
// accepted pair; a room found in storage counts as accepted.
func (r *Router) authorize(ctx context.Context, userID, roomID string) error {
	r.mu.Lock()
	member, err := r.rooms.IsMember(roomID, userID, r.presence.IsOnline(userID))
	accepted := roomID == r.rooms.GlobalRoomID() || r.handshake.IsAccepted(roomID)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if !member {
		return ErrNotAMember
	}
	if accepted {
		return nil
	}

	exists, err := r.bridge.RoomExists(ctx, roomID)
	if err != nil {
		r.logger.Warn("room lookup failed", zap.String("room_id", roomID), zap.Error(err))
		return ErrNotAMember
	}
	if !exists {
		return ErrNotAMember
	}
	r.mu.Lock()
	r.handshake.MarkAccepted(roomID)
	r.mu.Unlock()
	return nil
}

// resolveMessage finds the room a message belongs to and checks that the
// caller is a member of it. Messages without a room belong to the global room.
func (r *Router) resolveMessage(ctx context.Context, connID string, messageID uint) (PresenceEntry, string, error) {
	r.mu.Lock()
	entry, ok := r.presence.ByConnection(connID)
	r.mu.Unlock()
	if !ok {
		return PresenceEntry{}, "", ErrNotConnected
	}

	msg, err := r.bridge.FindMessage(ctx, messageID)
	if err != nil {
		r.logger.Error("find message failed", zap.Uint("message_id", messageID), zap.Error(err))
		return PresenceEntry{}, "", ErrPersistenceFailed
	}
	if msg == nil {
		return PresenceEntry{}, "", ErrNotFound
	}
	roomID := msg.RoomKey()
	if roomID == "" {
		roomID = r.rooms.GlobalRoomID()
	}
	if err := r.authorize(ctx, entry.UserID, roomID); err != nil {
		return PresenceEntry{}, "", err
	}
	return entry, roomID, nil
}

func (r *Router) deliverHistory(ctx context.Context, connID, roomID string) {
	messages, err := r.bridge.ListHistory(ctx, roomID, r.historyLimit)
	if err != nil {
		r.logger.Warn("history unavailable", zap.String("room_id", roomID), zap.Error(err))
		return
	}

	senderIDs := lo.Uniq(lo.Map(messages, func(m models.Message, _ int) string { return m.SenderID }))
	names, err := r.bridge.DisplayNames(ctx, senderIDs)
	if err != nil {
		r.logger.Warn("sender names unavailable", zap.String("room_id", roomID), zap.Error(err))
	}

	payload := models.HistoryPayload{RoomID: roomID, Messages: make([]models.MessagePayload, 0, len(messages))}
	for i := range messages {
		payload.Messages = append(payload.Messages,
			models.NewMessagePayload(&messages[i], roomID, names[messages[i].SenderID]))
	}
	r.Reply(connID, models.OutboundEvent{Type: models.EventHistory, Payload: payload})
}

func (r *Router) materializeRoom(roomID string) {
	room, err := r.rooms.Room(roomID)
	if err != nil {
		return
	}
	if err := r.bridge.FindOrCreateRoom(context.Background(), &room); err != nil {
		r.logger.Error("failed to store accepted room", zap.String("room_id", roomID), zap.Error(err))
	}
}

func (r *Router) sequencer(roomID string) *sync.Mutex {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	m, ok := r.roomSeq[roomID]
	if !ok {
		m = &sync.Mutex{}
		r.roomSeq[roomID] = m
	}
	return m
}

// The helpers below must be called with mu held.

func (r *Router) sendChatResponse(o Outcome) {
	ev := models.OutboundEvent{
		Type: models.EventChatResponse,
		Payload: models.ChatResponsePayload{
			RequesterID: o.Request.RequesterID,
			TargetID:    o.Request.TargetID,
			Accepted:    o.Accepted(),
			RoomID:      o.RoomID,
		},
	}
	r.sendToUser(o.Request.RequesterID, ev)
	r.sendToUser(o.Request.TargetID, ev)
}

func (r *Router) dropConnection(connID string) {
	client, ok := r.clients[connID]
	if !ok {
		return
	}
	delete(r.clients, connID)
	delete(r.joined, connID)
	client.Close()
}

func (r *Router) sendToConn(connID string, ev models.OutboundEvent) {
	client, ok := r.clients[connID]
	if !ok {
		return
	}
	select {
	case client.GetSendChannel() <- ev:
	default:
		r.logger.Warn("send buffer full, dropping event",
			zap.String("connection_id", connID),
			zap.String("user_id", client.GetUserID()),
			zap.String("event", ev.Type))
	}
}

func (r *Router) sendToUser(userID string, ev models.OutboundEvent) {
	if entry, ok := r.presence.Lookup(userID); ok {
		r.sendToConn(entry.ConnectionID, ev)
	}
}

func (r *Router) broadcastAll(ev models.OutboundEvent, exceptUserID string) {
	for _, e := range r.presence.ListOnline(exceptUserID) {
		r.sendToConn(e.ConnectionID, ev)
	}
}

// broadcastRoom sends ev to the online members of roomID.
func (r *Router) broadcastRoom(roomID string, ev models.OutboundEvent, exceptUserID string) {
	if roomID == r.rooms.GlobalRoomID() {
		r.broadcastAll(ev, exceptUserID)
		return
	}
	a, b, err := r.rooms.ParsePrivate(roomID)
	if err != nil {
		return
	}
	for _, userID := range []string{a, b} {
		if userID != exceptUserID {
			r.sendToUser(userID, ev)
		}
	}
}

func (r *Router) notifyMirror(userID string, online bool) {
	if r.mirror != nil {
		r.mirror.Notify(userID, online)
	}
}

func summary(e PresenceEntry) models.UserSummary {
	return models.UserSummary{UserID: e.UserID, DisplayName: e.DisplayName}
}
