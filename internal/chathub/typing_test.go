package chathub_test

import (
	"testing"
	"time"

	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTyping_NeverEchoedToSender(t *testing.T) {
	r := newTestRouter(new(MockBridge))
	alice := connect(t, r, "c-a", "1", "alice")
	bob := connect(t, r, "c-b", "2", "bob")
	alice.drain()

	require.NoError(t, r.Typing("c-b", models.GlobalRoomID, true))

	state := alice.next(t, models.EventTypingState).Payload.(models.TypingStatePayload)
	assert.Equal(t, "2", state.User.UserID)
	assert.True(t, state.IsTyping)
	assert.Empty(t, ofType(bob.drain(), models.EventTypingState))
}

func TestTyping_NonMemberIsIgnored(t *testing.T) {
	r := newTestRouter(new(MockBridge))
	alice := connect(t, r, "c-a", "1", "alice")
	bob := connect(t, r, "c-b", "2", "bob")
	alice.drain()
	bob.drain()

	assert.NoError(t, r.Typing("c-a", "dm:2:3", true))
	assert.NoError(t, r.Typing("c-a", "dm:1:2", true), "participant of a pair that was never accepted")
	assert.NoError(t, r.Typing("c-a", "garbage", true))

	assert.Empty(t, bob.drain())
	assert.False(t, r.IsTyping("dm:1:2", "1"))
}

func TestTyping_UnknownConnection(t *testing.T) {
	r := newTestRouter(new(MockBridge))

	assert.ErrorIs(t, r.Typing("ghost", models.GlobalRoomID, true), chathub.ErrNotConnected)
}

func TestTyping_RefreshDoesNotRebroadcast(t *testing.T) {
	r := newTestRouter(new(MockBridge))
	alice := connect(t, r, "c-a", "1", "alice")
	connect(t, r, "c-b", "2", "bob")
	alice.drain()

	require.NoError(t, r.Typing("c-b", models.GlobalRoomID, true))
	require.NoError(t, r.Typing("c-b", models.GlobalRoomID, true))

	assert.Len(t, ofType(alice.drain(), models.EventTypingState), 1)
	assert.True(t, r.IsTyping(models.GlobalRoomID, "2"))
}

func TestTyping_ExplicitStop(t *testing.T) {
	r := newTestRouter(new(MockBridge))
	alice := connect(t, r, "c-a", "1", "alice")
	connect(t, r, "c-b", "2", "bob")
	require.NoError(t, r.Typing("c-b", models.GlobalRoomID, true))
	alice.drain()

	require.NoError(t, r.Typing("c-b", models.GlobalRoomID, false))

	state := alice.next(t, models.EventTypingState).Payload.(models.TypingStatePayload)
	assert.False(t, state.IsTyping)
	assert.False(t, r.IsTyping(models.GlobalRoomID, "2"))
}

func TestTyping_ExpiresWithoutStop(t *testing.T) {
	r := chathub.NewRouter(new(MockBridge), chathub.Options{TypingTimeout: 30 * time.Millisecond})
	alice := connect(t, r, "c-a", "1", "alice")
	connect(t, r, "c-b", "2", "bob")
	require.NoError(t, r.Typing("c-b", models.GlobalRoomID, true))

	assert.Eventually(t, func() bool {
		return !r.IsTyping(models.GlobalRoomID, "2")
	}, time.Second, 5*time.Millisecond)

	states := ofType(alice.drain(), models.EventTypingState)
	require.Len(t, states, 2)
	assert.True(t, states[0].Payload.(models.TypingStatePayload).IsTyping)
	assert.False(t, states[1].Payload.(models.TypingStatePayload).IsTyping)
}

func TestTyping_StoppedTimerDoesNotClearNewIndicator(t *testing.T) {
	r := chathub.NewRouter(new(MockBridge), chathub.Options{TypingTimeout: 50 * time.Millisecond})
	alice := connect(t, r, "c-a", "1", "alice")
	connect(t, r, "c-b", "2", "bob")

	require.NoError(t, r.Typing("c-b", models.GlobalRoomID, true))
	require.NoError(t, r.Typing("c-b", models.GlobalRoomID, false))
	require.NoError(t, r.Typing("c-b", models.GlobalRoomID, true))
	alice.drain()

	assert.Eventually(t, func() bool {
		return !r.IsTyping(models.GlobalRoomID, "2")
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, ofType(alice.drain(), models.EventTypingState), 1, "exactly one expiry for the live indicator")
}

func TestTyping_PrivateRoomOnlyReachesPeer(t *testing.T) {
	bridge := new(MockBridge)
	bridge.On("FindOrCreateRoom", mock.Anything, mock.Anything).Return(nil)
	r := newTestRouter(bridge)
	alice := connect(t, r, "c-a", "1", "alice")
	bob := connect(t, r, "c-b", "2", "bob")
	carol := connect(t, r, "c-c", "3", "carol")
	roomID := openRoom(t, r, alice, bob)
	carol.drain()

	require.NoError(t, r.Typing("c-a", roomID, true))

	bob.next(t, models.EventTypingState)
	assert.Empty(t, carol.drain())
}

func TestTyping_DisconnectClearsIndicator(t *testing.T) {
	r := newTestRouter(new(MockBridge))
	alice := connect(t, r, "c-a", "1", "alice")
	connect(t, r, "c-b", "2", "bob")
	require.NoError(t, r.Typing("c-b", models.GlobalRoomID, true))
	alice.drain()

	r.Disconnect("c-b")

	events := alice.drain()
	stops := ofType(events, models.EventTypingState)
	require.Len(t, stops, 1)
	assert.False(t, stops[0].Payload.(models.TypingStatePayload).IsTyping)
	assert.Len(t, ofType(events, models.EventPresenceChanged), 1)
	assert.False(t, r.IsTyping(models.GlobalRoomID, "2"))
}

func TestTyping_StopWithoutStartIsSilent(t *testing.T) {
	r := newTestRouter(new(MockBridge))
	connect(t, r, "c-a", "1", "alice")
	bob := connect(t, r, "c-b", "2", "bob")
	bob.drain()

	require.NoError(t, r.Typing("c-a", models.GlobalRoomID, false))
	require.NoError(t, r.Typing("c-a", models.GlobalRoomID, false))

	assert.Empty(t, ofType(bob.drain(), models.EventTypingState))
}
