package chathub_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"chatrelay/backend/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBridge is a testify mock of chathub.DeliveryBridge.
type MockBridge struct {
	mock.Mock
}

// PersistMessage accepts either an error or a func(*models.Message) error
// as its return value, so tests can assign ids the way a store would.
func (m *MockBridge) PersistMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	if fn, ok := args.Get(0).(func(*models.Message) error); ok {
		return fn(msg)
	}
	return args.Error(0)
}

func (m *MockBridge) AppendReaction(ctx context.Context, messageID uint, userID, emoji string) ([]models.Reaction, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reaction), args.Error(1)
}

func (m *MockBridge) MarkRead(ctx context.Context, messageID uint, userID string) ([]string, error) {
	args := m.Called(ctx, messageID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockBridge) FindMessage(ctx context.Context, id uint) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockBridge) FindOrCreateRoom(ctx context.Context, room *models.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockBridge) RoomExists(ctx context.Context, roomID string) (bool, error) {
	args := m.Called(ctx, roomID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBridge) ListHistory(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockBridge) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

// MockPresenceStore is a testify mock of chathub.PresenceStore.
type MockPresenceStore struct {
	mock.Mock
}

func (m *MockPresenceStore) ResetPresence(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPresenceStore) MarkOnline(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockPresenceStore) MarkOffline(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// MockClient is an in-memory chathub.Client.
type MockClient struct {
	connID string
	userID string
	name   string
	send   chan models.OutboundEvent
	closed bool
}

func newMockClient(connID, userID, name string) *MockClient {
	return newBufferedMockClient(connID, userID, name, 64)
}

func newBufferedMockClient(connID, userID, name string, buffer int) *MockClient {
	return &MockClient{
		connID: connID,
		userID: userID,
		name:   name,
		send:   make(chan models.OutboundEvent, buffer),
	}
}

func (c *MockClient) GetConnectionID() string                     { return c.connID }
func (c *MockClient) GetUserID() string                           { return c.userID }
func (c *MockClient) GetDisplayName() string                      { return c.name }
func (c *MockClient) GetSendChannel() chan<- models.OutboundEvent { return c.send }

func (c *MockClient) Run() {
	// Not needed for testing
}

// Close panics on a second call, which makes double closes visible in tests.
func (c *MockClient) Close() {
	c.closed = true
	close(c.send)
}

// drain returns every queued event without blocking.
func (c *MockClient) drain() []models.OutboundEvent {
	var events []models.OutboundEvent
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

// next waits for the next event of the given type, skipping others.
func (c *MockClient) next(t *testing.T, eventType string) models.OutboundEvent {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev, ok := <-c.send:
			require.True(t, ok, "channel of %s closed while waiting for %s", c.userID, eventType)
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			require.FailNowf(t, "timed out", "%s never received %s", c.userID, eventType)
		}
	}
}

func ofType(events []models.OutboundEvent, eventType string) []models.OutboundEvent {
	var out []models.OutboundEvent
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// storeLike returns a PersistMessage behaviour that assigns increasing ids.
func storeLike() func(*models.Message) error {
	var next atomic.Uint64
	return func(msg *models.Message) error {
		msg.ID = uint(next.Add(1))
		msg.CreatedAt = time.Now()
		msg.Reads = []models.MessageRead{{MessageID: msg.ID, UserID: msg.SenderID}}
		return nil
	}
}
