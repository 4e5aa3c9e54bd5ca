package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestService creates a file-backed SQLite database in a temp dir.
func setupTestService(t *testing.T) *storage.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "chat.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, storage.AutoMigrate(db))

	return storage.NewStorageService(db, nil, nil)
}

func strPtr(s string) *string { return &s }

func TestService_CreateAndFindUser(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	user := &models.User{Name: "alice", Email: "alice@example.com", PasswordHash: "x"}
	require.NoError(t, svc.CreateUser(ctx, user))
	assert.NotEmpty(t, user.ID)

	byEmail, err := svc.FindUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, user.ID, byEmail.ID)

	byID, err := svc.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "alice", byID.Name)

	missing, err := svc.FindUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestService_CreateUser_DuplicateEmail(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, &models.User{Name: "a", Email: "dup@example.com", PasswordHash: "x"}))
	err := svc.CreateUser(ctx, &models.User{Name: "b", Email: "dup@example.com", PasswordHash: "x"})

	assert.ErrorIs(t, err, storage.ErrUserExists)
}

func TestService_DisplayNames(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	alice := &models.User{Name: "alice", Email: "a@example.com", PasswordHash: "x"}
	bob := &models.User{Name: "bob", Email: "b@example.com", PasswordHash: "x"}
	require.NoError(t, svc.CreateUser(ctx, alice))
	require.NoError(t, svc.CreateUser(ctx, bob))

	names, err := svc.DisplayNames(ctx, []string{alice.ID, bob.ID, alice.ID, "ghost", ""})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{alice.ID: "alice", bob.ID: "bob"}, names)
}

func TestService_FindOrCreateRoom_IsIdempotent(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	first := &models.Room{RoomID: "dm:a:b", Kind: models.RoomKindPrivate, UserAID: "a", UserBID: "b"}
	require.NoError(t, svc.FindOrCreateRoom(ctx, first))
	second := &models.Room{RoomID: "dm:a:b", Kind: models.RoomKindPrivate, UserAID: "a", UserBID: "b"}
	require.NoError(t, svc.FindOrCreateRoom(ctx, second))

	var count int64
	svc.DB.Model(&models.Room{}).Count(&count)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())

	exists, err := svc.RoomExists(ctx, "dm:a:b")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.RoomExists(ctx, "dm:a:c")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestService_ListRoomsForUser(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.FindOrCreateRoom(ctx, &models.Room{RoomID: "dm:a:b", Kind: models.RoomKindPrivate, UserAID: "a", UserBID: "b"}))
	require.NoError(t, svc.FindOrCreateRoom(ctx, &models.Room{RoomID: "dm:b:c", Kind: models.RoomKindPrivate, UserAID: "b", UserBID: "c"}))

	rooms, err := svc.ListRoomsForUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "dm:a:b", rooms[0].RoomID)

	rooms, err = svc.ListRoomsForUser(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}

func TestService_PersistMessage_AssignsIDAndSenderRead(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	msg := &models.Message{RoomID: strPtr(models.GlobalRoomID), SenderID: "a", Text: "hello"}
	require.NoError(t, svc.PersistMessage(ctx, msg))

	assert.NotZero(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.Equal(t, []string{"a"}, msg.ReadBy())

	stored, err := svc.FindMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "hello", stored.Text)
	assert.Equal(t, []string{"a"}, stored.ReadBy())
}

func TestService_FindMessage_Missing(t *testing.T) {
	svc := setupTestService(t)

	msg, err := svc.FindMessage(context.Background(), 42)

	assert.NoError(t, err)
	assert.Nil(t, msg)
}

func TestService_AppendReaction_KeepsDuplicates(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	msg := &models.Message{RoomID: strPtr(models.GlobalRoomID), SenderID: "a", Text: "hi"}
	require.NoError(t, svc.PersistMessage(ctx, msg))

	_, err := svc.AppendReaction(ctx, msg.ID, "b", "👍")
	require.NoError(t, err)
	reactions, err := svc.AppendReaction(ctx, msg.ID, "b", "👍")
	require.NoError(t, err)

	require.Len(t, reactions, 2)
	assert.Equal(t, "👍", reactions[1].Emoji)
	assert.Equal(t, "b", reactions[1].UserID)
}

func TestService_MarkRead_IsIdempotent(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	msg := &models.Message{RoomID: strPtr("dm:a:b"), SenderID: "a", Text: "hi"}
	require.NoError(t, svc.PersistMessage(ctx, msg))

	_, err := svc.MarkRead(ctx, msg.ID, "b")
	require.NoError(t, err)
	readers, err := svc.MarkRead(ctx, msg.ID, "b")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, readers)
}

func TestService_ListHistory_OrderAndLimit(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, svc.PersistMessage(ctx, &models.Message{RoomID: strPtr("dm:a:b"), SenderID: "a", Text: text}))
	}
	require.NoError(t, svc.PersistMessage(ctx, &models.Message{RoomID: strPtr("dm:a:c"), SenderID: "a", Text: "elsewhere"}))

	all, err := svc.ListHistory(ctx, "dm:a:b", 10)
	require.NoError(t, err)
	texts := make([]string, 0, len(all))
	for _, m := range all {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"one", "two", "three"}, texts)

	latest, err := svc.ListHistory(ctx, "dm:a:b", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "two", latest[0].Text)
	assert.Equal(t, "three", latest[1].Text)
}

func TestService_ListHistory_GlobalIncludesLegacyMessages(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.PersistMessage(ctx, &models.Message{SenderID: "a", Text: "legacy"}))
	require.NoError(t, svc.PersistMessage(ctx, &models.Message{RoomID: strPtr(models.GlobalRoomID), SenderID: "b", Text: "new"}))
	require.NoError(t, svc.PersistMessage(ctx, &models.Message{RoomID: strPtr("dm:a:b"), SenderID: "a", Text: "private"}))

	history, err := svc.ListHistory(ctx, models.GlobalRoomID, 0)

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "legacy", history[0].Text)
	assert.Nil(t, history[0].RoomID)
	assert.Equal(t, "new", history[1].Text)
}

func TestService_PresenceMirrorWithoutRedis(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.ResetPresence(ctx))
	assert.NoError(t, svc.MarkOnline(ctx, "a"))
	assert.NoError(t, svc.MarkOffline(ctx, "a"))
	ids, err := svc.OnlineUserIDs(ctx)
	assert.NoError(t, err)
	assert.Empty(t, ids)
}
