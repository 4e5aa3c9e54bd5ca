package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserExists is returned when registering an email that is already taken.
var ErrUserExists = errors.New("user already exists")

// Storage is everything the HTTP layer, the router and the admin CLI need
// from the record store and the presence mirror.
type Storage interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)

	// Rooms and messages
	FindOrCreateRoom(ctx context.Context, room *models.Room) error
	RoomExists(ctx context.Context, roomID string) (bool, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error)
	PersistMessage(ctx context.Context, msg *models.Message) error
	FindMessage(ctx context.Context, id uint) (*models.Message, error)
	AppendReaction(ctx context.Context, messageID uint, userID, emoji string) ([]models.Reaction, error)
	MarkRead(ctx context.Context, messageID uint, userID string) ([]string, error)
	ListHistory(ctx context.Context, roomID string, limit int) ([]models.Message, error)

	// Presence mirror
	ResetPresence(ctx context.Context) error
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	OnlineUserIDs(ctx context.Context) ([]string, error)
}

// Service is the gorm + redis implementation of Storage.
// Redis is optional; without it the presence mirror methods are no-ops.
type Service struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Logger *zap.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		DB:     db,
		Redis:  rdb,
		Logger: logger,
	}
}

// AutoMigrate creates or updates every table the service uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Message{},
		&models.Reaction{},
		&models.MessageRead{},
	)
}

// CreateUser inserts a new user. A duplicate email gives ErrUserExists.
func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	existing, err := s.FindUserByEmail(ctx, user.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrUserExists
	}
	return s.DB.WithContext(ctx).Create(user).Error
}

// FindUserByEmail returns nil without an error when no user matches.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByID returns nil without an error when no user matches.
func (s *Service) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Order("name asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// DisplayNames maps user ids to names. Unknown ids are left out.
func (s *Service) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	ids := lo.Uniq(lo.Compact(userIDs))
	if len(ids) == 0 {
		return names, nil
	}
	var users []models.User
	if err := s.DB.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

// FindOrCreateRoom stores the room unless a room with the same id exists.
// On return room holds the stored row.
func (s *Service) FindOrCreateRoom(ctx context.Context, room *models.Room) error {
	return s.DB.WithContext(ctx).
		Where(models.Room{RoomID: room.RoomID}).
		Attrs(*room).
		FirstOrCreate(room).Error
}

func (s *Service) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Room{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListRoomsForUser returns the private rooms the user takes part in, newest first.
func (s *Service) ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	var rooms []models.Room
	err := s.DB.WithContext(ctx).
		Where("kind = ?", models.RoomKindPrivate).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("created_at desc").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// PersistMessage stores msg and records the sender as its first reader.
// The store assigns msg.ID and msg.CreatedAt.
func (s *Service) PersistMessage(ctx context.Context, msg *models.Message) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return err
		}
		read := models.MessageRead{MessageID: msg.ID, UserID: msg.SenderID}
		if err := tx.Create(&read).Error; err != nil {
			return err
		}
		msg.Reads = []models.MessageRead{read}
		msg.Reactions = []models.Reaction{}
		return nil
	})
	if err != nil {
		s.Logger.Error("failed to persist message",
			zap.String("room_id", msg.RoomKey()),
			zap.String("sender_id", msg.SenderID),
			zap.Error(err))
		return err
	}
	return nil
}

// FindMessage returns the message with its reactions and reads,
// or nil without an error when it does not exist.
func (s *Service) FindMessage(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	err := s.withRelations(s.DB.WithContext(ctx)).First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// AppendReaction adds one reaction and returns the full list in insertion order.
func (s *Service) AppendReaction(ctx context.Context, messageID uint, userID, emoji string) ([]models.Reaction, error) {
	db := s.DB.WithContext(ctx)
	reaction := models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	if err := db.Create(&reaction).Error; err != nil {
		return nil, fmt.Errorf("append reaction to message %d: %w", messageID, err)
	}
	var reactions []models.Reaction
	if err := db.Where("message_id = ?", messageID).Order("id asc").Find(&reactions).Error; err != nil {
		return nil, err
	}
	return reactions, nil
}

// MarkRead records a read receipt. Marking the same message twice is a no-op.
// It returns every reader in receipt order.
func (s *Service) MarkRead(ctx context.Context, messageID uint, userID string) ([]string, error) {
	db := s.DB.WithContext(ctx)
	read := models.MessageRead{MessageID: messageID, UserID: userID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&read).Error; err != nil {
		return nil, fmt.Errorf("mark message %d read: %w", messageID, err)
	}
	var readers []string
	err := db.Model(&models.MessageRead{}).
		Where("message_id = ?", messageID).
		Order("id asc").
		Pluck("user_id", &readers).Error
	if err != nil {
		return nil, err
	}
	return readers, nil
}

// ListHistory returns the newest limit messages of a room in persisted order
// (created_at, then id). Messages without a room belong to the global room.
func (s *Service) ListHistory(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = config.DefaultHistoryLimit
	}
	query := s.withRelations(s.DB.WithContext(ctx))
	if roomID == models.GlobalRoomID {
		query = query.Where("room_id = ? OR room_id IS NULL", roomID)
	} else {
		query = query.Where("room_id = ?", roomID)
	}

	var messages []models.Message
	err := query.Order("created_at desc").Order("id desc").Limit(limit).Find(&messages).Error
	if err != nil {
		s.Logger.Error("failed to load history", zap.String("room_id", roomID), zap.Error(err))
		return nil, err
	}
	return lo.Reverse(messages), nil
}

func (s *Service) withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Reactions", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		Preload("Reads", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") })
}

// ResetPresence drops the mirrored online set. The server calls it on start,
// since no user is connected to a fresh router.
func (s *Service) ResetPresence(ctx context.Context) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Del(ctx, config.PresenceOnlineKey).Err()
}

// MarkOnline adds the user to the mirrored online set in Redis.
func (s *Service) MarkOnline(ctx context.Context, userID string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.SAdd(ctx, config.PresenceOnlineKey, userID).Err()
}

// MarkOffline removes the user from the online set and stamps the last-seen time.
func (s *Service) MarkOffline(ctx context.Context, userID string) error {
	if s.Redis == nil {
		return nil
	}
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, config.PresenceOnlineKey, userID)
		pipe.Set(ctx, config.PresenceLastSeenKey+userID, time.Now().UTC().Format(time.RFC3339), 0)
		return nil
	})
	return err
}

// OnlineUserIDs reads the mirrored online set. It returns nil when Redis is not configured.
func (s *Service) OnlineUserIDs(ctx context.Context) ([]string, error) {
	if s.Redis == nil {
		return nil, nil
	}
	return s.Redis.SMembers(ctx, config.PresenceOnlineKey).Result()
}
