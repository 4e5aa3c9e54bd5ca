package chathub

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatrelay/backend/internal/config"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// PresenceStore is where presence is mirrored for readers outside the
// router process, such as the admin CLI.
type PresenceStore interface {
	ResetPresence(ctx context.Context) error
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
}

// PresenceMirror copies presence changes into a PresenceStore in the
// background. Notify never blocks the router. Changes are coalesced per
// user, so only the latest state of each user is written and none is lost.
type PresenceMirror struct {
	store   PresenceStore
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]bool
	wake    chan struct{}
}

func NewPresenceMirror(store PresenceStore, logger *zap.Logger) *PresenceMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceMirror{
		store:   store,
		logger:  logger,
		timeout: config.PresenceWriteTimeout,
		pending: make(map[string]bool),
		wake:    make(chan struct{}, 1),
	}
}

func (m *PresenceMirror) Notify(userID string, online bool) {
	m.mu.Lock()
	m.pending[userID] = online
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run clears the mirrored state left by a previous process, then applies
// changes until ctx is cancelled. Changes still queued at cancellation are
// flushed before Run returns.
func (m *PresenceMirror) Run(ctx context.Context) {
	m.reset(ctx)
	m.logger.Info("presence mirror started")
	for {
		select {
		case <-ctx.Done():
			m.flush(context.WithoutCancel(ctx))
			m.logger.Info("presence mirror stopped")
			return
		case <-m.wake:
			m.flush(ctx)
		}
	}
}

func (m *PresenceMirror) reset(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	if err := m.store.ResetPresence(ctx); err != nil {
		m.logger.Warn("presence mirror reset failed", zap.Error(err))
	}
}

func (m *PresenceMirror) flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.pending
	m.pending = make(map[string]bool)
	m.mu.Unlock()

	userIDs := lo.Keys(batch)
	sort.Strings(userIDs)
	for _, userID := range userIDs {
		m.apply(ctx, userID, batch[userID])
	}
}

func (m *PresenceMirror) apply(ctx context.Context, userID string, online bool) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var err error
	if online {
		err = m.store.MarkOnline(ctx, userID)
	} else {
		err = m.store.MarkOffline(ctx, userID)
	}
	if err != nil {
		m.logger.Warn("presence mirror write failed",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err))
	}
}
