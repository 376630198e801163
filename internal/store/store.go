package store

import (
	"context"

	"gorm.io/gorm"

	"agency-portal-backend/internal/model"
)

// Store defines the interface for all database operations of the
// notification core: the push-subscription registry and the notification
// store with per-recipient read state.
type Store interface {
	// Subscription registry
	UpsertSubscription(ctx context.Context, ownerID, endpoint, p256dh, auth string) (*model.Subscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListActiveSubscriptions(ctx context.Context, ownerIDs []string) ([]model.Subscription, error)

	// Notification store
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	ListFor(ctx context.Context, recipientID string, filters ListFilters) ([]NotificationView, error)
	MarkRead(ctx context.Context, notificationID, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
	DeleteNotification(ctx context.Context, id string) error
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	Stats(ctx context.Context, recipientID string) (*Stats, error)

	// DB exposes the underlying handle for components that need raw access.
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB returns the underlying GORM handle.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}
