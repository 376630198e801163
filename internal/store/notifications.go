package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agency-portal-backend/internal/model"
)

// addressableScope narrows a notification query to the rows recipientID may
// see: broadcasts plus targeted notifications naming them explicitly.
func addressableScope(recipientID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		sub := db.Session(&gorm.Session{NewDB: true}).
			Model(&model.NotificationRecipient{}).
			Select("notification_id").
			Where("recipient_id = ?", recipientID)
		return db.Where("notifications.broadcast = ? OR notifications.id IN (?)", true, sub)
	}
}

// unexpiredScope excludes notifications whose expiry has passed.
func unexpiredScope(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("notifications.expires_at IS NULL OR notifications.expires_at > ?", now)
	}
}

// unreadScope excludes notifications recipientID already holds a receipt for.
func unreadScope(recipientID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		sub := db.Session(&gorm.Session{NewDB: true}).
			Model(&model.ReadReceipt{}).
			Select("notification_id").
			Where("recipient_id = ?", recipientID)
		return db.Where("notifications.id NOT IN (?)", sub)
	}
}

// CreateNotification validates and persists a notification together with its
// explicit recipient rows. The content is immutable after this point.
func (s *gormStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.Title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if n.Message == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if n.Type == "" {
		n.Type = model.TypeInfo
	}
	if !model.ValidType(n.Type) {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", n.Type)}
	}
	if n.Priority == "" {
		n.Priority = model.PriorityMedium
	}
	if !model.ValidPriority(n.Priority) {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", n.Priority)}
	}
	if !n.Broadcast && len(n.Recipients) == 0 {
		return &ValidationError{Field: "recipients", Reason: "targeted notification needs at least one recipient"}
	}
	if n.Broadcast && len(n.Recipients) > 0 {
		return &ValidationError{Field: "recipients", Reason: "broadcast notification must not name recipients"}
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	// Dedupe recipient rows so the composite key cannot conflict.
	seen := make(map[string]struct{}, len(n.Recipients))
	deduped := n.Recipients[:0]
	for _, r := range n.Recipients {
		if r.RecipientID == "" {
			return &ValidationError{Field: "recipients", Reason: "recipient id must not be empty"}
		}
		if _, dup := seen[r.RecipientID]; dup {
			continue
		}
		seen[r.RecipientID] = struct{}{}
		r.NotificationID = n.ID
		deduped = append(deduped, r)
	}
	n.Recipients = deduped

	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// GetNotification fetches one notification with its recipient rows.
func (s *gormStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := s.db.WithContext(ctx).Preload("Recipients").First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notification %s: %w", id, err)
	}
	return &n, nil
}

// ListFor returns the notifications addressable to recipientID, newest
// first, each joined with the recipient's read state.
func (s *gormStore) ListFor(ctx context.Context, recipientID string, filters ListFilters) ([]NotificationView, error) {
	q := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Scopes(addressableScope(recipientID)).
		Order("notifications.created_at DESC")

	if filters.Type != "" {
		q = q.Where("notifications.type = ?", filters.Type)
	}
	if !filters.IncludeExpired {
		q = q.Scopes(unexpiredScope(time.Now().UTC()))
	}
	if filters.UnreadOnly {
		q = q.Scopes(unreadScope(recipientID))
	}

	var notifs []model.Notification
	if err := q.Find(&notifs).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications for %s: %w", recipientID, err)
	}
	if len(notifs) == 0 {
		return []NotificationView{}, nil
	}

	ids := make([]string, len(notifs))
	for i, n := range notifs {
		ids[i] = n.ID
	}
	var receipts []model.ReadReceipt
	err := s.db.WithContext(ctx).
		Where("recipient_id = ? AND notification_id IN ?", recipientID, ids).
		Find(&receipts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch read receipts for %s: %w", recipientID, err)
	}
	readAt := make(map[string]time.Time, len(receipts))
	for _, r := range receipts {
		readAt[r.NotificationID] = r.ReadAt
	}

	views := make([]NotificationView, len(notifs))
	for i, n := range notifs {
		views[i] = NotificationView{Notification: n}
		if at, ok := readAt[n.ID]; ok {
			at := at
			views[i].IsRead = true
			views[i].ReadAt = &at
		}
	}
	return views, nil
}

// MarkRead records a read receipt for (notificationID, recipientID). The
// insert is an idempotent set-insert: marking twice leaves one row.
func (s *gormStore) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	n, err := s.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if !n.Broadcast {
		addressable := false
		for _, r := range n.Recipients {
			if r.RecipientID == recipientID {
				addressable = true
				break
			}
		}
		if !addressable {
			return ErrNotFound
		}
	}

	receipt := model.ReadReceipt{
		NotificationID: notificationID,
		RecipientID:    recipientID,
		ReadAt:         time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipt).Error
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", notificationID, err)
	}
	return nil
}

// MarkAllRead inserts receipts for every addressable unread notification of
// recipientID. Partial completion followed by a retry is safe: the inserts
// conflict harmlessly with rows an earlier attempt already wrote.
func (s *gormStore) MarkAllRead(ctx context.Context, recipientID string) error {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Scopes(addressableScope(recipientID), unexpiredScope(time.Now().UTC()), unreadScope(recipientID)).
		Pluck("notifications.id", &ids).Error
	if err != nil {
		return fmt.Errorf("failed to find unread notifications for %s: %w", recipientID, err)
	}
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	receipts := make([]model.ReadReceipt, len(ids))
	for i, id := range ids {
		receipts[i] = model.ReadReceipt{NotificationID: id, RecipientID: recipientID, ReadAt: now}
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(receipts, 200).Error
	if err != nil {
		return fmt.Errorf("failed to mark all read for %s: %w", recipientID, err)
	}
	return nil
}

// DeleteNotification hard-deletes a notification with its recipient rows
// and read receipts.
func (s *gormStore) DeleteNotification(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.ReadReceipt{}, "notification_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete read receipts for %s: %w", id, err)
		}
		if err := tx.Delete(&model.NotificationRecipient{}, "notification_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete recipient rows for %s: %w", id, err)
		}
		res := tx.Delete(&model.Notification{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete notification %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UnreadCount counts recipientID's addressable notifications that carry no
// read receipt and have not expired.
func (s *gormStore) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Scopes(addressableScope(recipientID), unexpiredScope(time.Now().UTC()), unreadScope(recipientID)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread for %s: %w", recipientID, err)
	}
	return count, nil
}

// Stats aggregates recipientID's addressable, unexpired notifications by
// type and priority.
func (s *gormStore) Stats(ctx context.Context, recipientID string) (*Stats, error) {
	now := time.Now().UTC()
	stats := &Stats{ByType: []CountByKey{}, ByPriority: []CountByKey{}}

	base := func() *gorm.DB {
		return s.db.WithContext(ctx).
			Model(&model.Notification{}).
			Scopes(addressableScope(recipientID), unexpiredScope(now))
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count notifications for %s: %w", recipientID, err)
	}
	if err := base().Scopes(unreadScope(recipientID)).Count(&stats.Unread).Error; err != nil {
		return nil, fmt.Errorf("failed to count unread for %s: %w", recipientID, err)
	}
	err := base().
		Select("notifications.type AS key, COUNT(*) AS count").
		Group("notifications.type").
		Scan(&stats.ByType).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by type for %s: %w", recipientID, err)
	}
	err = base().
		Select("notifications.priority AS key, COUNT(*) AS count").
		Group("notifications.priority").
		Scan(&stats.ByPriority).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by priority for %s: %w", recipientID, err)
	}
	return stats, nil
}
