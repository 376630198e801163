package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"gorm.io/gorm/clause"

	"agency-portal-backend/internal/model"
)

// UpsertSubscription validates and registers a push subscription keyed by
// endpoint. Registering the same endpoint twice updates the owner and keys
// in place instead of creating a second row.
func (s *gormStore) UpsertSubscription(ctx context.Context, ownerID, endpoint, p256dh, auth string) (*model.Subscription, error) {
	if ownerID == "" {
		return nil, &ValidationError{Field: "ownerId", Reason: "must not be empty"}
	}
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if err := validateKey("p256dh", p256dh); err != nil {
		return nil, err
	}
	if err := validateKey("auth", auth); err != nil {
		return nil, err
	}

	sub := model.Subscription{
		Endpoint: endpoint,
		OwnerID:  ownerID,
		P256DH:   p256dh,
		Auth:     auth,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "p256dh", "auth"}),
	}).Create(&sub).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return &sub, nil
}

// DeleteSubscription removes the subscription for an endpoint. Deleting an
// unknown endpoint is a no-op, not an error.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return &ValidationError{Field: "endpoint", Reason: "must not be empty"}
	}
	return s.db.WithContext(ctx).
		Delete(&model.Subscription{}, "endpoint = ?", endpoint).Error
}

// ListActiveSubscriptions returns the subscriptions owned by the given
// owners, or all subscriptions when ownerIDs is empty.
func (s *gormStore) ListActiveSubscriptions(ctx context.Context, ownerIDs []string) ([]model.Subscription, error) {
	var subs []model.Subscription
	q := s.db.WithContext(ctx)
	if len(ownerIDs) > 0 {
		q = q.Where("owner_id IN ?", ownerIDs)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ValidationError{Field: "endpoint", Reason: "must be an absolute URL"}
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return &ValidationError{Field: "endpoint", Reason: "must use http or https"}
	}
	return nil
}

// validateKey checks that a subscription key is non-empty base64url, with
// or without padding. Push services differ on the padding detail.
func validateKey(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	trimmed := strings.TrimRight(value, "=")
	if _, err := base64.RawURLEncoding.DecodeString(trimmed); err != nil {
		return &ValidationError{Field: field, Reason: "must be base64url encoded"}
	}
	return nil
}
