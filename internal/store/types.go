package store

import (
	"errors"
	"fmt"
	"time"

	"agency-portal-backend/internal/model"
)

// ErrNotFound is returned when a lookup targets a record that does not exist
// or is not addressable by the caller.
var ErrNotFound = errors.New("record not found")

// ValidationError reports a malformed input field. Handlers map it to a 4xx.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ListFilters narrows a notification listing for one recipient.
type ListFilters struct {
	Type           model.NotificationType
	UnreadOnly     bool
	IncludeExpired bool
}

// NotificationView is a notification joined with the recipient's read state.
type NotificationView struct {
	model.Notification
	IsRead bool       `json:"isRead"`
	ReadAt *time.Time `json:"readAt,omitempty"`
}

// CountByKey is one bucket of a grouped aggregate.
type CountByKey struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Stats aggregates a recipient's addressable, unexpired notifications.
type Stats struct {
	Total      int64        `json:"total"`
	Unread     int64        `json:"unread"`
	ByType     []CountByKey `json:"byType"`
	ByPriority []CountByKey `json:"byPriority"`
}
