package model

import "time"

// NotificationType classifies a notification for filtering and display.
type NotificationType string

const (
	TypeInfo          NotificationType = "info"
	TypeSuccess       NotificationType = "success"
	TypeWarning       NotificationType = "warning"
	TypeError         NotificationType = "error"
	TypeProjectUpdate NotificationType = "project_update"
	TypePayment       NotificationType = "payment"
	TypeMessage       NotificationType = "message"
	TypeSystem        NotificationType = "system"
)

// ValidType reports whether t is one of the recognized notification types.
func ValidType(t NotificationType) bool {
	switch t {
	case TypeInfo, TypeSuccess, TypeWarning, TypeError,
		TypeProjectUpdate, TypePayment, TypeMessage, TypeSystem:
		return true
	}
	return false
}

// NotificationPriority ranks a notification's urgency.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// ValidPriority reports whether p is one of the recognized priorities.
func ValidPriority(p NotificationPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is an immutable notification record. Broadcast rows have no
// recipient rows; their addressee set is resolved dynamically at query time.
type Notification struct {
	ID               string               `gorm:"primaryKey;size:36" json:"id"`
	Title            string               `gorm:"size:256;not null" json:"title"`
	Message          string               `gorm:"not null" json:"message"`
	Type             NotificationType     `gorm:"size:32;not null;index" json:"type"`
	Priority         NotificationPriority `gorm:"size:16;not null" json:"priority"`
	SenderID         string               `gorm:"size:64" json:"senderId"`
	Broadcast        bool                 `gorm:"not null" json:"broadcast"`
	RelatedProjectID string               `gorm:"size:64" json:"relatedProjectId,omitempty"`
	ActionURL        string               `gorm:"size:512" json:"actionUrl,omitempty"`
	ActionText       string               `gorm:"size:64" json:"actionText,omitempty"`
	ExpiresAt        *time.Time           `gorm:"index" json:"expiresAt,omitempty"`
	CreatedAt        time.Time            `gorm:"not null;index" json:"createdAt"`

	// Associations
	Recipients []NotificationRecipient `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"-"`
}

// NotificationRecipient pins one explicit addressee of a targeted notification.
type NotificationRecipient struct {
	NotificationID string `gorm:"primaryKey;size:36"`
	RecipientID    string `gorm:"primaryKey;size:64;index"`
}

// Expired reports whether the notification's expiry has passed at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}
