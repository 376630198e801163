package model

import "time"

// Subscription holds the information for a browser push subscription.
// One row per device; the endpoint is the natural key, so re-subscribing
// from the same device replaces the row instead of duplicating it.
type Subscription struct {
	Endpoint  string    `gorm:"primaryKey" json:"endpoint"`
	OwnerID   string    `gorm:"index;size:64;not null" json:"ownerId"`
	P256DH    string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth      string    `gorm:"not null" json:"auth"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}
