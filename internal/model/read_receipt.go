package model

import "time"

// ReadReceipt records that one recipient has read one notification.
// The composite primary key makes marking read an idempotent set-insert:
// a (notification, recipient) pair can hold at most one receipt.
type ReadReceipt struct {
	NotificationID string    `gorm:"primaryKey;size:36"`
	RecipientID    string    `gorm:"primaryKey;size:64;index"`
	ReadAt         time.Time `gorm:"not null"`
}
