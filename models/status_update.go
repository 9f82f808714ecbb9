package models

import (
	"time"

	"gorm.io/gorm"
)

// StatusUpdate is one immutable audit entry of a delivery's status history
type StatusUpdate struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Status     DeliveryStatus `gorm:"type:varchar(20);not null;check:chk_status_updates_status,status IN ('PENDING','ACCEPTED','IN_TRANSIT','DELIVERED','CANCELLED','RETURNED')" json:"status"`
	Timestamp  time.Time      `gorm:"not null;index" json:"timestamp"`
	Notes      *string        `gorm:"type:text" json:"notes"`
	DeliveryID uint           `gorm:"not null;index" json:"deliveryId"`
}

// TableName specifies the table name for the StatusUpdate model
func (StatusUpdate) TableName() string {
	return "status_updates"
}

// BeforeCreate stamps the entry with the creation time when none was given
func (s *StatusUpdate) BeforeCreate(tx *gorm.DB) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return nil
}
