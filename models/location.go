package models

import (
	"time"

	"gorm.io/gorm"
)

// Location is one GPS sample reported by an agent for a delivery
type Location struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Latitude   float64   `gorm:"not null" json:"latitude"`
	Longitude  float64   `gorm:"not null" json:"longitude"`
	AgentID    uint      `gorm:"not null;index" json:"agentId"`
	Agent      *User     `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
	DeliveryID uint      `gorm:"not null;index:idx_locations_delivery_timestamp,priority:1" json:"deliveryId"`
	Timestamp  time.Time `gorm:"not null;index:idx_locations_delivery_timestamp,priority:2" json:"timestamp"`
}

// TableName specifies the table name for the Location model
func (Location) TableName() string {
	return "locations"
}

// BeforeCreate stamps the sample with the creation time when none was given
func (l *Location) BeforeCreate(tx *gorm.DB) error {
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	return nil
}
