package models

import (
	"time"
)

// Message represents a chat entry between sender and agent on a delivery
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	SenderID   uint      `gorm:"not null;index" json:"senderId"`
	Sender     *User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	DeliveryID uint      `gorm:"not null;index" json:"deliveryId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName specifies the table name for the Message model
func (Message) TableName() string {
	return "messages"
}
