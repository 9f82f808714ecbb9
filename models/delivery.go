package models

import (
	"time"
)

// Delivery represents a shipment tracked from pickup to drop-off
type Delivery struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	TrackingID         *string        `gorm:"uniqueIndex;size:32" json:"trackingId"`
	SenderID           uint           `gorm:"not null;index" json:"senderId"`
	Sender             *User          `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	AgentID            *uint          `gorm:"index" json:"agentId"` // nil until the delivery is accepted
	Agent              *User          `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
	Status             DeliveryStatus `gorm:"type:varchar(20);not null;default:'PENDING';index;check:chk_deliveries_status,status IN ('PENDING','ACCEPTED','IN_TRANSIT','DELIVERED','CANCELLED','RETURNED')" json:"status"`
	Origin             string         `gorm:"not null" json:"origin"`
	Destination        string         `gorm:"not null" json:"destination"`
	PickupAddress      *string        `json:"pickupAddress"`
	DeliveryAddress    *string        `json:"deliveryAddress"`
	PickupLat          *float64       `json:"pickupLat"`
	PickupLng          *float64       `json:"pickupLng"`
	DeliveryLat        *float64       `json:"deliveryLat"`
	DeliveryLng        *float64       `json:"deliveryLng"`
	PackageDescription *string        `json:"packageDescription"`
	Weight             *float64       `json:"weight"`
	Dimensions         *string        `json:"dimensions"`
	Notes              *string        `gorm:"type:text" json:"notes"`
	EstimatedDelivery  *time.Time     `json:"estimatedDelivery"`
	ImageS3Key         *string        `json:"imageKey,omitempty"`
	ImageURL           *string        `gorm:"-" json:"imageUrl,omitempty"` // computed, presigned URL for the package photo
	QRCode             *string        `json:"qrCode"`
	Description        *string        `gorm:"type:text" json:"description"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`

	Messages      []Message      `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	Locations     []Location     `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE" json:"locations,omitempty"`
	StatusUpdates []StatusUpdate `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE" json:"statusUpdates,omitempty"`
}

// TableName specifies the table name for the Delivery model
func (Delivery) TableName() string {
	return "deliveries"
}

// IsAssignedTo reports whether userID is the delivery's current agent
func (d *Delivery) IsAssignedTo(userID uint) bool {
	return d.AgentID != nil && *d.AgentID == userID
}

// IsParticipant reports whether userID is the sender or the assigned agent
func (d *Delivery) IsParticipant(userID uint) bool {
	return d.SenderID == userID || d.IsAssignedTo(userID)
}
