package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/kendall-kelly/delivery-tracking-api/models"
	"gorm.io/gorm"
)

// ChatService stores the sender/agent conversation attached to a delivery
type ChatService struct {
	db *gorm.DB
}

// NewChatService creates a chat service
func NewChatService(db *gorm.DB) *ChatService {
	return &ChatService{db: db}
}

// PostMessage appends a message from senderID to the delivery's conversation
func (s *ChatService) PostMessage(ctx context.Context, deliveryID, senderID uint, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	message := models.Message{
		Content:    content,
		SenderID:   senderID,
		DeliveryID: deliveryID,
	}
	db := s.db.WithContext(ctx)
	if err := db.Create(&message).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	// Load the sender relationship to return complete data
	if err := db.Preload("Sender").First(&message, message.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load message details: %w", err)
	}
	return &message, nil
}

// ListMessages returns the conversation of a delivery in chronological order
func (s *ChatService) ListMessages(ctx context.Context, deliveryID uint) ([]models.Message, error) {
	messages := []models.Message{}
	if err := s.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Preload("Sender").
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}
