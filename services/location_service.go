package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kendall-kelly/delivery-tracking-api/models"
	"gorm.io/gorm"
)

// LocationService records and reads the append-only agent position feed of a delivery
type LocationService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLocationService creates a location service
func NewLocationService(db *gorm.DB) *LocationService {
	return &LocationService{db: db, now: time.Now}
}

// ValidateCoordinates checks that a coordinate pair lies on the globe
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// RecordLocation appends a GPS sample stamped with the server time. Prior samples are never touched.
func (s *LocationService) RecordLocation(ctx context.Context, deliveryID, agentID uint, lat, lng float64) (*models.Location, error) {
	if err := ValidateCoordinates(lat, lng); err != nil {
		return nil, err
	}
	if err := s.ensureDelivery(ctx, deliveryID); err != nil {
		return nil, err
	}

	location := models.Location{
		Latitude:   lat,
		Longitude:  lng,
		AgentID:    agentID,
		DeliveryID: deliveryID,
		Timestamp:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&location).Error; err != nil {
		return nil, fmt.Errorf("failed to record location: %w", err)
	}
	return &location, nil
}

// LatestLocation returns the most recent sample for a delivery, or nil when none was recorded
func (s *LocationService) LatestLocation(ctx context.Context, deliveryID uint) (*models.Location, error) {
	if err := s.ensureDelivery(ctx, deliveryID); err != nil {
		return nil, err
	}

	var location models.Location
	err := s.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("timestamp DESC, id DESC").
		First(&location).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest location: %w", err)
	}
	return &location, nil
}

// History returns every sample for a delivery, newest first unless ascending is set
func (s *LocationService) History(ctx context.Context, deliveryID uint, ascending bool) ([]models.Location, error) {
	if err := s.ensureDelivery(ctx, deliveryID); err != nil {
		return nil, err
	}

	order := "timestamp DESC, id DESC"
	if ascending {
		order = "timestamp ASC, id ASC"
	}

	locations := []models.Location{}
	if err := s.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order(order).
		Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("failed to load location history: %w", err)
	}
	return locations, nil
}

func (s *LocationService) ensureDelivery(ctx context.Context, deliveryID uint) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Delivery{}).Where("id = ?", deliveryID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up delivery: %w", err)
	}
	if count == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}
