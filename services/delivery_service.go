package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/now"
	"github.com/kendall-kelly/delivery-tracking-api/models"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 20
	// MaxPageLimit caps the page size
	MaxPageLimit = 100
	// MaxPage bounds the page number so the row offset cannot overflow
	MaxPage = 100000
)

// DeliveryService owns the delivery lifecycle, agent assignment and dashboard queries
type DeliveryService struct {
	db     *gorm.DB
	cache  DeliveryCache
	strict bool
	now    func() time.Time
}

// NewDeliveryService creates a delivery service. When strict is false any status may
// follow any other; otherwise the lifecycle state machine is enforced.
func NewDeliveryService(db *gorm.DB, cache DeliveryCache, strict bool) *DeliveryService {
	if cache == nil {
		cache = NoopDeliveryCache{}
	}
	return &DeliveryService{
		db:     db,
		cache:  cache,
		strict: strict,
		now:    time.Now,
	}
}

// CreateDeliveryInput holds the fields a sender supplies for a new delivery
type CreateDeliveryInput struct {
	SenderID           uint
	Origin             string
	Destination        string
	PickupAddress      *string
	DeliveryAddress    *string
	PickupLat          *float64
	PickupLng          *float64
	DeliveryLat        *float64
	DeliveryLng        *float64
	PackageDescription *string
	Weight             *float64
	Dimensions         *string
	Notes              *string
	EstimatedDelivery  *time.Time
	Description        *string
}

// UpdateDeliveryInput holds descriptive fields to overwrite; nil fields are left unchanged
type UpdateDeliveryInput struct {
	Origin             *string
	Destination        *string
	PickupAddress      *string
	DeliveryAddress    *string
	PickupLat          *float64
	PickupLng          *float64
	DeliveryLat        *float64
	DeliveryLng        *float64
	PackageDescription *string
	Weight             *float64
	Dimensions         *string
	Notes              *string
	EstimatedDelivery  *time.Time
	Description        *string
}

// DeliveryFilter narrows list and stats queries
type DeliveryFilter struct {
	Statuses   []models.DeliveryStatus
	SenderID   *uint
	AgentID    *uint
	Unassigned bool // only PENDING deliveries without an agent
	Search     string
	Page       int
	Limit      int
	Sort       string // field name, "-" prefix for descending
}

// DeliveryStats is the dashboard projection of a set of deliveries
type DeliveryStats struct {
	Total          int64                           `json:"total"`
	ByStatus       map[models.DeliveryStatus]int64 `json:"byStatus"`
	Unassigned     int64                           `json:"unassigned"`
	CreatedToday   int64                           `json:"createdToday"`
	CompletionRate float64                         `json:"completionRate"` // percent of deliveries DELIVERED
}

var sortColumns = map[string]string{
	"createdAt":         "created_at",
	"updatedAt":         "updated_at",
	"status":            "status",
	"estimatedDelivery": "estimated_delivery",
	"trackingId":        "tracking_id",
}

// Create stores a new PENDING delivery with a generated tracking id and its first audit entry
func (s *DeliveryService) Create(ctx context.Context, input CreateDeliveryInput) (*models.Delivery, error) {
	origin := strings.TrimSpace(input.Origin)
	destination := strings.TrimSpace(input.Destination)
	if origin == "" || destination == "" {
		return nil, newServiceError("VALIDATION_ERROR", "Origin and destination are required")
	}
	if err := validateOptionalCoordinates(input.PickupLat, input.PickupLng); err != nil {
		return nil, err
	}
	if err := validateOptionalCoordinates(input.DeliveryLat, input.DeliveryLng); err != nil {
		return nil, err
	}

	trackingID := NewTrackingID()
	qrPayload := "delivery:" + trackingID
	delivery := models.Delivery{
		TrackingID:         &trackingID,
		SenderID:           input.SenderID,
		Status:             models.StatusPending,
		Origin:             origin,
		Destination:        destination,
		PickupAddress:      input.PickupAddress,
		DeliveryAddress:    input.DeliveryAddress,
		PickupLat:          input.PickupLat,
		PickupLng:          input.PickupLng,
		DeliveryLat:        input.DeliveryLat,
		DeliveryLng:        input.DeliveryLng,
		PackageDescription: input.PackageDescription,
		Weight:             input.Weight,
		Dimensions:         input.Dimensions,
		Notes:              input.Notes,
		EstimatedDelivery:  input.EstimatedDelivery,
		QRCode:             &qrPayload,
		Description:        input.Description,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&delivery).Error; err != nil {
			return fmt.Errorf("failed to create delivery: %w", err)
		}
		notes := "Delivery created"
		return s.appendStatusUpdate(tx, delivery.ID, models.StatusPending, &notes)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, delivery.ID)
}

// Get returns a delivery with its sender, agent and status history, served from cache when possible
func (s *DeliveryService) Get(ctx context.Context, id uint) (*models.Delivery, error) {
	if cached, err := s.cache.GetDelivery(ctx, id); err != nil {
		log.Printf("warning: delivery cache read failed for %d: %v", id, err)
	} else if cached != nil {
		return cached, nil
	}

	var delivery models.Delivery
	err := s.summaryQuery(ctx).First(&delivery, id).Error
	if err != nil {
		return nil, notFoundOr(err, ErrDeliveryNotFound)
	}

	s.storeInCache(ctx, &delivery)
	return &delivery, nil
}

// GetByTrackingID looks a delivery up by its public tracking id
func (s *DeliveryService) GetByTrackingID(ctx context.Context, trackingID string) (*models.Delivery, error) {
	trackingID = strings.ToUpper(strings.TrimSpace(trackingID))
	if cached, err := s.cache.GetDeliveryByTracking(ctx, trackingID); err != nil {
		log.Printf("warning: delivery cache read failed for %s: %v", trackingID, err)
	} else if cached != nil {
		return cached, nil
	}

	var delivery models.Delivery
	err := s.summaryQuery(ctx).Where("tracking_id = ?", trackingID).First(&delivery).Error
	if err != nil {
		return nil, notFoundOr(err, ErrDeliveryNotFound)
	}

	s.storeInCache(ctx, &delivery)
	return &delivery, nil
}

// GetWithRelations returns a delivery together with its messages and location history
func (s *DeliveryService) GetWithRelations(ctx context.Context, id uint) (*models.Delivery, error) {
	delivery, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if err := db.Where("delivery_id = ?", id).Preload("Sender").Order("created_at ASC, id ASC").Find(&delivery.Messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	if err := db.Where("delivery_id = ?", id).Order("timestamp DESC, id DESC").Find(&delivery.Locations).Error; err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	return delivery, nil
}

// List returns one page of deliveries matching the filter and the total match count
func (s *DeliveryService) List(ctx context.Context, filter DeliveryFilter) ([]models.Delivery, int64, error) {
	order, err := sortClause(filter.Sort)
	if err != nil {
		return nil, 0, err
	}
	page, limit := NormalizePage(filter.Page, filter.Limit)

	var total int64
	if err := s.filtered(ctx, filter).Model(&models.Delivery{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count deliveries: %w", err)
	}

	deliveries := []models.Delivery{}
	err = s.filtered(ctx, filter).
		Preload("Sender").
		Preload("Agent").
		Order(order).
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveries, total, nil
}

// Stats computes status counts for the deliveries matching the filter (pagination ignored)
func (s *DeliveryService) Stats(ctx context.Context, filter DeliveryFilter) (*DeliveryStats, error) {
	var rows []struct {
		Status models.DeliveryStatus
		Count  int64
	}
	if err := s.filtered(ctx, filter).Model(&models.Delivery{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count deliveries by status: %w", err)
	}

	stats := &DeliveryStats{ByStatus: make(map[models.DeliveryStatus]int64, len(models.DeliveryStatuses))}
	for _, status := range models.DeliveryStatuses {
		stats.ByStatus[status] = 0
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
		stats.Total += row.Count
	}

	if err := s.filtered(ctx, filter).Model(&models.Delivery{}).
		Where("agent_id IS NULL AND status = ?", models.StatusPending).
		Count(&stats.Unassigned).Error; err != nil {
		return nil, fmt.Errorf("failed to count unassigned deliveries: %w", err)
	}

	startOfDay := now.With(s.now()).BeginningOfDay()
	if err := s.filtered(ctx, filter).Model(&models.Delivery{}).
		Where("created_at >= ?", startOfDay).
		Count(&stats.CreatedToday).Error; err != nil {
		return nil, fmt.Errorf("failed to count deliveries created today: %w", err)
	}

	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.ByStatus[models.StatusDelivered]) * 100 / float64(stats.Total)
	}
	return stats, nil
}

// UpdateDetails overwrites descriptive fields; status and agent are changed only through Transition and Assign
func (s *DeliveryService) UpdateDetails(ctx context.Context, id uint, input UpdateDeliveryInput) (*models.Delivery, error) {
	updates := make(map[string]interface{})
	if input.Origin != nil {
		if strings.TrimSpace(*input.Origin) == "" {
			return nil, newServiceError("VALIDATION_ERROR", "Origin cannot be empty")
		}
		updates["origin"] = strings.TrimSpace(*input.Origin)
	}
	if input.Destination != nil {
		if strings.TrimSpace(*input.Destination) == "" {
			return nil, newServiceError("VALIDATION_ERROR", "Destination cannot be empty")
		}
		updates["destination"] = strings.TrimSpace(*input.Destination)
	}
	if err := validateOptionalCoordinates(input.PickupLat, input.PickupLng); err != nil {
		return nil, err
	}
	if err := validateOptionalCoordinates(input.DeliveryLat, input.DeliveryLng); err != nil {
		return nil, err
	}
	setIfPresent(updates, "pickup_address", input.PickupAddress)
	setIfPresent(updates, "delivery_address", input.DeliveryAddress)
	setIfPresent(updates, "pickup_lat", input.PickupLat)
	setIfPresent(updates, "pickup_lng", input.PickupLng)
	setIfPresent(updates, "delivery_lat", input.DeliveryLat)
	setIfPresent(updates, "delivery_lng", input.DeliveryLng)
	setIfPresent(updates, "package_description", input.PackageDescription)
	setIfPresent(updates, "weight", input.Weight)
	setIfPresent(updates, "dimensions", input.Dimensions)
	setIfPresent(updates, "notes", input.Notes)
	setIfPresent(updates, "estimated_delivery", input.EstimatedDelivery)
	setIfPresent(updates, "description", input.Description)

	var delivery models.Delivery
	if err := s.db.WithContext(ctx).First(&delivery, id).Error; err != nil {
		return nil, notFoundOr(err, ErrDeliveryNotFound)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&delivery).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update delivery: %w", err)
		}
	}

	s.invalidate(ctx, &delivery)
	return s.Get(ctx, id)
}

// Transition sets the delivery status and appends a StatusUpdate in one transaction
func (s *DeliveryService) Transition(ctx context.Context, id uint, status models.DeliveryStatus, notes *string) (*models.Delivery, error) {
	return s.Apply(ctx, id, DeliveryChange{Status: &status, Notes: notes})
}

// Assign binds the delivery to an agent and accepts it in a single row write.
// Assigning the same agent to an already accepted delivery changes nothing.
// The caller is responsible for checking that the user has the AGENT role.
func (s *DeliveryService) Assign(ctx context.Context, id, agentID uint, notes *string) (*models.Delivery, error) {
	return s.Apply(ctx, id, DeliveryChange{AgentID: &agentID, Notes: notes})
}

// Unassign clears the agent and returns the delivery to PENDING
func (s *DeliveryService) Unassign(ctx context.Context, id uint, notes *string) (*models.Delivery, error) {
	return s.Apply(ctx, id, DeliveryChange{Unassign: true, Notes: notes})
}

// DeliveryChange is an assignment and/or status change applied as one unit
type DeliveryChange struct {
	AgentID  *uint
	Unassign bool
	Status   *models.DeliveryStatus
	Notes    *string
}

// Apply performs the assignment step and then the status step of a change inside a
// single transaction, so a rejected status leaves the assignment untouched too.
// A status of ACCEPTED alongside an agent is satisfied by the assignment itself.
func (s *DeliveryService) Apply(ctx context.Context, id uint, change DeliveryChange) (*models.Delivery, error) {
	if change.Status != nil && !change.Status.IsValid() {
		return nil, newServiceError(CodeInvalidStatus, "Unknown delivery status %q", *change.Status)
	}
	if change.AgentID != nil && change.Unassign {
		return nil, newServiceError("VALIDATION_ERROR", "agentId and unassign cannot be combined")
	}

	var delivery models.Delivery
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&delivery, id).Error; err != nil {
			return notFoundOr(err, ErrDeliveryNotFound)
		}

		var err error
		switch {
		case change.AgentID != nil:
			changed, err = s.assignTx(tx, &delivery, *change.AgentID, change.Notes)
		case change.Unassign:
			changed, err = s.unassignTx(tx, &delivery, change.Notes)
		}
		if err != nil {
			return err
		}

		if change.Status == nil || (change.AgentID != nil && *change.Status == models.StatusAccepted) {
			return nil
		}
		if err := s.transitionTx(tx, &delivery, *change.Status, change.Notes); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.invalidate(ctx, &delivery)
	}
	return s.Get(ctx, id)
}

func (s *DeliveryService) transitionTx(tx *gorm.DB, delivery *models.Delivery, status models.DeliveryStatus, notes *string) error {
	if err := s.checkTransition(delivery, status); err != nil {
		return err
	}
	if err := tx.Model(delivery).Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	delivery.Status = status
	return s.appendStatusUpdate(tx, delivery.ID, status, notes)
}

func (s *DeliveryService) assignTx(tx *gorm.DB, delivery *models.Delivery, agentID uint, notes *string) (bool, error) {
	var agent models.User
	if err := tx.First(&agent, agentID).Error; err != nil {
		return false, notFoundOr(err, ErrAgentNotFound)
	}

	if delivery.IsAssignedTo(agentID) && delivery.Status == models.StatusAccepted {
		return false, nil
	}
	if s.strict && !delivery.Status.CanTransitionTo(models.StatusAccepted) {
		return false, newServiceError(CodeInvalidTransition,
			"Cannot assign an agent to a delivery in status %s", delivery.Status)
	}

	if err := tx.Model(delivery).Updates(map[string]interface{}{
		"agent_id": agentID,
		"status":   models.StatusAccepted,
	}).Error; err != nil {
		return false, fmt.Errorf("failed to assign delivery: %w", err)
	}
	delivery.AgentID = &agentID
	delivery.Status = models.StatusAccepted

	if notes == nil {
		defaultNotes := fmt.Sprintf("Assigned to agent %s", agent.Name)
		notes = &defaultNotes
	}
	return true, s.appendStatusUpdate(tx, delivery.ID, models.StatusAccepted, notes)
}

func (s *DeliveryService) unassignTx(tx *gorm.DB, delivery *models.Delivery, notes *string) (bool, error) {
	if delivery.AgentID == nil && delivery.Status == models.StatusPending {
		return false, nil
	}
	if s.strict && delivery.Status != models.StatusAccepted {
		return false, newServiceError(CodeInvalidTransition,
			"Cannot unassign a delivery in status %s", delivery.Status)
	}

	if err := tx.Model(delivery).Updates(map[string]interface{}{
		"agent_id": nil,
		"status":   models.StatusPending,
	}).Error; err != nil {
		return false, fmt.Errorf("failed to unassign delivery: %w", err)
	}
	delivery.AgentID = nil
	delivery.Status = models.StatusPending

	if notes == nil {
		defaultNotes := "Agent unassigned"
		notes = &defaultNotes
	}
	return true, s.appendStatusUpdate(tx, delivery.ID, models.StatusPending, notes)
}

// StatusHistory returns the audit trail of a delivery, newest first
func (s *DeliveryService) StatusHistory(ctx context.Context, id uint) ([]models.StatusUpdate, error) {
	if err := s.ensureExists(ctx, id); err != nil {
		return nil, err
	}

	updates := []models.StatusUpdate{}
	if err := s.db.WithContext(ctx).
		Where("delivery_id = ?", id).
		Order("timestamp DESC, id DESC").
		Find(&updates).Error; err != nil {
		return nil, fmt.Errorf("failed to load status updates: %w", err)
	}
	return updates, nil
}

// SetImage records the storage key of the package photo and returns the previous key
func (s *DeliveryService) SetImage(ctx context.Context, id uint, imageKey string) (*models.Delivery, *string, error) {
	var delivery models.Delivery
	if err := s.db.WithContext(ctx).First(&delivery, id).Error; err != nil {
		return nil, nil, notFoundOr(err, ErrDeliveryNotFound)
	}
	previous := delivery.ImageS3Key

	if err := s.db.WithContext(ctx).Model(&delivery).Update("image_s3_key", imageKey).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to store image key: %w", err)
	}

	s.invalidate(ctx, &delivery)
	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return updated, previous, nil
}

// Delete physically removes a delivery together with its messages, locations and status updates
func (s *DeliveryService) Delete(ctx context.Context, id uint) (*models.Delivery, error) {
	var delivery models.Delivery
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&delivery, id).Error; err != nil {
			return notFoundOr(err, ErrDeliveryNotFound)
		}
		for _, child := range []interface{}{&models.StatusUpdate{}, &models.Message{}, &models.Location{}} {
			if err := tx.Where("delivery_id = ?", id).Delete(child).Error; err != nil {
				return fmt.Errorf("failed to delete delivery children: %w", err)
			}
		}
		if err := tx.Delete(&delivery).Error; err != nil {
			return fmt.Errorf("failed to delete delivery: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, &delivery)
	return &delivery, nil
}

func (s *DeliveryService) checkTransition(delivery *models.Delivery, next models.DeliveryStatus) error {
	if !s.strict {
		return nil
	}
	if !delivery.Status.CanTransitionTo(next) {
		return newServiceError(CodeInvalidTransition,
			"Cannot change delivery status from %s to %s", delivery.Status, next)
	}
	if next.RequiresAgent() && delivery.AgentID == nil {
		return ErrAgentRequired
	}
	return nil
}

func (s *DeliveryService) appendStatusUpdate(tx *gorm.DB, deliveryID uint, status models.DeliveryStatus, notes *string) error {
	update := models.StatusUpdate{
		Status:     status,
		Timestamp:  s.now(),
		Notes:      notes,
		DeliveryID: deliveryID,
	}
	if err := tx.Create(&update).Error; err != nil {
		return fmt.Errorf("failed to record status update: %w", err)
	}
	return nil
}

func (s *DeliveryService) ensureExists(ctx context.Context, id uint) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Delivery{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up delivery: %w", err)
	}
	if count == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (s *DeliveryService) summaryQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Sender").
		Preload("Agent").
		Preload("StatusUpdates", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp DESC, id DESC")
		})
}

func (s *DeliveryService) filtered(ctx context.Context, filter DeliveryFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Delivery{})
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.SenderID != nil {
		q = q.Where("sender_id = ?", *filter.SenderID)
	}
	if filter.AgentID != nil {
		q = q.Where("agent_id = ?", *filter.AgentID)
	}
	if filter.Unassigned {
		q = q.Where("agent_id IS NULL AND status = ?", models.StatusPending)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + search + "%"
		q = q.Where("LOWER(tracking_id) LIKE ? OR LOWER(origin) LIKE ? OR LOWER(destination) LIKE ? OR LOWER(description) LIKE ? OR LOWER(package_description) LIKE ?",
			pattern, pattern, pattern, pattern, pattern)
	}
	return q
}

func (s *DeliveryService) storeInCache(ctx context.Context, delivery *models.Delivery) {
	if err := s.cache.SetDelivery(ctx, delivery); err != nil {
		log.Printf("warning: failed to cache delivery %d: %v", delivery.ID, err)
	}
}

func (s *DeliveryService) invalidate(ctx context.Context, delivery *models.Delivery) {
	if err := s.cache.Invalidate(ctx, delivery); err != nil {
		log.Printf("warning: failed to invalidate cached delivery %d: %v", delivery.ID, err)
	}
}

// NewTrackingID generates a human readable tracking id such as TRK-3F2A9C1B
func NewTrackingID() string {
	return "TRK-" + strings.ToUpper(uuid.New().String()[:8])
}

func sortClause(sort string) (string, error) {
	if sort == "" {
		return "created_at DESC, id DESC", nil
	}
	direction := "ASC"
	field := sort
	if strings.HasPrefix(sort, "-") {
		direction = "DESC"
		field = sort[1:]
	}
	column, ok := sortColumns[field]
	if !ok {
		return "", newServiceError(CodeInvalidQuery, "Cannot sort by %q", field)
	}
	return fmt.Sprintf("%s %s, id %s", column, direction, direction), nil
}

// NormalizePage applies the default and maximum page size and bounds the page number
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func setIfPresent[T any](updates map[string]interface{}, column string, value *T) {
	if value != nil {
		updates[column] = *value
	}
}

func validateOptionalCoordinates(lat, lng *float64) error {
	if lat == nil && lng == nil {
		return nil
	}
	if lat == nil || lng == nil {
		return newServiceError(CodeInvalidCoordinates, "Latitude and longitude must be supplied together")
	}
	return ValidateCoordinates(*lat, *lng)
}

func notFoundOr(err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}
