package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/delivery-tracking-api/config"
	"github.com/kendall-kelly/delivery-tracking-api/middleware"
	"github.com/kendall-kelly/delivery-tracking-api/models"
	"github.com/kendall-kelly/delivery-tracking-api/services"
	"github.com/kendall-kelly/delivery-tracking-api/utils"
)

// CreateDeliveryRequest represents the request body for creating a delivery
type CreateDeliveryRequest struct {
	Origin             string     `json:"origin" binding:"required"`
	Destination        string     `json:"destination" binding:"required"`
	PickupAddress      *string    `json:"pickupAddress"`
	DeliveryAddress    *string    `json:"deliveryAddress"`
	PickupLat          *float64   `json:"pickupLat"`
	PickupLng          *float64   `json:"pickupLng"`
	DeliveryLat        *float64   `json:"deliveryLat"`
	DeliveryLng        *float64   `json:"deliveryLng"`
	PackageDescription *string    `json:"packageDescription"`
	Weight             *float64   `json:"weight" binding:"omitempty,gt=0"`
	Dimensions         *string    `json:"dimensions"`
	Notes              *string    `json:"notes"`
	EstimatedDelivery  *time.Time `json:"estimatedDelivery"`
	Description        *string    `json:"description"`
}

// UpdateDeliveryRequest represents the request body for editing a delivery; omitted fields are unchanged
type UpdateDeliveryRequest struct {
	Origin             *string    `json:"origin"`
	Destination        *string    `json:"destination"`
	PickupAddress      *string    `json:"pickupAddress"`
	DeliveryAddress    *string    `json:"deliveryAddress"`
	PickupLat          *float64   `json:"pickupLat"`
	PickupLng          *float64   `json:"pickupLng"`
	DeliveryLat        *float64   `json:"deliveryLat"`
	DeliveryLng        *float64   `json:"deliveryLng"`
	PackageDescription *string    `json:"packageDescription"`
	Weight             *float64   `json:"weight" binding:"omitempty,gt=0"`
	Dimensions         *string    `json:"dimensions"`
	Notes              *string    `json:"notes"`
	EstimatedDelivery  *time.Time `json:"estimatedDelivery"`
	Description        *string    `json:"description"`
}

// PatchDeliveryRequest changes status and/or assignment of a delivery.
// Latitude/longitude, when present, are recorded as the agent's position.
type PatchDeliveryRequest struct {
	ID        uint     `json:"id" binding:"required"`
	Status    *string  `json:"status"`
	AgentID   *uint    `json:"agentId"`
	Unassign  bool     `json:"unassign"`
	Notes     *string  `json:"notes"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CreateDelivery handles POST /api/deliveries - creates a delivery sent by the caller
func CreateDelivery(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	var req CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	delivery, err := newDeliveryService().Create(c.Request.Context(), services.CreateDeliveryInput{
		SenderID:           user.ID,
		Origin:             req.Origin,
		Destination:        req.Destination,
		PickupAddress:      req.PickupAddress,
		DeliveryAddress:    req.DeliveryAddress,
		PickupLat:          req.PickupLat,
		PickupLng:          req.PickupLng,
		DeliveryLat:        req.DeliveryLat,
		DeliveryLng:        req.DeliveryLng,
		PackageDescription: req.PackageDescription,
		Weight:             req.Weight,
		Dimensions:         req.Dimensions,
		Notes:              req.Notes,
		EstimatedDelivery:  req.EstimatedDelivery,
		Description:        req.Description,
	})
	if err != nil {
		respondServiceError(c, err, "Failed to create delivery")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    delivery,
	})
}

// ListDeliveries handles GET /api/deliveries - lists deliveries visible to the caller.
// Senders see their own deliveries, agents see their assignments (or the unassigned
// pool with ?unassigned=true) and admins see everything.
func ListDeliveries(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	filter, ok := deliveryFilterFromQuery(c, user)
	if !ok {
		return
	}

	deliveries, total, err := newDeliveryService().List(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch deliveries")
		return
	}
	for i := range deliveries {
		attachImageURL(c, &deliveries[i])
	}

	page, limit := services.NormalizePage(filter.Page, filter.Limit)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    deliveries,
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// GetDeliveryStats handles GET /api/deliveries/stats - dashboard counters for the caller's deliveries
func GetDeliveryStats(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	filter, ok := deliveryFilterFromQuery(c, user)
	if !ok {
		return
	}

	stats, err := newDeliveryService().Stats(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err, "Failed to compute delivery statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// GetDelivery handles GET /api/deliveries/:id - one delivery with messages, locations and history
func GetDelivery(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid delivery ID")
		return
	}

	svc := newDeliveryService()
	if _, ok := loadDeliveryFor(c, svc, user, id); !ok {
		return
	}

	delivery, err := svc.GetWithRelations(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch delivery")
		return
	}
	attachImageURL(c, delivery)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    delivery,
	})
}

// UpdateDelivery handles PUT /api/deliveries/:id - edits descriptive fields.
// Admins may edit any delivery; senders only their own while it is PENDING.
func UpdateDelivery(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid delivery ID")
		return
	}

	var req UpdateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	svc := newDeliveryService()
	delivery, ok := loadDeliveryFor(c, svc, user, id)
	if !ok {
		return
	}
	if !user.IsAdmin() && !(delivery.SenderID == user.ID && delivery.Status == models.StatusPending) {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "Only the sender can edit a delivery, and only while it is pending")
		return
	}

	updated, err := svc.UpdateDetails(c.Request.Context(), id, services.UpdateDeliveryInput{
		Origin:             req.Origin,
		Destination:        req.Destination,
		PickupAddress:      req.PickupAddress,
		DeliveryAddress:    req.DeliveryAddress,
		PickupLat:          req.PickupLat,
		PickupLng:          req.PickupLng,
		DeliveryLat:        req.DeliveryLat,
		DeliveryLng:        req.DeliveryLng,
		PackageDescription: req.PackageDescription,
		Weight:             req.Weight,
		Dimensions:         req.Dimensions,
		Notes:              req.Notes,
		EstimatedDelivery:  req.EstimatedDelivery,
		Description:        req.Description,
	})
	if err != nil {
		respondServiceError(c, err, "Failed to update delivery")
		return
	}
	attachImageURL(c, updated)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    updated,
	})
}

// PatchDelivery handles PATCH /api/deliveries - assignment and status changes.
//
// Admins may assign any agent and set any status. An agent may accept a pending
// delivery for themselves and move deliveries assigned to them. A sender may only
// cancel their own pending delivery.
func PatchDelivery(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	var req PatchDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if req.Status == nil && req.AgentID == nil && !req.Unassign {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Provide status, agentId or unassign")
		return
	}
	if req.Unassign && req.AgentID != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "agentId and unassign cannot be combined")
		return
	}

	var status models.DeliveryStatus
	var nextStatus *models.DeliveryStatus
	if req.Status != nil {
		var ok bool
		if status, ok = parseStatus(c, *req.Status); !ok {
			return
		}
		nextStatus = &status
	}

	ctx := c.Request.Context()
	svc := newDeliveryService()
	delivery, err := svc.Get(ctx, req.ID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch delivery")
		return
	}

	if req.AgentID != nil {
		if !canAssign(user, delivery, *req.AgentID) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "You cannot assign this delivery")
			return
		}
		var agent models.User
		if err := config.GetDB().WithContext(ctx).First(&agent, *req.AgentID).Error; err != nil {
			respondError(c, http.StatusNotFound, services.CodeAgentNotFound, "Agent not found")
			return
		}
		if !agent.IsAgent() {
			respondError(c, http.StatusBadRequest, "INVALID_AGENT", "Deliveries can only be assigned to users with the AGENT role")
			return
		}
	}
	if req.Unassign && !user.IsAdmin() && !delivery.IsAssignedTo(user.ID) {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You cannot unassign this delivery")
		return
	}
	if req.Status != nil && !canSetStatus(user, delivery, req.AgentID, status) {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You cannot change the status of this delivery")
		return
	}

	delivery, err = svc.Apply(ctx, delivery.ID, services.DeliveryChange{
		AgentID:  req.AgentID,
		Unassign: req.Unassign,
		Status:   nextStatus,
		Notes:    req.Notes,
	})
	if err != nil {
		respondServiceError(c, err, "Failed to update delivery")
		return
	}

	var warnings []string
	if req.Latitude != nil || req.Longitude != nil {
		if warning := recordPatchLocation(c, user, delivery, req.Latitude, req.Longitude); warning != "" {
			warnings = append(warnings, warning)
		}
	}
	attachImageURL(c, delivery)

	response := gin.H{
		"success": true,
		"data":    delivery,
	}
	if len(warnings) > 0 {
		response["warnings"] = warnings
	}
	c.JSON(http.StatusOK, response)
}

// DeleteDelivery handles DELETE /api/deliveries/:id - removes a delivery and everything attached to it
func DeleteDelivery(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid delivery ID")
		return
	}

	svc := newDeliveryService()
	delivery, ok := loadDeliveryFor(c, svc, user, id)
	if !ok {
		return
	}
	if !user.IsAdmin() && !(delivery.SenderID == user.ID && delivery.Status == models.StatusPending) {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "Only admins, or the sender of a pending delivery, can delete it")
		return
	}

	deleted, err := svc.Delete(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to delete delivery")
		return
	}

	if imageService := services.GetImageService(); imageService != nil && deleted.ImageS3Key != nil {
		if err := imageService.DeleteImage(c.Request.Context(), *deleted.ImageS3Key); err != nil {
			log.Printf("warning: failed to delete image for delivery %d: %v", id, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id": deleted.ID,
		},
	})
}

// ListStatusUpdates handles GET /api/deliveries/:id/status-updates - the audit trail, newest first
func ListStatusUpdates(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid delivery ID")
		return
	}

	svc := newDeliveryService()
	if _, ok := loadDeliveryFor(c, svc, user, id); !ok {
		return
	}

	updates, err := svc.StatusHistory(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch status updates")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    updates,
	})
}

// UploadDeliveryImage handles POST /api/deliveries/:id/image - stores a PNG photo of the package
func UploadDeliveryImage(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	imageService := services.GetImageService()
	if imageService == nil {
		respondError(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Image storage is not configured")
		return
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid delivery ID")
		return
	}

	svc := newDeliveryService()
	if _, ok := loadDeliveryFor(c, svc, user, id); !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		respondError(c, http.StatusBadRequest, "MISSING_FILE", "An image file is required in the 'image' field")
		return
	}

	ctx := c.Request.Context()
	key, err := imageService.UploadDeliveryImage(ctx, id, fileHeader)
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			respondError(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message)
			return
		}
		log.Printf("Failed to upload image for delivery %d: %v", id, err)
		respondError(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Failed to upload image")
		return
	}

	delivery, previous, err := svc.SetImage(ctx, id, key)
	if err != nil {
		respondServiceError(c, err, "Failed to store image")
		return
	}
	if previous != nil && *previous != key {
		if err := imageService.DeleteImage(ctx, *previous); err != nil {
			log.Printf("warning: failed to delete previous image %s: %v", *previous, err)
		}
	}
	attachImageURL(c, delivery)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    delivery,
	})
}

// TrackDelivery handles GET /api/track/:trackingId - public tracking view without personal data
func TrackDelivery(c *gin.Context) {
	trackingID := c.Param("trackingId")
	if strings.TrimSpace(trackingID) == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Tracking ID is required")
		return
	}

	ctx := c.Request.Context()
	delivery, err := newDeliveryService().GetByTrackingID(ctx, trackingID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch delivery")
		return
	}

	latest, err := services.NewLocationService(config.GetDB()).LatestLocation(ctx, delivery.ID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch delivery location")
		return
	}

	history := make([]gin.H, 0, len(delivery.StatusUpdates))
	for _, update := range delivery.StatusUpdates {
		history = append(history, gin.H{
			"status":    update.Status,
			"timestamp": update.Timestamp,
			"notes":     update.Notes,
		})
	}

	view := gin.H{
		"trackingId":        delivery.TrackingID,
		"status":            delivery.Status,
		"origin":            delivery.Origin,
		"destination":       delivery.Destination,
		"estimatedDelivery": delivery.EstimatedDelivery,
		"createdAt":         delivery.CreatedAt,
		"updatedAt":         delivery.UpdatedAt,
		"statusUpdates":     history,
		"latestLocation":    nil,
		"agentName":         nil,
	}
	if latest != nil {
		view["latestLocation"] = gin.H{
			"latitude":  latest.Latitude,
			"longitude": latest.Longitude,
			"timestamp": latest.Timestamp,
		}
	}
	if delivery.Agent != nil {
		view["agentName"] = delivery.Agent.Name
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    view,
	})
}

// deliveryFilterFromQuery reads list filters and scopes them to what the caller may see.
// On failure the response has already been written.
func deliveryFilterFromQuery(c *gin.Context, user *models.User) (services.DeliveryFilter, bool) {
	filter := services.DeliveryFilter{
		Search:     c.Query("search"),
		Sort:       c.Query("sort"),
		Unassigned: c.Query("unassigned") == "true",
	}

	if raw := c.Query("status"); raw != "" {
		for _, label := range strings.Split(raw, ",") {
			status, ok := parseStatus(c, label)
			if !ok {
				return filter, false
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	idParams := []struct {
		name   string
		target **uint
	}{
		{"senderId", &filter.SenderID},
		{"agentId", &filter.AgentID},
	}
	for _, param := range idParams {
		raw := c.Query(param.name)
		if raw == "" {
			continue
		}
		id, ok := parseID(raw)
		if !ok {
			respondError(c, http.StatusBadRequest, services.CodeInvalidQuery, "Invalid "+param.name)
			return filter, false
		}
		*param.target = &id
	}

	// An oversized page is rejected; an oversized limit is clamped to the maximum
	pageParams := []struct {
		name   string
		target *int
		max    uint
		clamp  bool
	}{
		{"page", &filter.Page, services.MaxPage, false},
		{"limit", &filter.Limit, services.MaxPageLimit, true},
	}
	for _, param := range pageParams {
		raw := c.Query(param.name)
		if raw == "" {
			continue
		}
		value, ok := parseID(raw)
		if !ok {
			respondError(c, http.StatusBadRequest, services.CodeInvalidQuery, param.name+" must be a positive number")
			return filter, false
		}
		if value > param.max {
			if !param.clamp {
				respondError(c, http.StatusBadRequest, services.CodeInvalidQuery,
					fmt.Sprintf("%s must be at most %d", param.name, param.max))
				return filter, false
			}
			value = param.max
		}
		*param.target = int(value)
	}

	switch user.Role {
	case models.RoleAdmin:
	case models.RoleAgent:
		if filter.Unassigned {
			filter.AgentID = nil
		} else {
			filter.AgentID = &user.ID
		}
		filter.SenderID = nil
	default:
		filter.SenderID = &user.ID
	}
	return filter, true
}

func canAssign(user *models.User, delivery *models.Delivery, agentID uint) bool {
	if user.IsAdmin() {
		return true
	}
	// Agents pick up work from the unassigned pool for themselves only
	return user.IsAgent() && agentID == user.ID &&
		(delivery.Status == models.StatusPending || delivery.IsAssignedTo(user.ID))
}

func canSetStatus(user *models.User, delivery *models.Delivery, assigning *uint, status models.DeliveryStatus) bool {
	switch {
	case user.IsAdmin():
		return true
	case user.IsAgent():
		return delivery.IsAssignedTo(user.ID) || (assigning != nil && *assigning == user.ID)
	default:
		return delivery.SenderID == user.ID &&
			delivery.Status == models.StatusPending &&
			status == models.StatusCancelled
	}
}

// recordPatchLocation appends the agent position sent with a status change.
// It never fails the request; problems are returned as a warning.
func recordPatchLocation(c *gin.Context, user *models.User, delivery *models.Delivery, lat, lng *float64) string {
	if lat == nil || lng == nil {
		return "Location skipped: latitude and longitude must be sent together"
	}
	if !delivery.IsAssignedTo(user.ID) {
		return "Location skipped: only the assigned agent can report a position"
	}

	_, err := services.NewLocationService(config.GetDB()).RecordLocation(c.Request.Context(), delivery.ID, user.ID, *lat, *lng)
	if err != nil {
		log.Printf("warning: failed to record location for delivery %d: %v", delivery.ID, err)
		return "Location skipped: " + err.Error()
	}
	return ""
}
