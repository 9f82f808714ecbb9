package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/delivery-tracking-api/config"
	"github.com/kendall-kelly/delivery-tracking-api/middleware"
	"github.com/kendall-kelly/delivery-tracking-api/services"
)

// RecordLocationRequest represents a GPS sample sent by the assigned agent
type RecordLocationRequest struct {
	DeliveryID uint     `json:"deliveryId" binding:"required"`
	Latitude   *float64 `json:"latitude" binding:"required"`
	Longitude  *float64 `json:"longitude" binding:"required"`
}

// ListLocations handles GET /api/locations?deliveryId=&latest=&order=
// With latest=true only the most recent sample (or null) is returned.
func ListLocations(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	deliveryID, ok := parseID(c.Query("deliveryId"))
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "deliveryId query parameter is required")
		return
	}

	ascending := false
	switch c.DefaultQuery("order", "desc") {
	case "asc":
		ascending = true
	case "desc":
	default:
		respondError(c, http.StatusBadRequest, services.CodeInvalidQuery, "order must be asc or desc")
		return
	}

	if _, ok := loadDeliveryFor(c, newDeliveryService(), user, deliveryID); !ok {
		return
	}

	locations := services.NewLocationService(config.GetDB())
	if c.Query("latest") == "true" {
		latest, err := locations.LatestLocation(c.Request.Context(), deliveryID)
		if err != nil {
			respondServiceError(c, err, "Failed to fetch location")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    latest,
		})
		return
	}

	history, err := locations.History(c.Request.Context(), deliveryID, ascending)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch locations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    history,
	})
}

// RecordLocation handles POST /api/locations - appends the caller's position to a delivery they are assigned to
func RecordLocation(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	var req RecordLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	delivery, err := newDeliveryService().Get(c.Request.Context(), req.DeliveryID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch delivery")
		return
	}
	if !delivery.IsAssignedTo(user.ID) {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "Only the assigned agent can report a position")
		return
	}

	location, err := services.NewLocationService(config.GetDB()).
		RecordLocation(c.Request.Context(), delivery.ID, user.ID, *req.Latitude, *req.Longitude)
	if err != nil {
		respondServiceError(c, err, "Failed to record location")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    location,
	})
}
