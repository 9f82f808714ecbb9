package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/delivery-tracking-api/config"
	"github.com/kendall-kelly/delivery-tracking-api/models"
	"github.com/kendall-kelly/delivery-tracking-api/services"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respondValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

// respondServiceError maps service errors to HTTP status codes.
// Unrecognized errors are logged and reported as DATABASE_ERROR with fallback as the message.
func respondServiceError(c *gin.Context, err error, fallback string) {
	var svcErr *services.ServiceError
	if !errors.As(err, &svcErr) {
		log.Printf("%s: %v", fallback, err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", fallback)
		return
	}

	status := http.StatusBadRequest
	switch svcErr.Code {
	case services.CodeDeliveryNotFound, services.CodeAgentNotFound:
		status = http.StatusNotFound
	case services.CodeInvalidTransition:
		status = http.StatusConflict
	}
	respondError(c, status, svcErr.Code, svcErr.Message)
}

// parseID reads a positive numeric path or query value
func parseID(value string) (uint, bool) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// parseStatus converts a client status label, rejecting display-only labels
func parseStatus(c *gin.Context, value string) (models.DeliveryStatus, bool) {
	status, err := models.ParseDeliveryStatus(value)
	if errors.Is(err, models.ErrDisplayOnlyStatus) {
		respondError(c, http.StatusBadRequest, services.CodeUnsupportedStatus, err.Error())
		return "", false
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, services.CodeInvalidStatus, err.Error())
		return "", false
	}
	return status, true
}

func newDeliveryService() *services.DeliveryService {
	strict := true
	if cfg := config.GetConfig(); cfg != nil {
		strict = cfg.IsStrictTransitions()
	}
	return services.NewDeliveryService(config.GetDB(), services.GetDeliveryCache(), strict)
}

// loadDeliveryFor fetches a delivery and checks that user may read it.
// On failure the response has already been written.
func loadDeliveryFor(c *gin.Context, svc *services.DeliveryService, user *models.User, id uint) (*models.Delivery, bool) {
	delivery, err := svc.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch delivery")
		return nil, false
	}
	if !user.IsAdmin() && !delivery.IsParticipant(user.ID) {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You do not have access to this delivery")
		return nil, false
	}
	return delivery, true
}

// attachImageURL fills in the presigned photo URL. Failures only drop the URL.
func attachImageURL(c *gin.Context, delivery *models.Delivery) {
	imageService := services.GetImageService()
	if imageService == nil || delivery.ImageS3Key == nil {
		return
	}

	url, err := imageService.GetImageURL(c.Request.Context(), *delivery.ImageS3Key)
	if err != nil {
		log.Printf("warning: failed to presign image for delivery %d: %v", delivery.ID, err)
		return
	}
	delivery.ImageURL = &url
}
