package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/delivery-tracking-api/config"
	"github.com/kendall-kelly/delivery-tracking-api/middleware"
	"github.com/kendall-kelly/delivery-tracking-api/services"
)

// PostChatMessageRequest represents the request body for sending a chat message
type PostChatMessageRequest struct {
	DeliveryID uint   `json:"deliveryId" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

// ListChatMessages handles GET /api/chat?deliveryId= - the conversation of a delivery, oldest first
func ListChatMessages(c *gin.Context) {
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

	if _, ok := loadDeliveryFor(c, newDeliveryService(), user, deliveryID); !ok {
		return
	}

	messages, err := services.NewChatService(config.GetDB()).ListMessages(c.Request.Context(), deliveryID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    messages,
	})
}

// PostChatMessage handles POST /api/chat - sends a message on a delivery the caller takes part in
func PostChatMessage(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	var req PostChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	if _, ok := loadDeliveryFor(c, newDeliveryService(), user, req.DeliveryID); !ok {
		return
	}

	message, err := services.NewChatService(config.GetDB()).PostMessage(c.Request.Context(), req.DeliveryID, user.ID, req.Content)
	if err != nil {
		respondServiceError(c, err, "Failed to create message")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    message,
	})
}
