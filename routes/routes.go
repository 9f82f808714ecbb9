package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/delivery-tracking-api/controllers"
	"github.com/kendall-kelly/delivery-tracking-api/middleware"
	"github.com/kendall-kelly/delivery-tracking-api/models"
)

// Register mounts the delivery tracking endpoints on api.
// auth validates the bearer token and populates the caller's identity.
func Register(api *gin.RouterGroup, auth gin.HandlerFunc) {
	// Public tracking page
	api.GET("/track/:trackingId", controllers.TrackDelivery)

	users := api.Group("/users", auth)
	{
		users.POST("", controllers.CreateUser)
		users.GET("", middleware.RequireRole(models.RoleAdmin, models.RoleAgent), controllers.ListUsers)
		users.GET("/me", controllers.GetMyProfile)
		users.PUT("/me", controllers.UpdateMyProfile)
		users.POST("/provision", middleware.RequireRole(models.RoleAdmin), controllers.ProvisionUser)
	}

	deliveries := api.Group("/deliveries", auth)
	{
		deliveries.POST("", middleware.RequireRole(models.RoleUser, models.RoleAdmin), controllers.CreateDelivery)
		deliveries.GET("", controllers.ListDeliveries)
		deliveries.PATCH("", controllers.PatchDelivery)
		deliveries.GET("/stats", controllers.GetDeliveryStats)
		deliveries.GET("/:id", controllers.GetDelivery)
		deliveries.PUT("/:id", controllers.UpdateDelivery)
		deliveries.DELETE("/:id", controllers.DeleteDelivery)
		deliveries.GET("/:id/status-updates", controllers.ListStatusUpdates)
		deliveries.POST("/:id/image", controllers.UploadDeliveryImage)
	}

	chat := api.Group("/chat", auth)
	{
		chat.GET("", controllers.ListChatMessages)
		chat.POST("", controllers.PostChatMessage)
	}

	locations := api.Group("/locations", auth)
	{
		locations.GET("", controllers.ListLocations)
		locations.POST("", controllers.RecordLocation)
	}
}
