package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/delivery-tracking-api/config"
	"github.com/kendall-kelly/delivery-tracking-api/models"
	"gorm.io/gorm"
)

// CurrentUser resolves the authenticated caller's profile, memoizing it on the context
func CurrentUser(c *gin.Context) (*models.User, error) {
	if cached, ok := c.Get(ContextCurrentUser); ok {
		if user, ok := cached.(*models.User); ok {
			return user, nil
		}
	}

	auth0ID, err := GetUserID(c)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = config.GetDB().WithContext(c.Request.Context()).Where("auth0_id = ?", auth0ID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &AuthError{Code: "USER_NOT_FOUND", Message: "User profile not found. Please create a profile first."}
	}
	if err != nil {
		return nil, err
	}

	c.Set(ContextCurrentUser, &user)
	return &user, nil
}

// RequireRole rejects callers whose profile role is not one of roles
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := CurrentUser(c)
		if err != nil {
			AbortWithUserError(c, err)
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Insufficient permissions to access this resource",
			},
		})
	}
}

// AbortWithUserError writes the response for a failed CurrentUser lookup
func AbortWithUserError(c *gin.Context, err error) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		status := http.StatusUnauthorized
		if authErr.Code == "USER_NOT_FOUND" {
			status = http.StatusNotFound
		}
		c.AbortWithStatusJSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    authErr.Code,
				"message": authErr.Message,
			},
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "DATABASE_ERROR",
			"message": "Failed to load user profile",
		},
	})
}
