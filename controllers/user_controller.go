package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/delivery-tracking-api/config"
	"github.com/kendall-kelly/delivery-tracking-api/middleware"
	"github.com/kendall-kelly/delivery-tracking-api/models"
	"github.com/kendall-kelly/delivery-tracking-api/services"
	"github.com/kendall-kelly/delivery-tracking-api/utils"
	"gorm.io/gorm"
)

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string  `json:"name" binding:"omitempty"`
	Email string  `json:"email" binding:"omitempty,email"`
	Image *string `json:"image"`
}

// ProvisionUserRequest represents an admin-created account
type ProvisionUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateUser handles POST /api/users - creates the caller's profile from Auth0 userinfo.
// An account provisioned by an admin with the same email is linked instead of duplicated.
func CreateUser(c *gin.Context) {
	// Get the Auth0 user ID from the validated JWT
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user ID from token")
		return
	}

	// Get the access token to call Auth0's /userinfo endpoint
	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "MISSING_TOKEN", "Access token not found")
		return
	}

	cfg := config.GetConfig()
	if cfg == nil {
		respondError(c, http.StatusInternalServerError, "CONFIG_ERROR", "Auth0 is not configured")
		return
	}

	userInfo, err := services.NewAuth0Service(cfg.Auth0Domain).GetUserInfo(c.Request.Context(), accessToken)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "AUTH0_ERROR", "Failed to fetch user information from Auth0")
		return
	}

	if userInfo.Email == "" {
		respondError(c, http.StatusBadRequest, "MISSING_EMAIL", "Email not provided by Auth0")
		return
	}
	if userInfo.Name == "" {
		respondError(c, http.StatusBadRequest, "MISSING_NAME", "Name not provided by Auth0")
		return
	}

	db := config.GetDB().WithContext(c.Request.Context())

	// Link a provisioned account on its first login; the admin-chosen role is kept.
	// Only a verified email may claim it, otherwise the create below hits USER_EXISTS.
	var provisioned models.User
	err = gorm.ErrRecordNotFound
	if userInfo.EmailVerified {
		err = db.Where("LOWER(email) = ? AND auth0_id IS NULL", strings.ToLower(userInfo.Email)).First(&provisioned).Error
	}
	if err == nil {
		if err := db.Model(&provisioned).Update("auth0_id", auth0ID).Error; err != nil {
			respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to link user profile")
			return
		}
		provisioned.Auth0ID = &auth0ID
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    provisioned,
		})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to look up user")
		return
	}

	// Role comes from the token's custom claim when present
	role := models.RoleUser
	if claimed, err := models.ParseRole(middleware.GetRoleClaim(c)); err == nil {
		role = claimed
	}

	user := models.User{
		Auth0ID: &auth0ID,
		Name:    userInfo.Name,
		Email:   strings.ToLower(strings.TrimSpace(userInfo.Email)),
		Role:    role,
	}
	if userInfo.Picture != "" {
		user.Image = &userInfo.Picture
	}

	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respondError(c, http.StatusConflict, "USER_EXISTS", "A user with this Auth0 ID or email already exists")
			return
		}
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    user,
	})
}

// GetMyProfile handles GET /api/users/me - gets current user's profile
func GetMyProfile(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}

// UpdateMyProfile handles PUT /api/users/me - updates current user's profile
func UpdateMyProfile(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		middleware.AbortWithUserError(c, err)
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Email != "" {
		updates["email"] = req.Email
	}
	if req.Image != nil {
		updates["image"] = *req.Image
	}

	// If no fields to update, return current user
	if len(updates) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    user,
		})
		return
	}

	db := config.GetDB().WithContext(c.Request.Context())
	if err := db.Model(user).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respondError(c, http.StatusConflict, "EMAIL_EXISTS", "A user with this email already exists")
			return
		}
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update user profile")
		return
	}

	var updated models.User
	if err := db.First(&updated, user.ID).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch updated profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    updated,
	})
}

// ListUsers handles GET /api/users?role= - used by dashboards to pick agents
func ListUsers(c *gin.Context) {
	query := config.GetDB().WithContext(c.Request.Context()).Order("name ASC, id ASC")

	if raw := c.Query("role"); raw != "" {
		role, err := models.ParseRole(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_ROLE", "role must be USER, AGENT or ADMIN")
			return
		}
		query = query.Where("role = ?", role)
	}

	users := []models.User{}
	if err := query.Find(&users).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch users")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    users,
	})
}

// ProvisionUser handles POST /api/users/provision - an admin creates an account ahead of its first login
func ProvisionUser(c *gin.Context) {
	var req ProvisionUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ROLE", "role must be USER, AGENT or ADMIN")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		respondError(c, http.StatusBadRequest, "WEAK_PASSWORD", err.Error())
		return
	}

	user := models.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: &hash,
		Role:     role,
	}
	if err := config.GetDB().WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respondError(c, http.StatusConflict, "USER_EXISTS", "A user with this email already exists")
			return
		}
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    user,
	})
}
