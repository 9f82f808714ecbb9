package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/delivery-tracking-api/config"
	"github.com/kendall-kelly/delivery-tracking-api/middleware"
	"github.com/kendall-kelly/delivery-tracking-api/models"
	"github.com/kendall-kelly/delivery-tracking-api/services"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// One connection, otherwise each pooled connection opens its own empty in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	config.SetDB(db)
	config.SetConfig(&config.Config{TransitionPolicy: config.TransitionPolicyStrict})
	services.SetDeliveryCache(nil)
	services.SetImageService(nil)
	return db
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// setupMockAuth0Server creates a mock HTTP server that simulates Auth0's /userinfo endpoint
func setupMockAuth0Server(userInfoMap map[string]*services.Auth0UserInfo) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if len(authHeader) < 7 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		userInfo, exists := userInfoMap[authHeader[7:]]
		if !exists {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(userInfo)
	}))
}

// mockAuthMiddleware sets up the context exactly as EnsureValidToken does
func mockAuthMiddleware(auth0ID, role, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, auth0ID)
		c.Set(middleware.ContextAccessToken, accessToken)
		c.Set(middleware.ContextValidatedClaims, &validator.ValidatedClaims{
			CustomClaims: &middleware.CustomClaims{Role: role},
		})
		c.Next()
	}
}

// asUser authenticates requests as the given profile
func asUser(user models.User) gin.HandlerFunc {
	auth0ID := ""
	if user.Auth0ID != nil {
		auth0ID = *user.Auth0ID
	}
	return mockAuthMiddleware(auth0ID, string(user.Role), "token-"+auth0ID)
}

func createUser(t *testing.T, db *gorm.DB, name string, role models.Role) models.User {
	auth0ID := "auth0|" + name
	user := models.User{
		Auth0ID: &auth0ID,
		Name:    name,
		Email:   name + "@example.com",
		Role:    role,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createDelivery(t *testing.T, db *gorm.DB, sender models.User) *models.Delivery {
	delivery, err := services.NewDeliveryService(db, nil, true).Create(context.Background(), services.CreateDeliveryInput{
		SenderID:    sender.ID,
		Origin:      "X",
		Destination: "Y",
	})
	require.NoError(t, err)
	return delivery
}

func assignDelivery(t *testing.T, db *gorm.DB, delivery *models.Delivery, agent models.User) {
	_, err := services.NewDeliveryService(db, nil, true).Assign(context.Background(), delivery.ID, agent.ID, nil)
	require.NoError(t, err)
}

// performRequest sends a JSON request (body may be nil) and decodes the envelope
func performRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "Response body: %s", w.Body.String())
	return w, response
}

func errorCode(response map[string]interface{}) string {
	errorData, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errorData["code"].(string)
	return code
}
