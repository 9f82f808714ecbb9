package controllers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kendall-kelly/delivery-tracking-api/config"
	"github.com/kendall-kelly/delivery-tracking-api/models"
	"github.com/kendall-kelly/delivery-tracking-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// useMockAuth0 points the Auth0 client at a mock /userinfo server for the duration of the test
func useMockAuth0(t *testing.T, userInfoMap map[string]*services.Auth0UserInfo) {
	mockServer := setupMockAuth0Server(userInfoMap)
	t.Cleanup(mockServer.Close)

	originalConfig := config.GetConfig()
	t.Cleanup(func() { config.SetConfig(originalConfig) })
	config.SetConfig(&config.Config{Auth0Domain: mockServer.URL})
}

func TestCreateUser(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		name           string
		auth0ID        string
		email          string
		userName       string
		role           string
		accessToken    string
		expectedStatus int
		expectedCode   string
		expectedRole   string
	}{
		{
			name:           "Create sender successfully",
			auth0ID:        "auth0|123456",
			email:          "john@example.com",
			userName:       "John Doe",
			role:           "USER",
			accessToken:    "token-123456",
			expectedStatus: http.StatusCreated,
			expectedRole:   "USER",
		},
		{
			name:           "Create agent from role claim",
			auth0ID:        "auth0|agent789",
			email:          "agent@example.com",
			userName:       "Agent User",
			role:           "agent",
			accessToken:    "token-agent789",
			expectedStatus: http.StatusCreated,
			expectedRole:   "AGENT",
		},
		{
			name:           "Default role when claim is empty",
			auth0ID:        "auth0|norole",
			email:          "norole@example.com",
			userName:       "No Role User",
			accessToken:    "token-norole",
			expectedStatus: http.StatusCreated,
			expectedRole:   "USER",
		},
		{
			name:           "Default role when claim is unknown",
			auth0ID:        "auth0|weird",
			email:          "weird@example.com",
			userName:       "Weird Role",
			role:           "superuser",
			accessToken:    "token-weird",
			expectedStatus: http.StatusCreated,
			expectedRole:   "USER",
		},
		{
			name:           "Fail with missing email",
			auth0ID:        "auth0|noemail",
			userName:       "No Email User",
			accessToken:    "token-noemail",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "MISSING_EMAIL",
		},
		{
			name:           "Fail with missing name",
			auth0ID:        "auth0|noname",
			email:          "noname@example.com",
			accessToken:    "token-noname",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "MISSING_NAME",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.Exec("DELETE FROM users")
			useMockAuth0(t, map[string]*services.Auth0UserInfo{
				tt.accessToken: {Sub: tt.auth0ID, Email: tt.email, Name: tt.userName},
			})

			router := setupTestRouter()
			router.POST("/users", mockAuthMiddleware(tt.auth0ID, tt.role, tt.accessToken), CreateUser)
			w, response := performRequest(t, router, http.MethodPost, "/users", nil)

			assert.Equal(t, tt.expectedStatus, w.Code, "Response body: %s", w.Body.String())
			if tt.expectedCode != "" {
				assert.False(t, response["success"].(bool))
				assert.Equal(t, tt.expectedCode, errorCode(response))
				return
			}

			data := response["data"].(map[string]interface{})
			assert.Equal(t, tt.email, data["email"])
			assert.Equal(t, tt.userName, data["name"])
			assert.Equal(t, tt.auth0ID, data["auth0Id"])
			assert.Equal(t, tt.expectedRole, data["role"])
			assert.NotContains(t, data, "password")
		})
	}
}

func TestCreateUser_Auth0Failure(t *testing.T) {
	setupTestDB(t)
	useMockAuth0(t, map[string]*services.Auth0UserInfo{})

	router := setupTestRouter()
	router.POST("/users", mockAuthMiddleware("auth0|x", "", "unknown-token"), CreateUser)
	w, response := performRequest(t, router, http.MethodPost, "/users", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "AUTH0_ERROR", errorCode(response))
}

func TestCreateUser_Duplicate(t *testing.T) {
	db := setupTestDB(t)
	existing := createUser(t, db, "first", models.RoleUser)

	tests := []struct {
		name    string
		auth0ID string
		email   string
	}{
		{"Duplicate Auth0 ID", *existing.Auth0ID, "second@example.com"},
		{"Duplicate email", "auth0|second", existing.Email},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useMockAuth0(t, map[string]*services.Auth0UserInfo{
				"token-dup": {Sub: tt.auth0ID, Email: tt.email, Name: "Second User"},
			})

			router := setupTestRouter()
			router.POST("/users", mockAuthMiddleware(tt.auth0ID, "USER", "token-dup"), CreateUser)
			w, response := performRequest(t, router, http.MethodPost, "/users", nil)

			assert.Equal(t, http.StatusConflict, w.Code, "Response body: %s", w.Body.String())
			assert.Equal(t, "USER_EXISTS", errorCode(response))
		})
	}
}

func TestDuplicateUserIsReportedAsDuplicatedKey(t *testing.T) {
	db := setupTestDB(t)
	existing := createUser(t, db, "taken", models.RoleUser)

	auth0ID := "auth0|other"
	err := db.Create(&models.User{Auth0ID: &auth0ID, Name: "Other", Email: existing.Email, Role: models.RoleUser}).Error
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)
}

func TestCreateUser_LinksProvisionedAccount(t *testing.T) {
	db := setupTestDB(t)
	hash := "$2a$10$abcdefghijklmnopqrstuv"
	provisioned := models.User{Name: "Dana Driver", Email: "dana@example.com", Role: models.RoleAgent, Password: &hash}
	require.NoError(t, db.Create(&provisioned).Error)

	useMockAuth0(t, map[string]*services.Auth0UserInfo{
		"token-dana": {Sub: "auth0|dana", Email: "Dana@Example.com", EmailVerified: true, Name: "Dana"},
	})

	router := setupTestRouter()
	router.POST("/users", mockAuthMiddleware("auth0|dana", "USER", "token-dana"), CreateUser)
	w, response := performRequest(t, router, http.MethodPost, "/users", nil)

	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(provisioned.ID), data["id"])
	assert.Equal(t, "AGENT", data["role"], "the provisioned role wins over the token claim")
	assert.Equal(t, "auth0|dana", data["auth0Id"])

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var linked models.User
	require.NoError(t, db.Where("auth0_id = ?", "auth0|dana").First(&linked).Error)
	assert.Equal(t, provisioned.ID, linked.ID)
}

func TestCreateUser_UnverifiedEmailDoesNotLinkProvisionedAccount(t *testing.T) {
	db := setupTestDB(t)
	hash := "$2a$10$abcdefghijklmnopqrstuv"
	provisioned := models.User{Name: "Ada Admin", Email: "ada@example.com", Role: models.RoleAdmin, Password: &hash}
	require.NoError(t, db.Create(&provisioned).Error)

	useMockAuth0(t, map[string]*services.Auth0UserInfo{
		"token-mallory": {Sub: "auth0|mallory", Email: "Ada@Example.com", EmailVerified: false, Name: "Mallory"},
	})

	router := setupTestRouter()
	router.POST("/users", mockAuthMiddleware("auth0|mallory", "USER", "token-mallory"), CreateUser)
	w, response := performRequest(t, router, http.MethodPost, "/users", nil)

	require.Equal(t, http.StatusConflict, w.Code, "Response body: %s", w.Body.String())
	assert.Equal(t, "USER_EXISTS", errorCode(response))

	var stored models.User
	require.NoError(t, db.First(&stored, provisioned.ID).Error)
	assert.Nil(t, stored.Auth0ID)
	assert.Equal(t, models.RoleAdmin, stored.Role)

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestGetMyProfile(t *testing.T) {
	db := setupTestDB(t)
	user := createUser(t, db, "profile", models.RoleAgent)

	router := newRouter(http.MethodGet, "/users/me", user, GetMyProfile)
	w, response := performRequest(t, router, http.MethodGet, "/users/me", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, user.Email, data["email"])
	assert.Equal(t, "AGENT", data["role"])

	router = setupTestRouter()
	router.GET("/users/me", mockAuthMiddleware("auth0|nonexistent", "USER", "token"), GetMyProfile)
	w, response = performRequest(t, router, http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", errorCode(response))
}

func TestUpdateMyProfile(t *testing.T) {
	db := setupTestDB(t)
	user := createUser(t, db, "original", models.RoleUser)
	other := createUser(t, db, "other", models.RoleUser)

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedCode   string
		expectedName   string
		expectedEmail  string
	}{
		{
			name:           "Update name only",
			requestBody:    map[string]interface{}{"name": "Updated Name"},
			expectedStatus: http.StatusOK,
			expectedName:   "Updated Name",
			expectedEmail:  user.Email,
		},
		{
			name:           "Update email",
			requestBody:    map[string]interface{}{"email": "updated@example.com"},
			expectedStatus: http.StatusOK,
			expectedName:   "Updated Name",
			expectedEmail:  "updated@example.com",
		},
		{
			name:           "Empty update returns current profile",
			requestBody:    map[string]interface{}{},
			expectedStatus: http.StatusOK,
			expectedName:   "Updated Name",
			expectedEmail:  "updated@example.com",
		},
		{
			name:           "Invalid email",
			requestBody:    map[string]interface{}{"email": "not-an-email"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "Email taken by another user",
			requestBody:    map[string]interface{}{"email": other.Email},
			expectedStatus: http.StatusConflict,
			expectedCode:   "EMAIL_EXISTS",
		},
	}

	// Cases run in order against the same profile
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(http.MethodPut, "/users/me", user, UpdateMyProfile)
			w, response := performRequest(t, router, http.MethodPut, "/users/me", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code, "Response body: %s", w.Body.String())
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(response))
				return
			}
			data := response["data"].(map[string]interface{})
			assert.Equal(t, tt.expectedName, data["name"])
			assert.Equal(t, tt.expectedEmail, data["email"])
		})
	}
}

func TestListUsers(t *testing.T) {
	db := setupTestDB(t)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	createUser(t, db, "alpha-agent", models.RoleAgent)
	createUser(t, db, "beta-agent", models.RoleAgent)
	createUser(t, db, "sender", models.RoleUser)

	router := newRouter(http.MethodGet, "/users", admin, ListUsers)

	w, response := performRequest(t, router, http.MethodGet, "/users?role=agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	agents := response["data"].([]interface{})
	require.Len(t, agents, 2)
	assert.Equal(t, "alpha-agent", agents[0].(map[string]interface{})["name"])

	w, response = performRequest(t, router, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, response["data"].([]interface{}), 4)

	w, response = performRequest(t, router, http.MethodGet, "/users?role=pilot", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ROLE", errorCode(response))
}

func TestProvisionUser(t *testing.T) {
	db := setupTestDB(t)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	router := newRouter(http.MethodPost, "/users/provision", admin, ProvisionUser)

	w, response := performRequest(t, router, http.MethodPost, "/users/provision", map[string]interface{}{
		"name":     "Dana Driver",
		"email":    "Dana@Example.com",
		"role":     "agent",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, w.Code, "Response body: %s", w.Body.String())
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "dana@example.com", data["email"])
	assert.Equal(t, "AGENT", data["role"])
	assert.NotContains(t, data, "password")
	assert.NotContains(t, data, "auth0Id")

	var stored models.User
	require.NoError(t, db.Where("email = ?", "dana@example.com").First(&stored).Error)
	require.NotNil(t, stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*stored.Password), []byte("correct-horse")))

	errorCases := []struct {
		name         string
		body         map[string]interface{}
		expectedCode string
		status       int
	}{
		{"Duplicate email", map[string]interface{}{"name": "D", "email": "dana@example.com", "role": "USER", "password": "long-enough"}, "USER_EXISTS", http.StatusConflict},
		{"Short password", map[string]interface{}{"name": "E", "email": "e@example.com", "role": "USER", "password": "short"}, "WEAK_PASSWORD", http.StatusBadRequest},
		{"Unknown role", map[string]interface{}{"name": "F", "email": "f@example.com", "role": "pilot", "password": "long-enough"}, "INVALID_ROLE", http.StatusBadRequest},
		{"Missing email", map[string]interface{}{"name": "G", "role": "USER", "password": "long-enough"}, "VALIDATION_ERROR", http.StatusBadRequest},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			w, response := performRequest(t, router, http.MethodPost, "/users/provision", tc.body)
			assert.Equal(t, tc.status, w.Code, "Response body: %s", w.Body.String())
			assert.Equal(t, tc.expectedCode, errorCode(response))
		})
	}
}

func TestCreateUser_MissingContext(t *testing.T) {
	setupTestDB(t)
	router := setupTestRouter()
	router.POST("/users", CreateUser)

	req := httptest.NewRequest(http.MethodPost, "/users", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
