package testutil

import (
	"os"
	"testing"

	"github.com/kendall-kelly/delivery-tracking-api/config"
	"github.com/kendall-kelly/delivery-tracking-api/models"
	"github.com/kendall-kelly/delivery-tracking-api/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// RequireTestEnvironment fails the test unless GO_ENV=test, so suites never touch a real database.
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	if env := os.Getenv("GO_ENV"); env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test. Current GO_ENV=%q.", env)
	}
}

// SetTestEnvironment exports the variables config.Load needs for an offline test run
func SetTestEnvironment(t *testing.T) {
	t.Helper()

	vars := map[string]string{
		"GO_ENV":            "test",
		"AUTH0_DOMAIN":      "test.auth0.com",
		"AUTH0_AUDIENCE":    "https://api.test.com",
		"PORT":              "8080",
		"AWS_REGION":        "us-east-1",
		"AWS_S3_BUCKET":     "test-bucket",
		"TRANSITION_POLICY": config.TransitionPolicyStrict,
		"CACHE_TTL":         "1m",
		"REDIS_URL":         "",
	}
	for key, value := range vars {
		if err := os.Setenv(key, value); err != nil {
			t.Fatalf("Failed to set %s: %v", key, err)
		}
	}
}

// NewTestDB opens a migrated in-memory database and installs it as the global connection.
// Delivery cache and image service are reset so tests start from a clean slate.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get test database handle: %v", err)
	}
	// :memory: databases are per connection
	sqlDB.SetMaxOpenConns(1)

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	config.SetDB(db)
	services.SetDeliveryCache(nil)
	services.SetImageService(nil)
	return db
}

// CloseTestDB releases a database opened by NewTestDB
func CloseTestDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// CreateUser stores a profile whose Auth0 subject is "auth0|"+name
func CreateUser(t *testing.T, db *gorm.DB, name string, role models.Role) models.User {
	t.Helper()

	auth0ID := "auth0|" + name
	user := models.User{
		Auth0ID: &auth0ID,
		Name:    name,
		Email:   name + "@example.com",
		Role:    role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", name, err)
	}
	return user
}
