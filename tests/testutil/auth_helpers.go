package testutil

import (
	"net/http"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/delivery-tracking-api/middleware"
	"github.com/kendall-kelly/delivery-tracking-api/models"
)

// SubjectHeader carries the caller's Auth0 subject for HeaderAuth
const SubjectHeader = "X-Test-Subject"

// RoleHeader optionally carries the role claim for HeaderAuth
const RoleHeader = "X-Test-Role"

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, issuer, role string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  issuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Role: role,
		},
	}
}

// SetMockAuthContext populates the context the way EnsureValidToken does
func SetMockAuthContext(c *gin.Context, subject, role, accessToken string) {
	c.Set(middleware.ContextUserID, subject)
	c.Set(middleware.ContextAccessToken, accessToken)
	c.Set(middleware.ContextValidatedClaims, MockValidatedClaims(subject, "https://test.auth0.com/", role))
}

// HeaderAuth replaces the JWT validator in suites: identity comes from SubjectHeader and
// the access token is "token-" plus the subject.
func HeaderAuth(c *gin.Context) {
	subject := c.GetHeader(SubjectHeader)
	if subject == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Missing test subject",
			},
		})
		return
	}
	SetMockAuthContext(c, subject, c.GetHeader(RoleHeader), "token-"+subject)
	c.Next()
}

// Authenticate marks req as sent by user
func Authenticate(req *http.Request, user models.User) {
	if user.Auth0ID != nil {
		req.Header.Set(SubjectHeader, *user.Auth0ID)
	}
	req.Header.Set(RoleHeader, string(user.Role))
}
