package acceptance

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/delivery-tracking-api/models"
	"github.com/kendall-kelly/delivery-tracking-api/routes"
	"github.com/kendall-kelly/delivery-tracking-api/tests/testutil"
	"github.com/stretchr/testify/require"
)

// createRouter builds the API the way main does, with header-based test authentication
func createRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	routes.Register(router.Group("/api"), testutil.HeaderAuth)
	return router
}

// makeRequest sends a JSON request to baseURL as user; a nil user sends no identity
func makeRequest(t *testing.T, baseURL, method, path string, user *models.User, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		testutil.Authenticate(req, *user)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var responseData map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&responseData))
	return resp, responseData
}

func errorCode(response map[string]interface{}) string {
	errObj, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errObj["code"].(string)
	return code
}
