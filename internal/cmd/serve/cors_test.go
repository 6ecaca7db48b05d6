package serve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsRouter(origins string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware(origins))
	router.POST("/v1/memory/semantic/search", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, map[string]bool{"*": true}, parseOrigins(""))
	assert.Equal(t, map[string]bool{"https://a.example": true, "http://b.example:3000": true},
		parseOrigins(" https://a.example/, http://b.example:3000 ,"))
}

func TestCorsMiddleware_AllowsConfiguredOrigin(t *testing.T) {
	router := corsRouter("https://example.com")

	req := httptest.NewRequest(http.MethodPost, "/v1/memory/semantic/search", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCorsMiddleware_IgnoresUnknownOrigin(t *testing.T) {
	router := corsRouter("https://example.com")

	req := httptest.NewRequest(http.MethodPost, "/v1/memory/semantic/search", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsMiddleware_WildcardPreflight(t *testing.T) {
	router := corsRouter("*")

	req := httptest.NewRequest(http.MethodOptions, "/v1/memory/semantic/search", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, corsAllowMethods, rec.Header().Get("Access-Control-Allow-Methods"))
}
