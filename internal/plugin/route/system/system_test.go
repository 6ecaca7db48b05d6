package system

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadyFollowsService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultConfig()
	svc := service.NewWithBackends(&cfg, nil, nil, nil)
	r := gin.New()
	require.NoError(t, MountRoutes(r, svc))

	assert.Equal(t, http.StatusOK, get(r, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/ready").Code)

	svc.MarkReady()
	assert.Equal(t, http.StatusOK, get(r, "/ready").Code)
	assert.Equal(t, http.StatusOK, get(r, "/metrics").Code)
}
