package procedural

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/gormdb"
	"github.com/misteriosai/agent-memory/internal/memory"
	"github.com/misteriosai/agent-memory/internal/model"
	"github.com/misteriosai/agent-memory/internal/plugin/trace/gormstore"
	registrytrace "github.com/misteriosai/agent-memory/internal/registry/trace"
	"github.com/misteriosai/agent-memory/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

func (brokenStore) Name() string { return "broken" }
func (brokenStore) Close() error { return nil }
func (brokenStore) Insert(context.Context, model.ProceduralTrace) error {
	return errors.New("disk full")
}
func (brokenStore) ListByTask(context.Context, string, string, int) ([]model.ProceduralTrace, error) {
	return nil, errors.New("disk full")
}

func newRouter(t *testing.T, store registrytrace.TraceStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if store == nil {
		ctx := context.Background()
		db, err := gormdb.OpenSQLite(ctx, nil, filepath.Join(t.TempDir(), "traces.db"))
		require.NoError(t, err)
		require.NoError(t, gormstore.Migrate(ctx, db, gormstore.SQLite))
		s := gormstore.New(db, gormstore.SQLite)
		t.Cleanup(func() { _ = s.Close() })
		store = s
	}
	cfg := config.DefaultConfig()
	svc := service.NewWithBackends(&cfg, nil, nil, store)
	r := gin.New()
	require.NoError(t, MountRoutes(r, svc))
	return r
}

func postStep(t *testing.T, r *gin.Engine, step memory.Step) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(step)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/memory/procedural/steps", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLogStepThenList(t *testing.T) {
	r := newRouter(t, nil)

	rec := postStep(t, r, memory.Step{
		UserID:     "u1",
		AgentID:    "supervisor",
		TaskID:     "t-1",
		Step:       0,
		Input:      "run",
		Output:     "ok",
		ToolsUsed:  map[string]any{"search": true},
		DurationMS: 12,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var logged struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logged))
	assert.NotEmpty(t, logged.ID)

	req := httptest.NewRequest(http.MethodGet, "/v1/memory/procedural/tasks/t-1?user_id=u1&limit=10", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Traces []model.ProceduralTrace `json:"traces"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Traces, 1)
	got := listed.Traces[0]
	assert.Equal(t, logged.ID, got.ID.String())
	assert.Equal(t, "t-1", got.TaskID)
	assert.Equal(t, 0, got.Step)
	assert.Equal(t, "ok", got.OutputText)
	assert.Equal(t, true, got.ToolsUsed["search"])
	assert.EqualValues(t, 12, got.DurationMS)
}

func TestList_UnknownTaskIsEmpty(t *testing.T) {
	r := newRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/memory/procedural/tasks/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"traces":[]}`, rec.Body.String())
}

func TestList_BadLimit(t *testing.T) {
	r := newRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/memory/procedural/tasks/t-1?limit=ten", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreFailure(t *testing.T) {
	r := newRouter(t, brokenStore{})

	rec := postStep(t, r, memory.Step{TaskID: "t-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk full")

	req := httptest.NewRequest(http.MethodGet, "/v1/memory/procedural/tasks/t-1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
