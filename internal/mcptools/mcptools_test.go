package mcptools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/misteriosai/agent-memory/internal/config"
	"github.com/misteriosai/agent-memory/internal/gormdb"
	"github.com/misteriosai/agent-memory/internal/plugin/embed/local"
	"github.com/misteriosai/agent-memory/internal/plugin/trace/gormstore"
	"github.com/misteriosai/agent-memory/internal/plugin/vector/chromem"
	"github.com/misteriosai/agent-memory/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 256

func newService(t *testing.T) *service.Memory {
	t.Helper()
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.VectorDimension = dim

	vectors, err := chromem.New("", dim)
	require.NoError(t, err)
	db, err := gormdb.OpenSQLite(ctx, nil, filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	require.NoError(t, gormstore.Migrate(ctx, db, gormstore.SQLite))
	traces := gormstore.New(db, gormstore.SQLite)

	svc := service.NewWithBackends(&cfg, local.New(dim), vectors, traces)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, r)
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("result has no text content")
	return ""
}

func decode(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &out))
	return out
}

func TestDefinitions(t *testing.T) {
	svc := newService(t)
	cases := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewRememberTool(svc).Definition(), "memory_remember", nil},
		{NewRecallTool(svc).Definition(), "memory_recall", []string{"query"}},
		{NewLogStepTool(svc).Definition(), "procedural_log_step", []string{"task_id"}},
		{NewListTaskTool(svc).Definition(), "procedural_list_task", []string{"task_id"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.name, tc.def.Name)
		assert.ElementsMatch(t, tc.required, tc.def.InputSchema.Required, tc.name)
	}
	assert.Contains(t, NewRememberTool(svc).Definition().InputSchema.Properties, "user_id")
}

func TestRememberThenRecall(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	res, err := NewRememberTool(svc).Handle(ctx, makeReq(map[string]any{
		"texts":    "hello world\n\nagent reply",
		"user_id":  "u1",
		"metadata": `{"source":"chat"}`,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.EqualValues(t, 2, decode(t, res)["stored"])

	res, err = NewRecallTool(svc).Handle(ctx, makeReq(map[string]any{
		"query":   "hello",
		"top_k":   float64(1),
		"user_id": "u1",
	}))
	require.NoError(t, err)
	results, ok := decode(t, res)["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	hit := results[0].(map[string]any)
	assert.Equal(t, "hello world", hit["text"])
	assert.Equal(t, "chat", hit["meta"].(map[string]any)["source"])
}

func TestRemember_RequiresText(t *testing.T) {
	svc := newService(t)
	res, err := NewRememberTool(svc).Handle(context.Background(), makeReq(map[string]any{"texts": "\n  \n"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRemember_RejectsBadMetadata(t *testing.T) {
	svc := newService(t)
	res, err := NewRememberTool(svc).Handle(context.Background(), makeReq(map[string]any{
		"text":     "hello",
		"metadata": "[1,2]",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestLogStepThenListTask(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for step := 0; step < 3; step++ {
		res, err := NewLogStepTool(svc).Handle(ctx, makeReq(map[string]any{
			"task_id":     "t-1",
			"step":        float64(step),
			"input":       "in",
			"output":      "out",
			"tools_used":  `{"search":true}`,
			"duration_ms": float64(5),
			"user_id":     "u1",
		}))
		require.NoError(t, err)
		require.False(t, res.IsError)
		assert.NotEmpty(t, decode(t, res)["id"])
	}

	res, err := NewListTaskTool(svc).Handle(ctx, makeReq(map[string]any{
		"task_id": "t-1",
		"limit":   float64(2),
	}))
	require.NoError(t, err)
	traces, ok := decode(t, res)["traces"].([]any)
	require.True(t, ok)
	require.Len(t, traces, 2)
	first := traces[0].(map[string]any)
	assert.Equal(t, "t-1", first["task_id"])
	assert.Equal(t, true, first["tools_used"].(map[string]any)["search"])
}

func TestLogStep_RequiresTaskAndObjectTools(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	res, err := NewLogStepTool(svc).Handle(ctx, makeReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = NewLogStepTool(svc).Handle(ctx, makeReq(map[string]any{"task_id": "t", "tools_used": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNewServer_ListsTools(t *testing.T) {
	s := NewServer(newService(t), "test")
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"memory_remember", "memory_recall", "procedural_log_step", "procedural_list_task"} {
		assert.Contains(t, string(raw), `"`+name+`"`)
	}
}
