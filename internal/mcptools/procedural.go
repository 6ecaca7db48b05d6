package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/misteriosai/agent-memory/internal/memory"
	"github.com/misteriosai/agent-memory/internal/service"
)

// LogStepTool handles procedural_log_step.
type LogStepTool struct {
	svc *service.Memory
}

// NewLogStepTool creates a LogStepTool.
func NewLogStepTool(svc *service.Memory) *LogStepTool {
	return &LogStepTool{svc: svc}
}

// Definition returns the MCP tool definition for procedural_log_step.
func (t *LogStepTool) Definition() mcp.Tool {
	return mcp.NewTool("procedural_log_step",
		mcp.WithDescription("Record one executed step of an agent task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task the step belongs to")),
		mcp.WithNumber("step", mcp.Description("Zero-based step index")),
		mcp.WithString("input", mcp.Description("Step input")),
		mcp.WithString("output", mcp.Description("Step output")),
		mcp.WithString("tools_used", mcp.Description("JSON object describing the tools the step used")),
		mcp.WithNumber("duration_ms", mcp.Description("Step wall time in milliseconds")),
		mcp.WithString("user_id", mcp.Description("User the task runs for")),
		mcp.WithString("agent_id", mcp.Description("Agent that ran the step")),
	)
}

// Handle processes the procedural_log_step tool call.
func (t *LogStepTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := req.GetString("task_id", "")
	if strings.TrimSpace(taskID) == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}
	tools, err := objectArg(req, "tools_used")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := t.svc.Procedural.LogStep(ctx, memory.Step{
		UserID:     req.GetString("user_id", ""),
		AgentID:    req.GetString("agent_id", ""),
		TaskID:     taskID,
		Step:       intArg(req, "step", 0),
		Input:      req.GetString("input", ""),
		Output:     req.GetString("output", ""),
		ToolsUsed:  tools,
		DurationMS: int64(intArg(req, "duration_ms", 0)),
	})
	switch {
	case out.Skipped:
		return jsonResult(map[string]any{"id": nil, "warning": "procedural memory is disabled"})
	case out.Err != nil:
		return jsonResult(map[string]any{"id": nil, "warning": out.Err.Error()})
	}
	return jsonResult(map[string]any{"id": out.Value.String()})
}

// ListTaskTool handles procedural_list_task.
type ListTaskTool struct {
	svc *service.Memory
}

// NewListTaskTool creates a ListTaskTool.
func NewListTaskTool(svc *service.Memory) *ListTaskTool {
	return &ListTaskTool{svc: svc}
}

// Definition returns the MCP tool definition for procedural_list_task.
func (t *ListTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("procedural_list_task",
		mcp.WithDescription("List the recorded steps of a task, newest first."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to list")),
		mcp.WithString("user_id", mcp.Description("Only steps recorded for this user")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of steps (default 50)")),
	)
}

// Handle processes the procedural_list_task tool call.
func (t *ListTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := req.GetString("task_id", "")
	if strings.TrimSpace(taskID) == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}
	traces, err := t.svc.Procedural.ListByTask(ctx, taskID, req.GetString("user_id", ""), intArg(req, "limit", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"traces": traces})
}
