// Package mcptools exposes the memory service as MCP tools.
//
// Each tool is a struct holding the service, with Definition returning the
// mcp.Tool schema and Handle serving a call. Memory failures are reported
// in the result text, never as protocol errors.
package mcptools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/misteriosai/agent-memory/internal/model"
	"github.com/misteriosai/agent-memory/internal/service"
)

// NewServer returns an MCP server with every memory tool registered.
func NewServer(svc *service.Memory, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"agent-memory",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Long-term semantic memory and procedural step traces for agents. "+
			"Use memory_remember to store facts, memory_recall to look them up, "+
			"procedural_log_step to record what a task step did and procedural_list_task to review a task."),
	)
	Register(s, svc)
	return s
}

// Register adds the memory tools to s.
func Register(s *server.MCPServer, svc *service.Memory) {
	remember := NewRememberTool(svc)
	s.AddTool(remember.Definition(), remember.Handle)

	recall := NewRecallTool(svc)
	s.AddTool(recall.Definition(), recall.Handle)

	logStep := NewLogStepTool(svc)
	s.AddTool(logStep.Definition(), logStep.Handle)

	listTask := NewListTaskTool(svc)
	s.AddTool(listTask.Definition(), listTask.Handle)
}

func scopeOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("user_id", mcp.Description("Owner of the memory")),
		mcp.WithString("agent_id", mcp.Description("Agent that produced the memory")),
		mcp.WithString("conversation_id", mcp.Description("Conversation the memory belongs to")),
	}
}

func scopeArg(req mcp.CallToolRequest) model.Scope {
	return model.Scope{
		UserID:         req.GetString("user_id", ""),
		AgentID:        req.GetString("agent_id", ""),
		ConversationID: req.GetString("conversation_id", ""),
	}
}

// intArg extracts an integer argument; JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return defaultVal
}

// objectArg accepts a JSON object either inline or encoded as a string.
func objectArg(req mcp.CallToolRequest, key string) (map[string]any, error) {
	switch v := req.GetArguments()[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("'%s' must be a JSON object: %w", key, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("'%s' must be a JSON object", key)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
