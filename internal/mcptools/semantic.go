package mcptools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/misteriosai/agent-memory/internal/service"
)

// RememberTool handles memory_remember.
type RememberTool struct {
	svc *service.Memory
}

// NewRememberTool creates a RememberTool.
func NewRememberTool(svc *service.Memory) *RememberTool {
	return &RememberTool{svc: svc}
}

// Definition returns the MCP tool definition for memory_remember.
func (t *RememberTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Store texts in long-term semantic memory. Long texts are truncated and chunked before embedding."),
		mcp.WithString("texts", mcp.Description("Texts to remember, one per line")),
		mcp.WithString("text", mcp.Description("A single text to remember; may span lines")),
		mcp.WithString("metadata", mcp.Description("JSON object attached to every stored chunk")),
	}
	return mcp.NewTool("memory_remember", append(opts, scopeOptions()...)...)
}

// Handle processes the memory_remember tool call.
func (t *RememberTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var texts []string
	for _, line := range strings.Split(req.GetString("texts", ""), "\n") {
		if strings.TrimSpace(line) != "" {
			texts = append(texts, line)
		}
	}
	if text := req.GetString("text", ""); strings.TrimSpace(text) != "" {
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return mcp.NewToolResultError("'texts' or 'text' is required"), nil
	}
	meta, err := objectArg(req, "metadata")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var metadatas []map[string]any
	if meta != nil {
		metadatas = make([]map[string]any, len(texts))
		for i := range metadatas {
			metadatas[i] = meta
		}
	}

	out := t.svc.Semantic.Remember(ctx, texts, scopeArg(req), metadatas)
	res := map[string]any{"stored": out.Value}
	switch {
	case out.Skipped && !t.svc.Semantic.Enabled():
		res["warning"] = "semantic memory is disabled"
	case out.Err != nil:
		res["warning"] = out.Err.Error()
	}
	return jsonResult(res)
}

// RecallTool handles memory_recall.
type RecallTool struct {
	svc *service.Memory
}

// NewRecallTool creates a RecallTool.
func NewRecallTool(svc *service.Memory) *RecallTool {
	return &RecallTool{svc: svc}
}

// Definition returns the MCP tool definition for memory_recall.
func (t *RecallTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Find the stored memories most similar to a query, most similar first."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to look for")),
		mcp.WithNumber("top_k", mcp.Description("Maximum number of results (default from server config)")),
	}
	return mcp.NewTool("memory_recall", append(opts, scopeOptions()...)...)
}

// Handle processes the memory_recall tool call.
func (t *RecallTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	out := t.svc.Semantic.Retrieve(ctx, query, scopeArg(req), intArg(req, "top_k", 0))
	res := map[string]any{"results": out.Value}
	if out.Err != nil {
		res["warning"] = out.Err.Error()
	}
	return jsonResult(res)
}
