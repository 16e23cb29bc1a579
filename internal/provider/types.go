package provider

import (
	"context"

	"toolhub/internal/audit"
	"toolhub/internal/config"
	"toolhub/internal/mcp"
	"toolhub/internal/policy"
	"toolhub/internal/redact"
)

type ToolHandler func(ctx context.Context, req ToolRequest) (ToolResult, error)

type ToolSpec struct {
	Name        string
	Description string
	ToolsetID   string
	InputSchema map[string]any
	Handler     ToolHandler
}

type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type ToolRequest struct {
	Arguments map[string]any
	User      policy.User
	Context   ToolContext
}

// ToolResult is what a handler produces. Text, when set, becomes the single
// text block of the response; otherwise Data is sent as structured content.
type ToolResult struct {
	Text string
	Data any
}

type ToolContext struct {
	Config   *config.Config
	Policy   *policy.Authorizer
	Redactor *redact.Redactor
	Audit    *audit.Logger
	Timeouts mcp.Timeouts
	Registry Registry
}

type ToolsetContext = ToolContext
