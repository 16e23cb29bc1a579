package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	sdkjsonrpc "github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"toolhub/internal/audit"
	"toolhub/internal/mcp"
)

var logger = xlog.NewPackageLogger("toolhub", "provider")

const (
	codeUnauthenticated = -32001
	codeForbidden       = -32002
)

func RegisterSDKTools(server *sdkmcp.Server, reg *ToolRegistry, ctx ToolContext) ([]string, error) {
	if server == nil || reg == nil {
		return nil, errors.New("server and registry are required")
	}
	toolNames := reg.Names()
	for _, spec := range reg.Specs() {
		schema := spec.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		tool := &sdkmcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: schema,
		}
		server.AddTool(tool, toolHandler(spec, ctx))
	}
	return toolNames, nil
}

func toolHandler(spec ToolSpec, ctx ToolContext) sdkmcp.ToolHandler {
	return func(callCtx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		started := time.Now()
		args := map[string]any{}
		if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, &sdkjsonrpc.Error{Code: sdkjsonrpc.CodeInvalidParams, Message: fmt.Sprintf("invalid arguments: %v", err)}
			}
			if args == nil {
				args = map[string]any{}
			}
		}

		user, err := ctx.Policy.Authenticate(apiKeyFromRequest(req))
		if err != nil {
			logAudit(ctx, spec, "unknown", args, started, audit.OutcomeRejected, err)
			return nil, &sdkjsonrpc.Error{Code: codeUnauthenticated, Message: err.Error()}
		}
		if err := ctx.Policy.AuthorizeTool(user, spec.ToolsetID, spec.Name); err != nil {
			logAudit(ctx, spec, user.ID, args, started, audit.OutcomeRejected, err)
			return nil, &sdkjsonrpc.Error{Code: codeForbidden, Message: err.Error()}
		}

		execCtx, cancel := ctx.Timeouts.WithTimeout(callCtx, spec.Name)
		result, toolErr := spec.Handler(execCtx, ToolRequest{Arguments: args, User: user, Context: ctx})
		cancel()
		outcome := audit.OutcomeSuccess
		if toolErr != nil {
			outcome = audit.OutcomeToolError
			logger.ContextKV(callCtx, xlog.DEBUG,
				"reason", "tool_error",
				"tool", spec.Name,
				"err", toolErr.Error(),
			)
		}
		logAudit(ctx, spec, user.ID, args, started, outcome, toolErr)

		return buildCallToolResult(result, toolErr), nil
	}
}

func buildCallToolResult(result ToolResult, toolErr error) *sdkmcp.CallToolResult {
	res := &sdkmcp.CallToolResult{}
	if toolErr != nil {
		res.IsError = true
		res.StructuredContent = mcp.BuildErrorEnvelope(toolErr, result.Data)
		res.Content = []sdkmcp.Content{&sdkmcp.TextContent{Text: toolErr.Error()}}
		return res
	}

	switch {
	case result.Data != nil:
		res.StructuredContent = result.Data
		dataJSON, err := json.Marshal(result.Data)
		if err != nil {
			res.Content = []sdkmcp.Content{&sdkmcp.TextContent{Text: fmt.Sprintf("%v", result.Data)}}
		} else {
			res.Content = []sdkmcp.Content{&sdkmcp.TextContent{Text: string(dataJSON)}}
		}
	default:
		res.Content = []sdkmcp.Content{&sdkmcp.TextContent{Text: result.Text}}
	}
	return res
}

func apiKeyFromRequest(req *sdkmcp.CallToolRequest) string {
	if req == nil {
		return ""
	}
	if req.Params != nil {
		if value := apiKeyFromMeta(req.Params.Meta); value != "" {
			return value
		}
	}
	if req.Extra != nil && req.Extra.Header != nil {
		if value := strings.TrimSpace(req.Extra.Header.Get("X-Api-Key")); value != "" {
			return value
		}
		authHeader := strings.TrimSpace(req.Extra.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			return strings.TrimSpace(authHeader[len("bearer "):])
		}
	}
	return ""
}

func apiKeyFromMeta(meta map[string]any) string {
	if meta == nil {
		return ""
	}
	if value, ok := meta["apiKey"].(string); ok {
		return value
	}
	if auth, ok := meta["auth"].(map[string]any); ok {
		if value, ok := auth["apiKey"].(string); ok {
			return value
		}
	}
	return ""
}

func logAudit(ctx ToolContext, spec ToolSpec, userID string, args map[string]any, started time.Time, outcome string, err error) {
	if ctx.Audit == nil {
		return
	}
	event := audit.Event{
		Timestamp:  started.UTC(),
		CallID:     uuid.NewString(),
		User:       userID,
		Tool:       spec.Name,
		Toolset:    spec.ToolsetID,
		Outcome:    outcome,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if ctx.Redactor != nil {
		event.Arguments = ctx.Redactor.RedactMap(args)
	}
	if err != nil {
		event.Error = err.Error()
	}
	ctx.Audit.Log(event)
}
