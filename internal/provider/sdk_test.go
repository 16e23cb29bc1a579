package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	sdkjsonrpc "github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"toolhub/internal/audit"
	"toolhub/internal/config"
	"toolhub/internal/mcp"
	"toolhub/internal/policy"
	"toolhub/internal/redact"
)

func TestAPIKeyFromMeta(t *testing.T) {
	meta := map[string]any{"apiKey": "abc"}
	if apiKeyFromMeta(meta) != "abc" {
		t.Fatalf("expected api key from meta")
	}
	meta = map[string]any{"auth": map[string]any{"apiKey": "def"}}
	if apiKeyFromMeta(meta) != "def" {
		t.Fatalf("expected api key from auth")
	}
}

func TestAPIKeyFromRequest(t *testing.T) {
	req := &sdkmcp.CallToolRequest{Params: &sdkmcp.CallToolParamsRaw{Meta: map[string]any{"apiKey": "xyz"}}}
	if apiKeyFromRequest(req) != "xyz" {
		t.Fatalf("expected api key from request meta")
	}

	req.Extra = &sdkmcp.RequestExtra{Header: http.Header{"X-Api-Key": []string{"header-key"}}}
	if apiKeyFromRequest(req) != "xyz" {
		t.Fatalf("expected meta to win over header")
	}

	req = &sdkmcp.CallToolRequest{Extra: &sdkmcp.RequestExtra{Header: http.Header{"Authorization": []string{"Bearer token"}}}}
	if apiKeyFromRequest(req) != "token" {
		t.Fatalf("expected bearer token from header")
	}

	if apiKeyFromRequest(nil) != "" {
		t.Fatalf("expected empty api key for nil request")
	}
}

func TestRegisterSDKToolsAndToolHandler(t *testing.T) {
	cfg := config.DefaultConfig()
	reg := NewRegistry(&cfg)
	var got map[string]any
	spec := ToolSpec{
		Name:      "echo",
		ToolsetID: "text",
		InputSchema: map[string]any{
			"type": "object",
		},
		Handler: func(ctx context.Context, req ToolRequest) (ToolResult, error) {
			got = req.Arguments
			return ToolResult{Text: "hi"}, nil
		},
	}
	_ = reg.Add(spec)
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "toolhub", Version: "test"}, nil)
	toolCtx := ToolContext{
		Config:   &cfg,
		Policy:   policy.NewAuthorizer(),
		Redactor: redact.New(),
		Audit:    audit.NewLogger(io.Discard),
	}
	tools, err := RegisterSDKTools(server, reg, toolCtx)
	if err != nil {
		t.Fatalf("register tools: %v", err)
	}
	if len(tools) != 1 || tools[0] != "echo" {
		t.Fatalf("unexpected tools list: %#v", tools)
	}

	handler := toolHandler(spec, toolCtx)
	args, _ := json.Marshal(map[string]any{"text": "hi"})
	req := &sdkmcp.CallToolRequest{Params: &sdkmcp.CallToolParamsRaw{Name: "echo", Arguments: args}}
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got["text"] != "hi" {
		t.Fatalf("expected handler to receive arguments, got %#v", got)
	}
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	if !ok || text.Text != "hi" {
		t.Fatalf("unexpected content: %#v", res.Content)
	}
}

func TestRegisterSDKToolsNilArgs(t *testing.T) {
	if _, err := RegisterSDKTools(nil, nil, ToolContext{}); err == nil {
		t.Fatalf("expected error for nil server/registry")
	}
}

func TestBuildCallToolResultData(t *testing.T) {
	out := buildCallToolResult(ToolResult{Data: map[string]any{"sum": 3}}, nil)
	if out.StructuredContent == nil {
		t.Fatalf("expected structured content")
	}
	text := out.Content[0].(*sdkmcp.TextContent)
	if text.Text != `{"sum":3}` {
		t.Fatalf("unexpected text content: %s", text.Text)
	}
}

func TestBuildCallToolResultError(t *testing.T) {
	out := buildCallToolResult(ToolResult{Data: map[string]any{"hint": "test"}}, errors.New("boom"))
	if !out.IsError {
		t.Fatalf("expected error result")
	}
	payload, ok := out.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("expected map content")
	}
	if _, ok := payload["error"]; !ok {
		t.Fatalf("expected error envelope")
	}
	if _, ok := payload["details"]; !ok {
		t.Fatalf("expected details in envelope")
	}
}

func TestBuildCallToolResultFallbacks(t *testing.T) {
	out := buildCallToolResult(ToolResult{}, nil)
	if len(out.Content) != 1 {
		t.Fatalf("expected content for empty result")
	}
	out = buildCallToolResult(ToolResult{Data: map[string]any{"bad": func() {}}}, nil)
	if len(out.Content) != 1 {
		t.Fatalf("expected content fallback for marshal error")
	}
}

func TestToolHandlerInvalidArgs(t *testing.T) {
	cfg := config.DefaultConfig()
	spec := ToolSpec{Name: "echo", ToolsetID: "text", Handler: func(context.Context, ToolRequest) (ToolResult, error) {
		return ToolResult{}, nil
	}}
	handler := toolHandler(spec, ToolContext{Config: &cfg, Policy: policy.NewAuthorizer()})
	req := &sdkmcp.CallToolRequest{Params: &sdkmcp.CallToolParamsRaw{Name: "echo", Arguments: []byte("{")}}
	_, err := handler(context.Background(), req)
	if err == nil {
		t.Fatalf("expected error for invalid args")
	}
	if _, ok := err.(*sdkjsonrpc.Error); !ok {
		t.Fatalf("expected jsonrpc error, got %T", err)
	}
}

func TestToolHandlerErrorResult(t *testing.T) {
	spec := ToolSpec{Name: "sum", ToolsetID: "math", Handler: func(context.Context, ToolRequest) (ToolResult, error) {
		return ToolResult{}, errors.New("numbers required")
	}}
	handler := toolHandler(spec, ToolContext{Audit: audit.NewLogger(io.Discard)})
	result, err := handler(context.Background(), &sdkmcp.CallToolRequest{Params: &sdkmcp.CallToolParamsRaw{Name: "sum"}})
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatalf("expected error result")
	}
}

func TestToolHandlerRejectsUnknownKey(t *testing.T) {
	called := false
	spec := ToolSpec{Name: "echo", ToolsetID: "text", Handler: func(context.Context, ToolRequest) (ToolResult, error) {
		called = true
		return ToolResult{}, nil
	}}
	var buf bytes.Buffer
	auth := policy.NewAuthorizer(policy.Key{Secret: "good", User: policy.User{ID: "ci", AllowedToolsets: []string{"math"}}})
	handler := toolHandler(spec, ToolContext{Policy: auth, Audit: audit.NewLogger(&buf)})

	_, err := handler(context.Background(), &sdkmcp.CallToolRequest{Params: &sdkmcp.CallToolParamsRaw{Name: "echo", Meta: map[string]any{"apiKey": "bad"}}})
	var wire *sdkjsonrpc.Error
	if !errors.As(err, &wire) || wire.Code != codeUnauthenticated {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}

	_, err = handler(context.Background(), &sdkmcp.CallToolRequest{Params: &sdkmcp.CallToolParamsRaw{Name: "echo", Meta: map[string]any{"apiKey": "good"}}})
	if !errors.As(err, &wire) || wire.Code != codeForbidden {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	if called {
		t.Fatalf("handler must not run for rejected calls")
	}
	if strings.Count(buf.String(), `"outcome":"rejected"`) != 2 {
		t.Fatalf("expected two rejected audit events, got %s", buf.String())
	}
}

func TestToolHandlerAppliesTimeout(t *testing.T) {
	spec := ToolSpec{Name: "slow", Handler: func(ctx context.Context, _ ToolRequest) (ToolResult, error) {
		if _, ok := ctx.Deadline(); !ok {
			return ToolResult{}, errors.New("no deadline")
		}
		return ToolResult{Text: "ok"}, nil
	}}
	handler := toolHandler(spec, ToolContext{Timeouts: mcp.Timeouts{Default: time.Second}})
	res, err := handler(context.Background(), &sdkmcp.CallToolRequest{Params: &sdkmcp.CallToolParamsRaw{Name: "slow"}})
	if err != nil || res.IsError {
		t.Fatalf("expected deadline to be set, got %v %#v", err, res)
	}
}

func TestLogAuditWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	spec := ToolSpec{Name: "echo", ToolsetID: "text"}
	ctx := ToolContext{Audit: audit.NewLogger(&buf), Redactor: redact.New()}
	logAudit(ctx, spec, "local", map[string]any{"api_key": "x"}, time.Now(), audit.OutcomeSuccess, nil)
	out := buf.String()
	if !strings.Contains(out, `"tool":"echo"`) {
		t.Fatalf("expected audit output, got %s", out)
	}
	if !strings.Contains(out, `"api_key":"[REDACTED]"`) {
		t.Fatalf("expected redacted arguments, got %s", out)
	}
}
