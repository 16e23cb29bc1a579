package text

import (
	"context"
	"errors"
	"fmt"

	"toolhub/internal/provider"
)

type Toolset struct {
	ctx provider.ToolsetContext
}

func New() *Toolset {
	return &Toolset{}
}

func init() {
	provider.MustRegisterToolset("text", func() provider.Toolset {
		return New()
	})
}

func (t *Toolset) ID() string {
	return "text"
}

func (t *Toolset) Version() string {
	return "0.1.0"
}

func (t *Toolset) Init(ctx provider.ToolsetContext) error {
	t.ctx = ctx
	return nil
}

func (t *Toolset) Register(reg provider.Registry) error {
	tools := []provider.ToolSpec{
		{
			Name:        "echo",
			Description: "Return the input text unchanged.",
			ToolsetID:   t.ID(),
			InputSchema: schemaText(),
			Handler:     t.handleEcho,
		},
		{
			Name:        "reverse",
			Description: "Return the input text with its characters in reverse order.",
			ToolsetID:   t.ID(),
			InputSchema: schemaText(),
			Handler:     t.handleReverse,
		},
	}
	for _, tool := range tools {
		if err := reg.Add(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name, err)
		}
	}
	return nil
}

func schemaText() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "description": "Input text."},
		},
		"required": []string{"text"},
	}
}

func (t *Toolset) handleEcho(_ context.Context, req provider.ToolRequest) (provider.ToolResult, error) {
	text, err := textArg(req.Arguments)
	if err != nil {
		return provider.ToolResult{}, err
	}
	return provider.ToolResult{Text: text}, nil
}

func (t *Toolset) handleReverse(_ context.Context, req provider.ToolRequest) (provider.ToolResult, error) {
	text, err := textArg(req.Arguments)
	if err != nil {
		return provider.ToolResult{}, err
	}
	return provider.ToolResult{Text: reverse(text)}, nil
}

func textArg(args map[string]any) (string, error) {
	val, ok := args["text"]
	if !ok {
		return "", errors.New("text is required")
	}
	text, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("text must be a string, got %T", val)
	}
	return text, nil
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
