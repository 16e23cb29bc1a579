package math

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"toolhub/internal/provider"
)

type Toolset struct {
	ctx provider.ToolsetContext
}

func New() *Toolset {
	return &Toolset{}
}

func init() {
	provider.MustRegisterToolset("math", func() provider.Toolset {
		return New()
	})
}

func (t *Toolset) ID() string {
	return "math"
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
			Name:        "sum",
			Description: "Add a list of numbers.",
			ToolsetID:   t.ID(),
			InputSchema: schemaNumbers(),
			Handler:     t.handleSum,
		},
	}
	for _, tool := range tools {
		if err := reg.Add(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name, err)
		}
	}
	return nil
}

func schemaNumbers() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"numbers": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "number"},
			},
		},
		"required": []string{"numbers"},
	}
}

func (t *Toolset) handleSum(_ context.Context, req provider.ToolRequest) (provider.ToolResult, error) {
	numbers, err := numbersArg(req.Arguments)
	if err != nil {
		return provider.ToolResult{}, err
	}
	total := 0.0
	for _, n := range numbers {
		total += n
	}
	return provider.ToolResult{Text: strconv.FormatFloat(total, 'f', -1, 64)}, nil
}

func numbersArg(args map[string]any) ([]float64, error) {
	val, ok := args["numbers"]
	if !ok {
		return nil, errors.New("numbers is required")
	}
	list, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("numbers must be an array, got %T", val)
	}
	out := make([]float64, 0, len(list))
	for i, item := range list {
		n, err := toFloat(item)
		if err != nil {
			return nil, fmt.Errorf("numbers[%d]: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func toFloat(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("not a number: %v", val)
	}
}
