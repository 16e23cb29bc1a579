package mcp

import (
	"context"
	"encoding/json"
	"sort"
)

// Tool is an invokable tool as seen by an agent loop.
type Tool interface {
	Name() string
	Definition(ctx context.Context) ToolDefinition
	Call(ctx context.Context, args string) (string, error)
}

// ToolDefinition is the function-calling view of a tool.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolSet is a name-indexed collection of tools. A ToolSet returned by
// Manager.CollectTools is owned by the caller.
type ToolSet struct {
	tools map[string]Tool
}

func NewToolSet() *ToolSet {
	return &ToolSet{tools: map[string]Tool{}}
}

// Add inserts tool, replacing any tool with the same name. It reports
// whether a previous entry was replaced.
func (s *ToolSet) Add(tool Tool) bool {
	_, replaced := s.tools[tool.Name()]
	s.tools[tool.Name()] = tool
	return replaced
}

func (s *ToolSet) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	tool, ok := s.tools[name]
	return tool, ok
}

func (s *ToolSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tools)
}

func (s *ToolSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the tools ordered by name.
func (s *ToolSet) Tools() []Tool {
	names := s.Names()
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, s.tools[name])
	}
	return out
}

// Definitions returns every tool definition ordered by name.
func (s *ToolSet) Definitions(ctx context.Context) []ToolDefinition {
	tools := s.Tools()
	defs := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, tool.Definition(ctx))
	}
	return defs
}

// Call dispatches to the named tool.
func (s *ToolSet) Call(ctx context.Context, name, args string) (string, error) {
	tool, ok := s.Get(name)
	if !ok {
		return "", &ToolCallError{Kind: KindNotFound, Tool: name}
	}
	return tool.Call(ctx, args)
}
