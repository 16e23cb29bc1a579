package mcp

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTool struct {
	name string
	out  string
}

func (s staticTool) Name() string { return s.name }

func (s staticTool) Definition(context.Context) ToolDefinition {
	return ToolDefinition{Name: s.name, Parameters: defaultSchema}
}

func (s staticTool) Call(context.Context, string) (string, error) { return s.out, nil }

func TestToolSet(t *testing.T) {
	set := NewToolSet()
	assert.False(t, set.Add(staticTool{name: "b", out: "first"}))
	assert.False(t, set.Add(staticTool{name: "a"}))
	assert.True(t, set.Add(staticTool{name: "b", out: "second"}), "same name replaces")

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"a", "b"}, set.Names())
	require.Len(t, set.Tools(), 2)
	assert.Equal(t, "a", set.Tools()[0].Name())
	assert.Equal(t, "b", set.Definitions(context.Background())[1].Name)

	out, err := set.Call(context.Background(), "b", "{}")
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	_, err = set.Call(context.Background(), "missing", "{}")
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestNilToolSet(t *testing.T) {
	var set *ToolSet
	assert.Equal(t, 0, set.Len())
	assert.Empty(t, set.Names())
	_, ok := set.Get("x")
	assert.False(t, ok)
}
