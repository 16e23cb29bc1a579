package sdk

import (
	"context"

	"toolhub/internal/mcp"
	"toolhub/internal/policy"
	"toolhub/internal/provider"
	"toolhub/internal/redact"
)

// Client side: describing peers and collecting their tools.
type Descriptor = mcp.Descriptor

type TransportType = mcp.TransportType

const (
	TransportSSE        = mcp.TransportSSE
	TransportStreamable = mcp.TransportStreamable
	TransportStdio      = mcp.TransportStdio
)

func SSE(url string) Descriptor {
	return mcp.SSE(url)
}

func Streamable(url string) Descriptor {
	return mcp.Streamable(url)
}

func Stdio(command string, args []string, envs map[string]string) Descriptor {
	return mcp.Stdio(command, args, envs)
}

type Builder = mcp.Builder

type Manager = mcp.Manager

type Tool = mcp.Tool

type ToolSet = mcp.ToolSet

type ToolDefinition = mcp.ToolDefinition

type CollisionPolicy = mcp.CollisionPolicy

const (
	CollisionLastWins = mcp.CollisionLastWins
	CollisionPrefix   = mcp.CollisionPrefix
)

type Timeouts = mcp.Timeouts

func NewBuilder() Builder {
	return mcp.NewBuilder()
}

func DefaultBuilder() Builder {
	return mcp.DefaultBuilder()
}

// ValidatePeerName reports whether name is accepted as a peer name.
func ValidatePeerName(name string) error {
	return mcp.ValidatePeerName(name)
}

// CollectTools builds a manager for b, collects the tools of every reachable
// peer and returns both. The caller owns the manager and must close it.
func CollectTools(ctx context.Context, b Builder) (*Manager, *ToolSet) {
	manager := b.Build(ctx)
	return manager, manager.CollectTools(ctx)
}

// Errors returned by Tool.Call, matched with errors.Is.
var (
	ErrInvalidArguments = mcp.ErrInvalidArguments
	ErrRemoteFailure    = mcp.ErrRemoteFailure
	ErrToolNotFound     = mcp.ErrToolNotFound
)

type ToolCallError = mcp.ToolCallError

// Server side: toolsets served by "toolhub serve".
type Toolset = provider.Toolset

type ToolsetContext = provider.ToolsetContext

type ToolsetFactory = provider.ToolsetFactory

type ToolSpec = provider.ToolSpec

type ToolHandler = provider.ToolHandler

type ToolRequest = provider.ToolRequest

type ToolResult = provider.ToolResult

type Registry = provider.Registry

// Toolset registration for plugin discovery.
func RegisterToolset(id string, factory ToolsetFactory) error {
	return provider.RegisterToolset(id, factory)
}

func MustRegisterToolset(id string, factory ToolsetFactory) {
	provider.MustRegisterToolset(id, factory)
}

func RegisteredToolsets() []string {
	return provider.RegisteredToolsets()
}

type User = policy.User

type Redactor = redact.Redactor
