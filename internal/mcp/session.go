package mcp

//go:generate mockgen -source=session.go -destination=../../mocks/mockmcp/session_mock.gen.go -package mockmcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Session is a live, initialized connection to one peer.
// Implementations must be safe for concurrent use.
type Session interface {
	ListTools(ctx context.Context, params *sdkmcp.ListToolsParams) (*sdkmcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *sdkmcp.CallToolParams) (*sdkmcp.CallToolResult, error)
	Close() error
}
