package mcp

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// fakeSession serves a fixed catalog, optionally paginated, and answers every
// call with the tool name it received.
type fakeSession struct {
	mu      sync.Mutex
	pages   [][]*sdkmcp.Tool
	cursors []string
	listErr error
	callErr error
	calls   []string
	closed  int
}

func newFakeSession(names ...string) *fakeSession {
	return &fakeSession{pages: [][]*sdkmcp.Tool{toolDefs(names...)}}
}

func toolDefs(names ...string) []*sdkmcp.Tool {
	out := make([]*sdkmcp.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, &sdkmcp.Tool{
			Name:        name,
			Description: name + " tool",
			InputSchema: map[string]any{"type": "object"},
		})
	}
	return out
}

func (s *fakeSession) ListTools(_ context.Context, params *sdkmcp.ListToolsParams) (*sdkmcp.ListToolsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	page := 0
	if params != nil && params.Cursor != "" {
		for i, c := range s.cursors {
			if c == params.Cursor {
				page = i + 1
			}
		}
	}
	res := &sdkmcp.ListToolsResult{Tools: s.pages[page]}
	if page < len(s.cursors) {
		res.NextCursor = s.cursors[page]
	}
	return res, nil
}

func (s *fakeSession) CallTool(_ context.Context, params *sdkmcp.CallToolParams) (*sdkmcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, params.Name)
	if s.callErr != nil {
		return nil, s.callErr
	}
	return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: params.Name}}}, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) setTools(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = [][]*sdkmcp.Tool{toolDefs(names...)}
	s.cursors = nil
}

// dialFake returns a DialFunc that resolves descriptors by URL.
func dialFake(sessions map[string]Session) DialFunc {
	return func(_ context.Context, d Descriptor) (Session, error) {
		s, ok := sessions[d.URL]
		if !ok {
			return nil, errors.Newf("dial %s: connection refused", d.URL)
		}
		return s, nil
	}
}
