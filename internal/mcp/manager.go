package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"toolhub/internal/audit"
)

var logger = xlog.NewPackageLogger("toolhub", "mcp")

// Manager owns the connected peers. The peer registry is fixed at Build
// time and safe for concurrent readers.
type Manager struct {
	peers map[string]Session
	names []string

	timeouts  Timeouts
	collision CollisionPolicy
	observer  *Observer
	audit     *audit.Logger
	repair    bool
	limit     int

	closeOnce sync.Once
	closeErr  error
}

// Peers returns the connected peer names in ascending order.
func (m *Manager) Peers() []string {
	return append([]string{}, m.names...)
}

func (m *Manager) Len() int {
	return len(m.peers)
}

func (m *Manager) Session(name string) (Session, bool) {
	s, ok := m.peers[name]
	return s, ok
}

type discovery struct {
	tools []*sdkmcp.Tool
	err   error
}

// CollectTools lists the tools of every peer concurrently and returns them
// as a fresh ToolSet. A peer that fails is logged and contributes nothing.
// Peers are merged in ascending name order; under CollisionLastWins a tool
// from a later peer replaces an earlier one with the same name.
func (m *Manager) CollectTools(ctx context.Context) *ToolSet {
	results := make([]discovery, len(m.names))
	var g errgroup.Group
	if m.limit > 0 {
		g.SetLimit(m.limit)
	}
	for i, name := range m.names {
		session := m.peers[name]
		g.Go(func() error {
			listCtx, cancel := m.timeouts.WithTimeout(ctx, name)
			defer cancel()

			started := time.Now()
			tools, err := listAllTools(listCtx, session)
			m.observer.ObserveDiscovery(name, len(tools), time.Since(started), err)
			if err != nil {
				err = &DiscoveryError{Peer: name, Err: err}
				logger.ContextKV(ctx, xlog.ERROR,
					"reason", "list_tools",
					"peer", name,
					"err", err.Error(),
				)
			}
			results[i] = discovery{tools: tools, err: err}
			return nil
		})
	}
	_ = g.Wait()

	set := NewToolSet()
	for i, name := range m.names {
		if results[i].err != nil {
			continue
		}
		for _, def := range results[i].tools {
			if def == nil || def.Name == "" {
				logger.ContextKV(ctx, xlog.WARNING, "reason", "unnamed_tool", "peer", name)
				continue
			}
			tool := m.adapt(name, def)
			if prev, ok := set.Get(tool.Name()); ok {
				prevPeer := ""
				if rt, ok := prev.(*RemoteTool); ok {
					prevPeer = rt.Peer()
				}
				logger.ContextKV(ctx, xlog.WARNING,
					"reason", "tool_collision",
					"tool", tool.Name(),
					"kept_peer", name,
					"dropped_peer", prevPeer,
				)
			}
			set.Add(tool)
		}
	}
	return set
}

func (m *Manager) adapt(peer string, def *sdkmcp.Tool) *RemoteTool {
	tool := NewRemoteTool(peer, def, m.peers[peer])
	if m.collision == CollisionPrefix {
		tool.name = peer + prefixSeparator + def.Name
	}
	tool.observer = m.observer
	tool.audit = m.audit
	tool.repair = m.repair
	return tool
}

// listAllTools follows pagination cursors until the peer reports no more.
func listAllTools(ctx context.Context, s Session) ([]*sdkmcp.Tool, error) {
	var tools []*sdkmcp.Tool
	params := &sdkmcp.ListToolsParams{}
	seen := map[string]bool{}
	for {
		res, err := s.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, errors.New("empty tools/list result")
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		if seen[res.NextCursor] {
			return nil, errors.Newf("peer repeated cursor %q", res.NextCursor)
		}
		seen[res.NextCursor] = true
		params = &sdkmcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

// Close closes every session, terminating stdio peers. It is safe to call
// more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		errs := make([]error, len(m.names))
		var g errgroup.Group
		for i, name := range m.names {
			session := m.peers[name]
			g.Go(func() error {
				if err := session.Close(); err != nil {
					errs[i] = errors.Wrapf(err, "close peer %q", name)
				}
				return nil
			})
		}
		_ = g.Wait()
		for _, err := range errs {
			m.closeErr = errors.CombineErrors(m.closeErr, err)
		}
	})
	return m.closeErr
}
