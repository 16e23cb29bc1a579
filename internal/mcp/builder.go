package mcp

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"golang.org/x/sync/errgroup"

	"toolhub/internal/audit"
)

const (
	DefaultPeerName = "default-mcp"
	DefaultPeerURL  = "http://localhost:8080/mcp"
)

// DialFunc opens a session from a descriptor.
type DialFunc func(ctx context.Context, d Descriptor) (Session, error)

// CollisionPolicy decides how tools with the same name on different peers
// are exposed.
type CollisionPolicy string

const (
	// CollisionLastWins keeps the tool from the peer whose name sorts last.
	CollisionLastWins CollisionPolicy = "last_wins"
	// CollisionPrefix exposes every tool as <peer>__<tool>.
	CollisionPrefix CollisionPolicy = "prefix"
)

const prefixSeparator = "__"

// ValidatePeerName reports whether name can identify a peer. Names may not
// contain the prefix separator, so prefixed tool names stay unambiguous.
func ValidatePeerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("peer name is empty")
	}
	if strings.Contains(name, prefixSeparator) {
		return errors.WithHint(
			errors.Newf("peer name %q contains %q", name, prefixSeparator),
			"Use single underscores or dashes in peer names.",
		)
	}
	return nil
}

func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CollisionLastWins:
		return CollisionLastWins, nil
	case CollisionPrefix:
		return CollisionPrefix, nil
	}
	return "", errors.Newf("unknown collision policy %q", s)
}

type peerEntry struct {
	name string
	desc Descriptor
}

// Builder accumulates named descriptors. Every method returns a new Builder
// and leaves the receiver unchanged.
type Builder struct {
	entries   []peerEntry
	dial      DialFunc
	timeouts  Timeouts
	collision CollisionPolicy
	observer  *Observer
	audit     *audit.Logger
	repair    bool
	limit     int
}

// NewBuilder returns an empty Builder.
func NewBuilder() Builder {
	return Builder{collision: CollisionLastWins}
}

// DefaultBuilder returns a Builder holding the local default peer.
func DefaultBuilder() Builder {
	return NewBuilder().AddSSE(DefaultPeerName, DefaultPeerURL)
}

func (b Builder) Add(name string, d Descriptor) Builder {
	out := b
	out.entries = append(slices.Clone(b.entries), peerEntry{name: name, desc: d})
	return out
}

func (b Builder) AddSSE(name, url string) Builder {
	return b.Add(name, SSE(url))
}

func (b Builder) AddStreamable(name, url string) Builder {
	return b.Add(name, Streamable(url))
}

func (b Builder) AddStdio(name, command string, args []string, envs map[string]string) Builder {
	return b.Add(name, Stdio(command, args, envs))
}

// Descriptor returns the descriptor Build would use for name.
func (b Builder) Descriptor(name string) (Descriptor, bool) {
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].name == name {
			return b.entries[i].desc, true
		}
	}
	return Descriptor{}, false
}

// Peers returns the configured names in insertion order, duplicates included.
func (b Builder) Peers() []string {
	names := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		names = append(names, e.name)
	}
	return names
}

func (b Builder) WithDialer(d Dialer) Builder {
	b.dial = d.Dial
	return b
}

func (b Builder) WithDialFunc(fn DialFunc) Builder {
	b.dial = fn
	return b
}

func (b Builder) WithTimeouts(t Timeouts) Builder {
	b.timeouts = t
	return b
}

func (b Builder) WithCollisionPolicy(p CollisionPolicy) Builder {
	b.collision = p
	return b
}

func (b Builder) WithObserver(o *Observer) Builder {
	b.observer = o
	return b
}

func (b Builder) WithAudit(l *audit.Logger) Builder {
	b.audit = l
	return b
}

// WithArgumentRepair enables best-effort repair of malformed JSON arguments.
func (b Builder) WithArgumentRepair(enabled bool) Builder {
	b.repair = enabled
	return b
}

// WithConcurrency caps the number of peers contacted at once. Zero or less
// means no cap.
func (b Builder) WithConcurrency(n int) Builder {
	b.limit = n
	return b
}

// Build connects to every peer concurrently and returns a Manager holding the
// peers that connected. A peer that fails, or whose name is rejected by
// ValidatePeerName, is logged and omitted; Build itself never fails. When a
// name was added more than once the last descriptor wins.
func (b Builder) Build(ctx context.Context) *Manager {
	entries := b.resolve()
	dial := b.dial
	if dial == nil {
		dial = Connect
	}

	sessions := make([]Session, len(entries))
	var g errgroup.Group
	if b.limit > 0 {
		g.SetLimit(b.limit)
	}
	for i, e := range entries {
		g.Go(func() error {
			connCtx, cancel := b.timeouts.WithTimeout(ctx, e.name)
			defer cancel()

			started := time.Now()
			s, err := safeDial(connCtx, dial, e.desc)
			if err == nil && s == nil {
				err = errors.New("dialer returned no session")
			}
			b.observer.ObserveConnect(e.name, e.desc.Type, time.Since(started), err)
			if err != nil {
				err = asConnectError(e, err)
				logger.KV(xlog.ERROR,
					"reason", "connect",
					"peer", e.name,
					"descriptor", e.desc.String(),
					"err", err.Error(),
				)
				return nil
			}
			logger.KV(xlog.INFO,
				"status", "connected",
				"peer", e.name,
				"transport", string(e.desc.Type),
			)
			sessions[i] = s
			return nil
		})
	}
	_ = g.Wait()

	m := &Manager{
		peers:     make(map[string]Session, len(entries)),
		timeouts:  b.timeouts,
		collision: b.collision,
		observer:  b.observer,
		audit:     b.audit,
		repair:    b.repair,
		limit:     b.limit,
	}
	for i, e := range entries {
		if sessions[i] == nil {
			continue
		}
		m.peers[e.name] = sessions[i]
		m.names = append(m.names, e.name)
	}
	return m
}

// resolve drops superseded duplicates and orders entries by name.
func (b Builder) resolve() []peerEntry {
	last := make(map[string]int, len(b.entries))
	for i, e := range b.entries {
		if prev, ok := last[e.name]; ok {
			logger.KV(xlog.WARNING,
				"reason", "duplicate_peer",
				"peer", e.name,
				"ignored", b.entries[prev].desc.String(),
			)
		}
		last[e.name] = i
	}
	out := make([]peerEntry, 0, len(last))
	for name, i := range last {
		if err := ValidatePeerName(name); err != nil {
			logger.KV(xlog.ERROR,
				"reason", "peer_name",
				"peer", name,
				"err", err.Error(),
			)
			continue
		}
		out = append(out, b.entries[i])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].name < out[j].name
	})
	return out
}

func safeDial(ctx context.Context, dial DialFunc, d Descriptor) (s Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = errors.Newf("dial panicked: %v", r)
		}
	}()
	return dial(ctx, d)
}

func asConnectError(e peerEntry, err error) error {
	var ce *ConnectError
	if errors.As(err, &ce) {
		if ce.Peer == e.name {
			return err
		}
		return &ConnectError{Peer: e.name, Type: ce.Type, Err: ce.Err}
	}
	return &ConnectError{Peer: e.name, Type: e.desc.Type, Err: err}
}
