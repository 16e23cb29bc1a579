package provider

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Toolset is a named group of tools a server can enable.
type Toolset interface {
	ID() string
	Version() string
	Init(ctx ToolsetContext) error
	Register(reg Registry) error
}

type ToolsetFactory func() Toolset

type toolsetRegistry struct {
	mu        sync.RWMutex
	factories map[string]ToolsetFactory
}

var registry = toolsetRegistry{factories: map[string]ToolsetFactory{}}

func RegisterToolset(id string, factory ToolsetFactory) error {
	if id == "" {
		return errors.New("toolset id required")
	}
	if factory == nil {
		return errors.New("toolset factory required")
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.factories[id]; exists {
		return errors.Newf("toolset %q already registered", id)
	}
	registry.factories[id] = factory
	return nil
}

func MustRegisterToolset(id string, factory ToolsetFactory) {
	if err := RegisterToolset(id, factory); err != nil {
		panic(err)
	}
}

func ToolsetFactoryFor(id string) (ToolsetFactory, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	factory, ok := registry.factories[id]
	return factory, ok
}

func RegisteredToolsets() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	ids := make([]string, 0, len(registry.factories))
	for id := range registry.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Populate initializes the named toolsets and registers their tools into reg.
func Populate(ids []string, ctx ToolsetContext, reg Registry) error {
	for _, id := range ids {
		factory, ok := ToolsetFactoryFor(id)
		if !ok {
			return errors.WithHintf(errors.Newf("unknown toolset: %s", id), "registered toolsets: %v", RegisteredToolsets())
		}
		toolset := factory()
		if err := toolset.Init(ctx); err != nil {
			return errors.Wrapf(err, "init toolset %s", id)
		}
		if err := toolset.Register(reg); err != nil {
			return err
		}
	}
	return nil
}
