package provider

import (
	"slices"
	"sort"

	"github.com/cockroachdb/errors"

	"toolhub/internal/config"
)

type Registry interface {
	Add(spec ToolSpec) error
	List() []ToolInfo
	Get(name string) (ToolSpec, bool)
}

// ToolRegistry holds the tools a server exposes. Tools listed in
// serve.disabled_tools are silently skipped.
type ToolRegistry struct {
	cfg   *config.Config
	tools map[string]ToolSpec
}

func NewRegistry(cfg *config.Config) *ToolRegistry {
	return &ToolRegistry{cfg: cfg, tools: map[string]ToolSpec{}}
}

func (r *ToolRegistry) Add(spec ToolSpec) error {
	if spec.Name == "" {
		return errors.New("tool name required")
	}
	if spec.Handler == nil {
		return errors.Newf("tool %q has no handler", spec.Name)
	}
	if _, exists := r.tools[spec.Name]; exists {
		return errors.Newf("tool %q already registered", spec.Name)
	}
	if !r.enabled(spec) {
		return nil
	}
	r.tools[spec.Name] = spec
	return nil
}

func (r *ToolRegistry) List() []ToolInfo {
	infos := make([]ToolInfo, 0, len(r.tools))
	for _, tool := range r.Specs() {
		infos = append(infos, ToolInfo{Name: tool.Name, Description: tool.Description, InputSchema: tool.InputSchema})
	}
	return infos
}

func (r *ToolRegistry) Get(name string) (ToolSpec, bool) {
	spec, ok := r.tools[name]
	return spec, ok
}

func (r *ToolRegistry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool)
	}
	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Name < specs[j].Name
	})
	return specs
}

func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ToolRegistry) enabled(spec ToolSpec) bool {
	if r.cfg == nil {
		return true
	}
	return !slices.Contains(r.cfg.Serve.DisabledTools, spec.Name)
}
