package provider

import (
	"context"
	"errors"
	"testing"
)

func resetToolsetRegistry() {
	registry = toolsetRegistry{factories: map[string]ToolsetFactory{}}
}

type fakeToolset struct {
	id      string
	initErr error
}

func (f fakeToolset) ID() string      { return f.id }
func (f fakeToolset) Version() string { return "test" }

func (f fakeToolset) Init(ToolsetContext) error { return f.initErr }

func (f fakeToolset) Register(reg Registry) error {
	return reg.Add(ToolSpec{
		Name:      f.id + "_ping",
		ToolsetID: f.id,
		Handler: func(context.Context, ToolRequest) (ToolResult, error) {
			return ToolResult{Text: "pong"}, nil
		},
	})
}

func TestRegisterToolsetErrors(t *testing.T) {
	resetToolsetRegistry()
	if err := RegisterToolset("", func() Toolset { return nil }); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := RegisterToolset("demo", nil); err == nil {
		t.Fatalf("expected error for nil factory")
	}
	if err := RegisterToolset("demo", func() Toolset { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RegisterToolset("demo", func() Toolset { return nil }); err == nil {
		t.Fatalf("expected error for duplicate registration")
	}
}

func TestMustRegisterToolsetPanics(t *testing.T) {
	resetToolsetRegistry()
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic from MustRegisterToolset")
		}
	}()
	MustRegisterToolset("", func() Toolset { return nil })
}

func TestToolsetFactoryForAndRegisteredToolsets(t *testing.T) {
	resetToolsetRegistry()
	_ = RegisterToolset("b", func() Toolset { return nil })
	_ = RegisterToolset("a", func() Toolset { return nil })
	if _, ok := ToolsetFactoryFor("missing"); ok {
		t.Fatalf("expected missing toolset")
	}
	if _, ok := ToolsetFactoryFor("a"); !ok {
		t.Fatalf("expected toolset factory")
	}
	ids := RegisteredToolsets()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected toolset ids: %#v", ids)
	}
}

func TestPopulate(t *testing.T) {
	resetToolsetRegistry()
	MustRegisterToolset("alpha", func() Toolset { return fakeToolset{id: "alpha"} })
	MustRegisterToolset("broken", func() Toolset { return fakeToolset{id: "broken", initErr: errors.New("no")} })

	reg := NewRegistry(nil)
	if err := Populate([]string{"alpha"}, ToolsetContext{}, reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reg.Get("alpha_ping"); !ok {
		t.Fatalf("expected alpha_ping registered")
	}
	if err := Populate([]string{"missing"}, ToolsetContext{}, NewRegistry(nil)); err == nil {
		t.Fatalf("expected unknown toolset error")
	}
	if err := Populate([]string{"broken"}, ToolsetContext{}, NewRegistry(nil)); err == nil {
		t.Fatalf("expected init error")
	}
}
