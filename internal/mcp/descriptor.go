package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"toolhub/internal/redact"
)

// TransportType discriminates the Descriptor variants.
type TransportType string

const (
	TransportSSE        TransportType = "sse"
	TransportStreamable TransportType = "streamable"
	TransportStdio      TransportType = "stdio"
)

// Descriptor describes how to reach one tool provider peer.
// Exactly one variant is meaningful, selected by Type.
type Descriptor struct {
	Type    TransportType     `toml:"type" json:"type" yaml:"type" validate:"required,oneof=sse streamable stdio"`
	URL     string            `toml:"url,omitempty" json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Command string            `toml:"command,omitempty" json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `toml:"args,omitempty" json:"args,omitempty" yaml:"args,omitempty"`
	Envs    map[string]string `toml:"envs,omitempty" json:"envs,omitempty" yaml:"envs,omitempty"`
}

// SSE returns an event-stream descriptor.
func SSE(url string) Descriptor {
	return Descriptor{Type: TransportSSE, URL: url}
}

// Streamable returns a streamable HTTP descriptor.
func Streamable(url string) Descriptor {
	return Descriptor{Type: TransportStreamable, URL: url}
}

// Stdio returns a subprocess descriptor. args and envs are copied.
func Stdio(command string, args []string, envs map[string]string) Descriptor {
	d := Descriptor{Type: TransportStdio, Command: command}
	if len(args) > 0 {
		d.Args = append([]string{}, args...)
	}
	if len(envs) > 0 {
		d.Envs = make(map[string]string, len(envs))
		for k, v := range envs {
			d.Envs[k] = v
		}
	}
	return d
}

var validate = validator.New()

func (d Descriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return errors.Wrap(err, "invalid descriptor")
	}
	switch d.Type {
	case TransportSSE, TransportStreamable:
		if d.URL == "" {
			return errors.Newf("%s descriptor requires url", d.Type)
		}
		if d.Command != "" || len(d.Args) > 0 || len(d.Envs) > 0 {
			return errors.Newf("%s descriptor does not accept command, args or envs", d.Type)
		}
	case TransportStdio:
		if strings.TrimSpace(d.Command) == "" {
			return errors.New("stdio descriptor requires command")
		}
		if d.URL != "" {
			return errors.New("stdio descriptor does not accept url")
		}
	}
	return nil
}

// String renders the descriptor with credentials and environment values masked.
func (d Descriptor) String() string {
	switch d.Type {
	case TransportStdio:
		r := redact.New()
		parts := []string{d.Command}
		for _, arg := range d.Args {
			parts = append(parts, r.RedactString(arg))
		}
		out := "stdio:" + strings.Join(parts, " ")
		if len(d.Envs) > 0 {
			out += fmt.Sprintf(" envs=[%s]", strings.Join(flattenEnv(r.RedactEnv(d.Envs)), ","))
		}
		return out
	case "":
		return "<empty>"
	default:
		return string(d.Type) + ":" + redact.URL(d.URL)
	}
}

// flattenEnv renders envs as sorted KEY=VALUE pairs.
func flattenEnv(envs map[string]string) []string {
	if len(envs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(envs))
	for k := range envs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envs[k])
	}
	return out
}
