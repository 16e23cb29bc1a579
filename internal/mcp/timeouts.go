package mcp

import (
	"context"
	"time"
)

// Timeouts bounds an exchange by name. The manager keys it by peer name and
// bounds handshake and discovery only; the provider keys it by tool name.
type Timeouts struct {
	Default time.Duration
	PerName map[string]time.Duration
	Max     time.Duration
}

// For returns the effective bound for name, or zero for none.
func (t Timeouts) For(name string) time.Duration {
	timeout := t.Default
	if override, ok := t.PerName[name]; ok && override > 0 {
		timeout = override
	}
	if t.Max > 0 && timeout > t.Max {
		timeout = t.Max
	}
	if timeout < 0 {
		return 0
	}
	if timeout == 0 && t.Max > 0 {
		return t.Max
	}
	return timeout
}

// WithTimeout derives a context bounded by For(name).
func (t Timeouts) WithTimeout(ctx context.Context, name string) (context.Context, context.CancelFunc) {
	timeout := t.For(name)
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
