package mcp

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/cockroachdb/errors"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to peers during the initialize handshake.
var Version = "0.1.0"

// Dialer opens initialized sessions from descriptors.
// The zero value is ready to use.
type Dialer struct {
	Implementation *sdkmcp.Implementation
	HTTPClient     *http.Client
	// TerminateDuration is how long Close waits for a stdio peer to exit
	// after stdin is closed before signalling it.
	TerminateDuration time.Duration
}

// Connect dials d with a zero Dialer.
func Connect(ctx context.Context, d Descriptor) (Session, error) {
	return Dialer{}.Dial(ctx, d)
}

// Dial connects to the peer described by d and completes the initialize
// handshake. ctx bounds the handshake only; the returned session lives until
// Close. Every failure is a *ConnectError.
func (dl Dialer) Dial(ctx context.Context, d Descriptor) (Session, error) {
	if err := d.Validate(); err != nil {
		return nil, &ConnectError{Type: d.Type, Err: err}
	}
	transport := dl.transport(d)

	impl := dl.Implementation
	if impl == nil {
		impl = &sdkmcp.Implementation{Name: "toolhub", Version: Version}
	}
	client := sdkmcp.NewClient(impl, nil)

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	type result struct {
		cs  *sdkmcp.ClientSession
		err error
	}
	done := make(chan result, 1)
	go func() {
		cs, err := client.Connect(sessCtx, transport, nil)
		done <- result{cs: cs, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			cancel()
			return nil, &ConnectError{Type: d.Type, Err: errors.Wrap(r.err, "initialize")}
		}
		return &peerSession{ClientSession: r.cs, cancel: cancel}, nil
	case <-ctx.Done():
		cancel()
		go func() {
			if r := <-done; r.cs != nil {
				_ = r.cs.Close()
			}
		}()
		return nil, &ConnectError{Type: d.Type, Err: errors.Wrap(ctx.Err(), "initialize")}
	}
}

func (dl Dialer) transport(d Descriptor) sdkmcp.Transport {
	switch d.Type {
	case TransportSSE:
		return &sdkmcp.SSEClientTransport{Endpoint: d.URL, HTTPClient: dl.HTTPClient}
	case TransportStreamable:
		return &sdkmcp.StreamableClientTransport{Endpoint: d.URL, HTTPClient: dl.HTTPClient}
	default:
		cmd := exec.Command(d.Command, d.Args...)
		cmd.Env = append(os.Environ(), flattenEnv(d.Envs)...)
		// nil Stderr is the null device; peer diagnostics are never surfaced.
		cmd.Stderr = nil
		return &sdkmcp.CommandTransport{Command: cmd, TerminateDuration: dl.TerminateDuration}
	}
}

// peerSession ties the detached session context to the session lifetime.
type peerSession struct {
	*sdkmcp.ClientSession
	cancel context.CancelFunc
}

func (s *peerSession) Close() error {
	err := s.ClientSession.Close()
	s.cancel()
	return err
}
