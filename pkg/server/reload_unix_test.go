//go:build !windows

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func listToolNames(t *testing.T, session *sdkmcp.ClientSession) string {
	t.Helper()
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	return fmt.Sprint(names)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunReloadReregistersTools(t *testing.T) {
	configPath := writeConfig(t, "[serve]\ntoolsets = [\"text\", \"math\"]\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	stderr := &lockedBuffer{}
	runErr := make(chan error, 1)
	go func() {
		runErr <- Run(ctx, Options{
			ConfigPath: configPath,
			Version:    "test",
			Stderr:     stderr,
			Transport:  serverTransport,
		})
	}()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	// The session is up, so the SIGHUP handler is installed.
	if got := listToolNames(t, session); got != "[echo reverse sum]" {
		t.Fatalf("unexpected initial tools %s", got)
	}

	if err := os.WriteFile(configPath, []byte("[serve]\ntoolsets = [\"math\"]\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("signal: %v", err)
	}
	waitFor(t, "reloaded tools", func() bool { return listToolNames(t, session) == "[sum]" })

	// A failed reload keeps the current tools.
	if err := os.WriteFile(configPath, []byte("[serve]\ntoolsets = [\"missing\"]\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("signal: %v", err)
	}
	waitFor(t, "reload failure", func() bool { return strings.Contains(stderr.String(), "reload init failed") })
	if got := listToolNames(t, session); got != "[sum]" {
		t.Fatalf("expected tools kept after failed reload, got %s", got)
	}

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
}
