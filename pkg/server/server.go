package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"toolhub/internal/audit"
	"toolhub/internal/config"
	"toolhub/internal/mcp"
	"toolhub/internal/policy"
	"toolhub/internal/provider"
	"toolhub/internal/redact"
)

var logger = xlog.NewPackageLogger("toolhub", "server")

const shutdownTimeout = 5 * time.Second

type Options struct {
	ConfigPath string
	ConfigDir  string
	Toolsets   []string
	// Mode is one of stdio, sse or streamable; empty uses the config.
	Mode     string
	Addr     string
	LogLevel string
	Version  string
	Stderr   io.Writer
	// Transport replaces stdin/stdout in stdio mode.
	Transport sdkmcp.Transport
}

// Run serves the configured toolsets until ctx is done or the transport
// closes. SIGHUP reloads the configuration and re-registers the tools.
func Run(ctx context.Context, opts Options) error {
	errOut := opts.Stderr
	if errOut == nil {
		errOut = os.Stderr
	}
	configPath := config.ResolvePath(opts.ConfigPath)
	overrides := config.Overrides{}
	if len(opts.Toolsets) > 0 {
		overrides.Toolsets = &opts.Toolsets
	}
	if opts.Mode != "" {
		overrides.Transport = &opts.Mode
	}
	if opts.Addr != "" {
		overrides.Addr = &opts.Addr
	}
	if opts.LogLevel != "" {
		overrides.LogLevel = &opts.LogLevel
	}

	cfg, err := config.Load(configPath, opts.ConfigDir, overrides)
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	auditLogger, closeAudit, err := openAudit(cfg, errOut)
	if err != nil {
		return err
	}
	defer func() { _ = closeAudit() }()

	toolCtx, reg, err := buildRuntime(cfg, auditLogger)
	if err != nil {
		return errors.Wrap(err, "init failed")
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "toolhub", Version: opts.Version}, nil)
	toolNames, err := provider.RegisterSDKTools(server, reg, toolCtx)
	if err != nil {
		return errors.Wrap(err, "tool registration failed")
	}

	logger.KV(xlog.INFO,
		"reason", "serve",
		"transport", cfg.Serve.Transport,
		"tools", len(toolNames),
	)

	reloadCh, stopSignals := reloadSignals()
	defer stopSignals()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-reloadCh:
			}
			cfg, err := config.Load(configPath, opts.ConfigDir, overrides)
			if err != nil {
				fmt.Fprintf(errOut, "config reload failed: %v\n", err)
				continue
			}
			toolCtx, reg, err := buildRuntime(cfg, auditLogger)
			if err != nil {
				fmt.Fprintf(errOut, "reload init failed: %v\n", err)
				continue
			}
			if len(toolNames) > 0 {
				server.RemoveTools(toolNames...)
			}
			toolNames, err = provider.RegisterSDKTools(server, reg, toolCtx)
			if err != nil {
				fmt.Fprintf(errOut, "tool registration failed: %v\n", err)
				continue
			}
			logger.KV(xlog.INFO, "reason", "reload", "tools", len(toolNames))
		}
	}()

	switch mcp.TransportType(cfg.Serve.Transport) {
	case mcp.TransportSSE, mcp.TransportStreamable:
		return serveHTTP(ctx, cfg.Serve, Handler(server, mcp.TransportType(cfg.Serve.Transport)))
	default:
		transport := opts.Transport
		if transport == nil {
			transport = &sdkmcp.StdioTransport{}
		}
		if err := server.Run(ctx, transport); err != nil {
			return errors.Wrap(err, "server error")
		}
		return nil
	}
}

// New returns an MCP server exposing the toolsets named in cfg.Serve.
func New(cfg config.Config, version string) (*sdkmcp.Server, error) {
	toolCtx, reg, err := buildRuntime(cfg, nil)
	if err != nil {
		return nil, err
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "toolhub", Version: version}, nil)
	if _, err := provider.RegisterSDKTools(server, reg, toolCtx); err != nil {
		return nil, err
	}
	return server, nil
}

// Handler serves server over HTTP with the SSE or streamable transport.
func Handler(server *sdkmcp.Server, kind mcp.TransportType) http.Handler {
	getServer := func(*http.Request) *sdkmcp.Server { return server }
	if kind == mcp.TransportSSE {
		return sdkmcp.NewSSEHandler(getServer, nil)
	}
	return sdkmcp.NewStreamableHTTPHandler(getServer, nil)
}

func serveHTTP(ctx context.Context, cfg config.ServeConfig, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, handler)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen %s", cfg.Addr)
	}
}

func openAudit(cfg config.Config, errOut io.Writer) (*audit.Logger, func() error, error) {
	if !cfg.Audit.Enabled {
		return nil, func() error { return nil }, nil
	}
	return audit.Open(cfg.Audit.Path, errOut)
}

func buildRuntime(cfg config.Config, auditLogger *audit.Logger) (provider.ToolContext, *provider.ToolRegistry, error) {
	keys := make([]policy.Key, 0, len(cfg.Serve.APIKeys))
	for _, key := range cfg.Serve.APIKeys {
		keys = append(keys, policy.Key{
			Secret: key.Key,
			User: policy.User{
				ID:              key.ID,
				AllowedToolsets: key.Toolsets,
				AllowedTools:    key.Tools,
			},
		})
	}
	reg := provider.NewRegistry(&cfg)
	toolCtx := provider.ToolContext{
		Config:   &cfg,
		Policy:   policy.NewAuthorizer(keys...),
		Redactor: redact.New(),
		Audit:    auditLogger,
		Timeouts: mcp.Timeouts{Default: time.Duration(cfg.Serve.ToolTimeoutSeconds) * time.Second},
		Registry: reg,
	}
	if err := provider.Populate(cfg.Serve.Toolsets, toolCtx, reg); err != nil {
		return provider.ToolContext{}, nil, err
	}
	return toolCtx, reg, nil
}
