package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"

	"toolhub/internal/config"
	"toolhub/internal/mcp"
	"toolhub/pkg/server"

	_ "toolhub/toolsets/math"
	_ "toolhub/toolsets/text"
)

// Set via ldflags at build time.
var version = "0.1.0"

var runServer = server.Run
var exit = os.Exit

func main() {
	mcp.Version = version
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		exit(exitCode(err))
	}
}

type rootOptions struct {
	configPath string
	configDir  string
	logLevel   string
	collision  string
	timeout    int
	repair     bool
	envFiles   []string

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "toolhub",
		Short:         "Collect and call tools exposed by MCP servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file path (default $TOOLHUB_CONFIG or ./config.toml)")
	flags.StringVar(&opts.configDir, "config-dir", "", "directory of drop-in config files")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warning, error")
	flags.StringVar(&opts.collision, "collision", "", "tool name collision policy: last_wins or prefix")
	flags.IntVar(&opts.timeout, "timeout", 0, "per-peer timeout in seconds")
	flags.BoolVar(&opts.repair, "repair-args", false, "repair malformed JSON arguments before calling a tool")
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	cmd.Version = version
	cmd.SetVersionTemplate(fmt.Sprintf("toolhub version %s\n", version))

	cmd.AddCommand(newPeersCmd(opts))
	cmd.AddCommand(newToolsCmd(opts))
	cmd.AddCommand(newCallCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

func (o *rootOptions) overrides(cmd *cobra.Command) config.Overrides {
	overrides := config.Overrides{}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		overrides.LogLevel = &o.logLevel
	}
	if flags.Changed("collision") {
		overrides.Collision = &o.collision
	}
	if flags.Changed("timeout") {
		overrides.TimeoutSeconds = &o.timeout
	}
	if flags.Changed("repair-args") {
		overrides.RepairArguments = &o.repair
	}
	return overrides
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(o.envFiles...); err != nil {
		return exitError(exitValidation, "%v", err)
	}
	cfg, err := config.Load(config.ResolvePath(o.configPath), o.configDir, o.overrides(cmd))
	if err != nil {
		return exitError(exitValidation, "config load failed: %v", err)
	}
	o.cfg = cfg
	setupLogging(cmd, cfg.LogLevel)
	return nil
}

func setupLogging(cmd *cobra.Command, level string) {
	xlog.SetFormatter(xlog.NewStringFormatter(cmd.ErrOrStderr()))
	xlog.SetGlobalLogLevel(parseLevel(level))
}

func parseLevel(level string) xlog.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return xlog.DEBUG
	case "warn", "warning":
		return xlog.WARNING
	case "error", "critical":
		return xlog.ERROR
	default:
		return xlog.INFO
	}
}

func parseCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
