package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"toolhub/internal/audit"
	"toolhub/internal/mcp"
)

var logger = xlog.NewPackageLogger("toolhub", "cli")

func newPeersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "Connect to the configured peers and report which are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, cleanup, err := opts.builder(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			manager := b.Build(cmd.Context())
			defer closeManager(manager)

			names := slices.Clone(b.Peers())
			slices.Sort(names)
			names = slices.Compact(names)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTRANSPORT\tSTATUS\tENDPOINT")
			for _, name := range names {
				d, _ := b.Descriptor(name)
				status := "unreachable"
				if _, ok := manager.Session(name); ok {
					status = "connected"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, d.Type, status, d.String())
			}
			return w.Flush()
		},
	}
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools collected from every reachable peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, cleanup, err := opts.builder(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			manager := b.Build(cmd.Context())
			defer closeManager(manager)
			tools := manager.CollectTools(cmd.Context())

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), tools.Definitions(cmd.Context()))
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPEER\tDESCRIPTION")
			for _, name := range tools.Names() {
				tool, _ := tools.Get(name)
				peer := ""
				if remote, ok := tool.(*mcp.RemoteTool); ok {
					peer = remote.Peer()
				}
				def := tool.Definition(cmd.Context())
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, peer, firstLine(def.Description))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tool definitions as JSON")
	return cmd
}

func newCallCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-args]",
		Short: "Call a collected tool with a JSON object of arguments",
		Long:  "Call a collected tool. Arguments default to {}; pass - to read them from stdin.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "{}"
			if len(args) > 1 {
				input = args[1]
			}
			if input == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return exitError(exitRuntime, "read arguments: %v", err)
				}
				input = string(data)
			}

			b, cleanup, err := opts.builder(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			manager := b.Build(cmd.Context())
			defer closeManager(manager)
			tools := manager.CollectTools(cmd.Context())

			out, err := tools.Call(cmd.Context(), args[0], input)
			if err != nil {
				_ = writeJSON(cmd.ErrOrStderr(), mcp.BuildErrorEnvelope(err, nil))
				code := exitRuntime
				if errors.Is(err, mcp.ErrInvalidArguments) || errors.Is(err, mcp.ErrToolNotFound) {
					code = exitValidation
				}
				return &ExitError{Code: code}
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

// builder assembles the manager builder from the loaded config, wiring the
// global OpenTelemetry providers and the audit log.
func (o *rootOptions) builder(cmd *cobra.Command) (mcp.Builder, func(), error) {
	cleanup := func() {}
	b, err := o.cfg.Builder()
	if err != nil {
		return b, cleanup, exitError(exitValidation, "%v", err)
	}
	observer, err := mcp.NewObserver(otel.GetMeterProvider().Meter("toolhub"), otel.Tracer("toolhub"))
	if err != nil {
		logger.KV(xlog.WARNING, "reason", "observer", "err", err.Error())
	} else {
		b = b.WithObserver(observer)
	}
	if o.cfg.Audit.Enabled {
		auditLogger, closeAudit, err := audit.Open(o.cfg.Audit.Path, cmd.ErrOrStderr())
		if err != nil {
			return b, cleanup, exitError(exitValidation, "%v", err)
		}
		cleanup = func() { _ = closeAudit() }
		b = b.WithAudit(auditLogger)
	}
	return b, cleanup, nil
}

func closeManager(m *mcp.Manager) {
	if err := m.Close(); err != nil {
		logger.KV(xlog.DEBUG, "reason", "close", "err", err.Error())
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
