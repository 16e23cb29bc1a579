package main

import (
	"github.com/spf13/cobra"

	"toolhub/pkg/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		transport string
		addr      string
		toolsets  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built-in toolsets as an MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options := server.Options{
				ConfigPath: opts.configPath,
				ConfigDir:  opts.configDir,
				Version:    version,
				Stderr:     cmd.ErrOrStderr(),
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				options.LogLevel = opts.logLevel
			}
			if flags.Changed("transport") {
				options.Mode = transport
			}
			if flags.Changed("addr") {
				options.Addr = addr
			}
			if flags.Changed("toolsets") {
				options.Toolsets = parseCSV(toolsets)
			}
			if err := runServer(cmd.Context(), options); err != nil {
				return exitError(exitRuntime, "%v", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio, sse or streamable")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for sse and streamable")
	cmd.Flags().StringVar(&toolsets, "toolsets", "", "comma-separated toolsets to enable")
	return cmd
}
