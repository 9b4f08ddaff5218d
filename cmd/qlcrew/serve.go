package main

import (
	"log/slog"

	"github.com/jllopis/qlcrew/pkg/mcp"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var transport, addr, baseURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local CodeQL capabilities over MCP",
		Long: `serve publishes extract_code_snippet, view_codeql_templates and
write_query as MCP tools, over stdio or SSE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.Server
			if cmd.Flags().Changed("transport") {
				cfg.Transport = transport
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("base-url") {
				cfg.BaseURL = baseURL
			}

			srv := mcp.NewServer(serviceName, version)
			if err := srv.Publish(newToolkit(a.cfg).Capabilities()...); err != nil {
				return err
			}

			switch cfg.Transport {
			case "stdio":
				a.logger.Info("serving tools on stdio", slog.Any("tools", srv.Tools()))
				return srv.ServeStdio()
			case "sse":
				a.logger.Info("serving tools over sse",
					slog.String("addr", cfg.Addr),
					slog.Any("tools", srv.Tools()),
				)
				return srv.ServeSSE(cmd.Context(), cfg.Addr, cfg.BaseURL)
			default:
				return NewInvalidArgumentError("transport", "--transport must be stdio or sse")
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio or sse (default from server.transport)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for sse (default from server.addr)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "public base URL advertised by the sse transport")
	return cmd
}
