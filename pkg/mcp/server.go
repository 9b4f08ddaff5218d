package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jllopis/qlcrew/pkg/capability"
	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server publishes capabilities as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	names     []string
}

// NewServer creates a new MCP server.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}
}

// Publish registers capabilities with the server. Capability failures are
// returned to the caller as tool errors rather than protocol errors.
func (s *Server) Publish(caps ...*capability.Capability) error {
	for _, c := range caps {
		schema, err := json.Marshal(c.Schema())
		if err != nil {
			return errors.New(errors.CodeInvalidInput, "encode capability schema", err).
				WithContext("capability", c.Name())
		}
		tool := mcp.NewToolWithRawSchema(c.Name(), c.Description(), schema)
		invoke := c
		s.mcpServer.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			raw, err := json.Marshal(req.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := invoke.Invoke(ctx, string(raw))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(out), nil
		})
		s.names = append(s.names, c.Name())
	}
	return nil
}

// Tools returns the published tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.names...)
}

// MCPServer exposes the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on the process stdio until it closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// SSEHandler returns the SSE transport, an http.Handler serving /sse and
// /message.
func (s *Server) SSEHandler(baseURL string) *server.SSEServer {
	var opts []server.SSEOption
	if baseURL != "" {
		opts = append(opts, server.WithBaseURL(baseURL))
	}
	return server.NewSSEServer(s.mcpServer, opts...)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sse := s.SSEHandler(baseURL)
	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()
	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		return sse.Shutdown(context.WithoutCancel(ctx))
	}
}
