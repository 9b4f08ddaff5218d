// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp connects to Model Context Protocol endpoints and publishes
// capabilities as an MCP server.
package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/jllopis/qlcrew/pkg/resilience"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultRetries  = 2
	defaultBackoff  = 200 * time.Millisecond
	defaultCacheTTL = 30 * time.Second

	clientName    = "qlcrew"
	clientVersion = "0.1.0"
)

// Transport kinds accepted by Connect.
const (
	TransportSSE        = "sse"
	TransportStreamable = "http"
	TransportStdio      = "stdio"
)

// ClientOption customizes the MCP client wrapper behavior.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures the number of retries after the first attempt and the
// initial backoff.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.retry.MaxAttempts = retries + 1
		}
		if backoff > 0 {
			c.retry.InitialDelay = backoff
		}
	}
}

// WithToolCacheTTL sets the tool discovery cache TTL. Use 0 to disable caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithBreaker guards tool calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) ClientOption {
	return func(c *Client) {
		c.breaker = b
	}
}

// Client wraps an mcp-go client with timeouts, retries and a tool cache.
type Client struct {
	mcpClient client.MCPClient
	timeout   time.Duration
	retry     resilience.RetryConfig
	cacheTTL  time.Duration
	breaker   *resilience.Breaker

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient creates a new Client around an initialized MCP client.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = defaultRetries + 1
	retry.InitialDelay = defaultBackoff
	cl := &Client{
		mcpClient: c,
		timeout:   defaultTimeout,
		retry:     retry,
		cacheTTL:  defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// Endpoint describes how to reach a tool endpoint.
type Endpoint struct {
	Transport string
	URL       string
	Command   string
	Args      []string
	Env       []string
}

// Connect opens and initializes a client for the endpoint.
func Connect(ctx context.Context, ep Endpoint, opts ...ClientOption) (*Client, error) {
	switch ep.Transport {
	case "", TransportSSE:
		return NewClientWithSSE(ctx, ep.URL, opts...)
	case TransportStreamable, "streamable-http":
		return NewClientWithStreamableHTTP(ctx, ep.URL, opts...)
	case TransportStdio:
		return NewClientWithStdio(ctx, ep.Command, ep.Args, ep.Env, opts...)
	default:
		return nil, errors.New(errors.CodeInvalidInput, "unknown mcp transport", nil).
			WithContext("transport", ep.Transport)
	}
}

// NewClientWithSSE connects to an SSE endpoint such as http://localhost:8000/sse.
func NewClientWithSSE(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.New(errors.CodeInvalidInput, "mcp url is required", nil)
	}
	c, err := client.NewSSEMCPClient(url)
	if err != nil {
		return nil, connectError("sse", url, err)
	}
	return start(ctx, c, url, opts)
}

// NewClientWithStreamableHTTP connects to a streamable HTTP endpoint.
func NewClientWithStreamableHTTP(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.New(errors.CodeInvalidInput, "mcp url is required", nil)
	}
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, connectError("http", url, err)
	}
	return start(ctx, c, url, opts)
}

// NewClientWithStdio launches command and speaks MCP over its stdio.
func NewClientWithStdio(ctx context.Context, command string, args, env []string, opts ...ClientOption) (*Client, error) {
	if command == "" {
		return nil, errors.New(errors.CodeInvalidInput, "mcp command is required", nil)
	}
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, connectError("stdio", command, err)
	}
	return start(ctx, c, command, opts)
}

// NewInProcessClient connects directly to a server in the same process.
func NewInProcessClient(ctx context.Context, srv *server.MCPServer, opts ...ClientOption) (*Client, error) {
	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, connectError("inprocess", "", err)
	}
	return start(ctx, c, "inprocess", opts)
}

func start(ctx context.Context, c *client.Client, target string, opts []ClientOption) (*Client, error) {
	// Streaming transports bind their connection to the Start context.
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		_ = c.Close()
		return nil, connectError("start", target, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	if _, err := c.Initialize(initCtx, req); err != nil {
		_ = c.Close()
		return nil, connectError("initialize", target, err)
	}
	return NewClient(c, opts...), nil
}

func connectError(stage, target string, err error) error {
	return errors.New(errors.CodeSetup, fmt.Sprintf("mcp %s failed", stage), err).
		WithContext("target", target)
}

// ListTools retrieves the tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	res, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) (*mcp.ListToolsResult, error) {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		return c.mcpClient.ListTools(reqCtx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	c.storeTools(res.Tools)
	return res.Tools, nil
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	call := func(ctx context.Context) (*mcp.CallToolResult, error) {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		return c.mcpClient.CallTool(reqCtx, req)
	}
	if c.breaker == nil {
		return resilience.Retry(ctx, c.retry, call)
	}

	var res *mcp.CallToolResult
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		res, err = resilience.Retry(ctx, c.retry, call)
		return err
	})
	return res, err
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
