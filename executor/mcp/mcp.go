// Package mcp implements the executor transport over an MCP server. Each
// executor id maps to a tool exposed by the server; the instruction and
// parameters become the tool arguments and the tool's text content is
// decoded as a result envelope.
package mcp

import (
	"context"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/planloop"
	"github.com/m-mizutani/planloop/executor/internal/envelope"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Transport is a planloop.Transport that dispatches to tools on an MCP
// server. The connection is established lazily on the first invocation.
type Transport struct {
	// For local MCP server
	path    string
	args    []string
	envVars []string

	// For remote MCP server
	baseURL string
	headers map[string]string

	client     *client.Client
	initResult *mcp.InitializeResult

	// tools caches the server's tool names after initialization.
	tools map[string]struct{}

	initMutex sync.Mutex
}

var _ planloop.Transport = &Transport{}

// StdioOption is the option for a transport to a local MCP executable server
// via stdio.
type StdioOption func(*Transport)

// WithEnvVars sets the environment variables for the local MCP server. It
// appends to the existing ones.
func WithEnvVars(envVars []string) StdioOption {
	return func(t *Transport) {
		t.envVars = append(t.envVars, envVars...)
	}
}

// SSEOption is the option for a transport to a remote MCP server via HTTP
// SSE.
type SSEOption func(*Transport)

// WithHeaders sets the headers sent to the remote MCP server. It replaces
// the existing headers setting.
func WithHeaders(headers map[string]string) SSEOption {
	return func(t *Transport) {
		t.headers = headers
	}
}

// NewStdio creates a transport to a local MCP server executable.
func NewStdio(path string, args []string, options ...StdioOption) *Transport {
	t := &Transport{path: path, args: args}
	for _, option := range options {
		option(t)
	}
	return t
}

// NewSSE creates a transport to a remote MCP server.
func NewSSE(baseURL string, options ...SSEOption) *Transport {
	t := &Transport{baseURL: baseURL}
	for _, option := range options {
		option(t)
	}
	return t
}

func (t *Transport) start(ctx context.Context) error {
	t.initMutex.Lock()
	defer t.initMutex.Unlock()

	if t.initResult != nil {
		return nil
	}

	var tp transport.Interface
	if t.path != "" {
		tp = transport.NewStdio(t.path, t.envVars, t.args...)
	}

	if t.baseURL != "" {
		sse, err := transport.NewSSE(t.baseURL, transport.WithHeaders(t.headers))
		if err != nil {
			return goerr.Wrap(err, "failed to create SSE transport")
		}
		tp = sse
	}

	if tp == nil {
		return goerr.New("no transport")
	}

	t.client = client.NewClient(tp)

	if err := t.client.Start(ctx); err != nil {
		return goerr.Wrap(err, "failed to start MCP client")
	}

	var initRequest mcp.InitializeRequest
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "planloop",
		Version: "0.0.1",
	}

	resp, err := t.client.Initialize(ctx, initRequest)
	if err != nil {
		return goerr.Wrap(err, "failed to initialize MCP client")
	}
	t.initResult = resp

	toolsResp, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return goerr.Wrap(err, "failed to list tools")
	}
	t.tools = make(map[string]struct{}, len(toolsResp.Tools))
	for _, tool := range toolsResp.Tools {
		t.tools[tool.Name] = struct{}{}
	}

	return nil
}

// Close shuts down the underlying MCP client.
func (t *Transport) Close() error {
	t.initMutex.Lock()
	defer t.initMutex.Unlock()

	if t.client == nil {
		return nil
	}
	if err := t.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close MCP client")
	}
	return nil
}

// Invoke calls the tool named by executorID with the instruction and
// parameters as arguments.
func (t *Transport) Invoke(ctx context.Context, executorID, instruction string, params map[string]any) (*planloop.Result, error) {
	if err := t.start(ctx); err != nil {
		return nil, err
	}

	if _, ok := t.tools[executorID]; !ok {
		return nil, goerr.Wrap(planloop.ErrUnknownExecutor, "no such tool on MCP server",
			goerr.V("executor_id", executorID))
	}

	args := map[string]any{
		"instruction": instruction,
	}
	if len(params) > 0 {
		args["params"] = params
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = executorID
	req.Params.Arguments = args
	resp, err := t.client.CallTool(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call tool", goerr.V("executor_id", executorID))
	}

	text := contentToText(resp.Content)
	if resp.IsError {
		return &planloop.Result{Success: false, Reason: text}, nil
	}

	result, err := envelope.ParseResult(text)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid executor response", goerr.V("executor_id", executorID))
	}
	return result, nil
}

func contentToText(contents []mcp.Content) string {
	var sb strings.Builder
	for _, c := range contents {
		if txt, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(txt.Text)
		}
	}
	return sb.String()
}
