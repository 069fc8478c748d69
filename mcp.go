package herald

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPClient exposes the tools of an MCP server as a ToolSet. Tools are
// published under a namespace ("mcp" by default), always run server-side,
// and default to low risk unless configured otherwise.
type MCPClient struct {
	// For local MCP server
	path    string
	args    []string
	envVars []string

	// For remote MCP server
	baseURL string
	headers map[string]string

	namespace string
	risk      RiskLevel

	client     *client.Client
	initResult *mcp.InitializeResult

	// MCP tool name by published spec name
	remoteNames map[string]string

	initMutex sync.Mutex
}

// MCPOption configures an MCPClient regardless of transport.
type MCPOption func(*MCPClient)

// WithMCPNamespace sets the namespace prefix of the published tool names.
func WithMCPNamespace(namespace string) MCPOption {
	return func(m *MCPClient) {
		m.namespace = namespace
	}
}

// WithMCPRisk sets the risk level attached to every tool of this server.
func WithMCPRisk(risk RiskLevel) MCPOption {
	return func(m *MCPClient) {
		m.risk = risk
	}
}

// WithMCPEnvVars appends environment variables passed to a stdio MCP
// server process.
func WithMCPEnvVars(envVars []string) MCPOption {
	return func(m *MCPClient) {
		m.envVars = append(m.envVars, envVars...)
	}
}

// WithMCPHeaders sets the HTTP headers sent to an SSE MCP server.
func WithMCPHeaders(headers map[string]string) MCPOption {
	return func(m *MCPClient) {
		m.headers = headers
	}
}

// NewMCPStdio connects to a local MCP server executable via stdio.
func NewMCPStdio(ctx context.Context, path string, args []string, options ...MCPOption) (*MCPClient, error) {
	mcpClient := &MCPClient{
		path:      path,
		args:      args,
		namespace: "mcp",
		risk:      RiskLow,
	}
	for _, opt := range options {
		opt(mcpClient)
	}

	if err := mcpClient.start(ctx); err != nil {
		return nil, err
	}
	return mcpClient, nil
}

// NewMCPSSE connects to a remote MCP server via HTTP SSE.
func NewMCPSSE(ctx context.Context, baseURL string, options ...MCPOption) (*MCPClient, error) {
	mcpClient := &MCPClient{
		baseURL:   baseURL,
		namespace: "mcp",
		risk:      RiskLow,
	}
	for _, opt := range options {
		opt(mcpClient)
	}

	if err := mcpClient.start(ctx); err != nil {
		return nil, err
	}
	return mcpClient, nil
}

func (c *MCPClient) start(ctx context.Context) error {
	c.initMutex.Lock()
	defer c.initMutex.Unlock()

	if c.initResult != nil {
		return nil
	}

	var tp transport.Interface
	if c.path != "" {
		tp = transport.NewStdio(c.path, c.envVars, c.args...)
	}

	if c.baseURL != "" {
		sse, err := transport.NewSSE(c.baseURL, transport.WithHeaders(c.headers))
		if err != nil {
			return goerr.Wrap(err, "failed to create SSE transport")
		}
		tp = sse
	}

	if tp == nil {
		return goerr.New("no transport")
	}

	c.client = client.NewClient(tp)

	if err := c.client.Start(ctx); err != nil {
		return goerr.Wrap(err, "failed to start MCP client")
	}

	var initRequest mcp.InitializeRequest
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "herald",
		Version: "0.0.1",
	}

	resp, err := c.client.Initialize(ctx, initRequest)
	if err != nil {
		return goerr.Wrap(err, "failed to initialize MCP client")
	}
	c.initResult = resp

	return nil
}

// Close shuts down the connection to the MCP server.
func (c *MCPClient) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close MCP client")
	}
	return nil
}

var mcpNameSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

// publishedName maps a remote MCP tool name into the local tool name
// alphabet under the client's namespace.
func (c *MCPClient) publishedName(remote string) string {
	sanitized := mcpNameSanitizer.ReplaceAllString(strings.ToLower(remote), "_")
	sanitized = strings.Trim(sanitized, "_")
	return c.namespace + "." + sanitized
}

// Specs lists the server's tools as ToolSpecs.
func (c *MCPClient) Specs(ctx context.Context) ([]*ToolSpec, error) {
	if c.initResult == nil {
		return nil, goerr.New("MCP client not initialized")
	}

	resp, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tools")
	}

	c.remoteNames = make(map[string]string, len(resp.Tools))

	specs := make([]*ToolSpec, 0, len(resp.Tools))
	for _, tool := range resp.Tools {
		spec, err := c.toolSpec(tool)
		if err != nil {
			return nil, err
		}
		c.remoteNames[spec.Name] = tool.Name
		specs = append(specs, spec)
	}

	return specs, nil
}

// Run calls the remote tool behind the published name.
func (c *MCPClient) Run(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if c.initResult == nil {
		return nil, goerr.New("MCP client not initialized")
	}

	remote, ok := c.remoteNames[name]
	if !ok {
		return nil, goerr.Wrap(ErrUnknownTool, "tool is not published by this MCP server", goerr.V("tool", name))
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = remote
	req.Params.Arguments = args
	resp, err := c.client.CallTool(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call tool", goerr.V("tool", name))
	}

	return mcpContentToMap(resp.Content), nil
}

func (c *MCPClient) toolSpec(tool mcp.Tool) (*ToolSpec, error) {
	parameters, err := inputSchemaToParameters(tool.InputSchema)
	if err != nil {
		return nil, err
	}

	return &ToolSpec{
		Name:        c.publishedName(tool.Name),
		Description: tool.Description,
		Parameters:  parameters,
		Required:    tool.InputSchema.Required,
		Target:      TargetServer,
		Risk:        c.risk,
	}, nil
}

func valueOrEmpty[T any](v any) T {
	var empty T
	if v == nil {
		return empty
	}
	if v, ok := v.(T); ok {
		return v
	}
	return empty
}

func inputSchemaToParameters(inputSchema mcp.ToolInputSchema) (map[string]*Parameter, error) {
	parameters := map[string]*Parameter{}

	for name, property := range inputSchema.Properties {
		prop, ok := property.(map[string]any)
		if !ok {
			return nil, goerr.Wrap(ErrInvalidParameter, "invalid property", goerr.V("property", property))
		}

		parameter, err := propertyToParameter(prop)
		if err != nil {
			return nil, err
		}
		parameters[name] = parameter
	}

	return parameters, nil
}

func propertyToParameter(prop map[string]any) (*Parameter, error) {
	var properties map[string]*Parameter
	var items *Parameter
	var required []string
	propType := valueOrEmpty[string](prop["type"])

	if propType == "object" {
		properties = map[string]*Parameter{}
		nestedProperty := valueOrEmpty[map[string]any](prop["properties"])

		for k, v := range nestedProperty {
			nested, ok := v.(map[string]any)
			if !ok {
				return nil, goerr.Wrap(ErrInvalidParameter, "invalid nested property", goerr.V("property", v))
			}
			objParam, err := propertyToParameter(nested)
			if err != nil {
				return nil, err
			}
			properties[k] = objParam
		}

		for _, r := range valueOrEmpty[[]any](prop["required"]) {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	}

	if propType == "array" {
		itemsProp, ok := prop["items"].(map[string]any)
		if !ok {
			return nil, goerr.Wrap(ErrInvalidParameter, "array property has no items schema")
		}
		v, err := propertyToParameter(itemsProp)
		if err != nil {
			return nil, err
		}
		items = v
	}

	var enum []string
	for _, e := range valueOrEmpty[[]any](prop["enum"]) {
		if s, ok := e.(string); ok {
			enum = append(enum, s)
		}
	}

	return &Parameter{
		Type:        ParameterType(propType),
		Title:       valueOrEmpty[string](prop["title"]),
		Description: valueOrEmpty[string](prop["description"]),
		Enum:        enum,
		Properties:  properties,
		Required:    required,
		Items:       items,
	}, nil
}

func mcpContentToMap(contents []mcp.Content) map[string]any {
	for _, c := range contents {
		if txt, ok := c.(*mcp.TextContent); ok {
			var v any
			if err := json.Unmarshal([]byte(txt.Text), &v); err == nil {
				if mapData, ok := v.(map[string]any); ok {
					return mapData
				}

				return map[string]any{
					"result": v,
				}
			}

			return map[string]any{
				"result": txt.Text,
			}
		}
	}

	// No appropriate content found
	return map[string]any{}
}
