package mcpclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"McpGateway/internal/logger"
	"McpGateway/internal/manager"
	"McpGateway/internal/models"
	"McpGateway/internal/registry"
)

// headerRoundTripper 实现 http.RoundTripper 接口，用于添加自定义头部
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (hrt *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, value := range hrt.headers {
		req.Header.Set(key, value)
	}
	return hrt.base.RoundTrip(req)
}

// sessionEntry 缓存的 MCP 客户端会话
type sessionEntry struct {
	session *mcp.ClientSession
	client  *mcp.Client
}

// Client 基于 MCP 客户端会话实现发现、调用、校验和探测。
// builtin: 方案的 endpoint 连接进程内服务器，http(s) 方案走 SSE 传输。
type Client struct {
	local *LocalServers

	mutex    sync.Mutex
	sessions map[string]*sessionEntry // serverID -> 会话
}

// NewClient 创建 MCP 客户端协作者
func NewClient(local *LocalServers) *Client {
	return &Client{
		local:    local,
		sessions: make(map[string]*sessionEntry),
	}
}

// DiscoverTools 列出服务器的全部工具
func (c *Client) DiscoverTools(ctx context.Context, cfg models.ServerConfig) ([]models.ToolDescriptor, error) {
	session, err := c.sessionFor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		c.dropSession(cfg.ID)
		return nil, fmt.Errorf("list tools failed: %w", err)
	}

	tools := make([]models.ToolDescriptor, 0, len(result.Tools))
	for _, tool := range result.Tools {
		tools = append(tools, toDescriptor(*tool, cfg.Provider))
	}
	return tools, nil
}

// CallTool 调用服务器上的一个工具
func (c *Client) CallTool(ctx context.Context, cfg models.ServerConfig, toolSlug string, args map[string]interface{}) (*manager.InvokeResult, error) {
	session, err := c.sessionFor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolSlug,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %s failed: %w", toolSlug, err)
	}

	return &manager.InvokeResult{
		Payload: payloadFromContent(result.Content),
		IsError: result.IsError,
	}, nil
}

// VerifyTool 轻量存在性检查：工具出现在服务器目录中即视为存在
func (c *Client) VerifyTool(ctx context.Context, cfg models.ServerConfig, toolSlug string) (bool, error) {
	session, err := c.sessionFor(ctx, cfg)
	if err != nil {
		return false, err
	}

	result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return false, fmt.Errorf("list tools failed: %w", err)
	}
	for _, tool := range result.Tools {
		if tool.Name == toolSlug {
			return true, nil
		}
	}
	return false, nil
}

// Probe 通过一次目录往返测量服务器的可达性与时延
func (c *Client) Probe(ctx context.Context, cfg models.ServerConfig) (time.Duration, error) {
	started := time.Now()

	session, err := c.sessionFor(ctx, cfg)
	if err != nil {
		return time.Since(started), err
	}
	if _, err := session.ListTools(ctx, &mcp.ListToolsParams{}); err != nil {
		c.dropSession(cfg.ID)
		return time.Since(started), fmt.Errorf("probe failed: %w", err)
	}
	return time.Since(started), nil
}

// Close 关闭全部缓存会话
func (c *Client) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for serverID, entry := range c.sessions {
		entry.session.Close()
		delete(c.sessions, serverID)
	}
}

// sessionFor 返回某服务器的客户端会话，没有则建立
func (c *Client) sessionFor(ctx context.Context, cfg models.ServerConfig) (*mcp.ClientSession, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, exists := c.sessions[cfg.ID]; exists {
		return entry.session, nil
	}

	var entry *sessionEntry
	var err error
	switch {
	case strings.HasPrefix(cfg.Endpoint, registry.BuiltinScheme):
		entry, err = c.connectBuiltin(ctx, cfg)
	case strings.HasPrefix(cfg.Endpoint, "http://"), strings.HasPrefix(cfg.Endpoint, "https://"):
		entry, err = c.connectSSE(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported endpoint %q for server %s", cfg.Endpoint, cfg.ID)
	}
	if err != nil {
		return nil, err
	}

	c.sessions[cfg.ID] = entry
	return entry.session, nil
}

// connectBuiltin 通过内存传输连接进程内服务器
func (c *Client) connectBuiltin(ctx context.Context, cfg models.ServerConfig) (*sessionEntry, error) {
	server, err := c.local.ServerFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build builtin server %s: %w", cfg.ID, err)
	}

	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	if _, err := server.Connect(ctx, serverTransport); err != nil {
		return nil, fmt.Errorf("failed to start builtin server %s: %w", cfg.ID, err)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "mcp-gateway-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to builtin server %s: %w", cfg.ID, err)
	}

	logger.Debug("Connected to builtin server %s", cfg.ID)
	return &sessionEntry{session: session, client: client}, nil
}

// connectSSE 通过 SSE 传输连接远程服务器
func (c *Client) connectSSE(ctx context.Context, cfg models.ServerConfig) (*sessionEntry, error) {
	logger.Info("Connecting to remote MCP server: %s", cfg.Endpoint)

	options := &mcp.SSEClientTransportOptions{}

	// API 密钥认证走自定义头部
	if cfg.AuthMethod == "api_key" {
		if apiKey, ok := cfg.Metadata["api_key"].(string); ok && apiKey != "" {
			headerName := "X-API-Key"
			if h, ok := cfg.Metadata["api_key_header"].(string); ok && h != "" {
				headerName = h
			}
			options.HTTPClient = &http.Client{
				Transport: &headerRoundTripper{
					base:    http.DefaultTransport,
					headers: map[string]string{headerName: apiKey},
				},
			}
		}
	}

	transport := mcp.NewSSEClientTransport(cfg.Endpoint, options)

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "mcp-gateway-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote server %s: %w", cfg.ID, err)
	}

	return &sessionEntry{session: session, client: client}, nil
}

// dropSession 丢弃失效会话，下次调用时重连
func (c *Client) dropSession(serverID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, exists := c.sessions[serverID]; exists {
		entry.session.Close()
		delete(c.sessions, serverID)
	}
}

// toDescriptor 将 MCP 工具定义转换为网关的工具描述。
// 类别取 slug 的第二个下划线段（PROVIDER_CAPABILITY_ACTION 约定），仅用于过滤和排查。
func toDescriptor(tool mcp.Tool, provider string) models.ToolDescriptor {
	return models.ToolDescriptor{
		Slug:        tool.Name,
		Name:        tool.Name,
		Description: tool.Description,
		Category:    categoryFromSlug(tool.Name),
		Provider:    provider,
		InputSchema: tool.InputSchema,
	}
}

func categoryFromSlug(slug string) string {
	parts := strings.Split(slug, "_")
	if len(parts) >= 2 {
		return strings.ToLower(parts[1])
	}
	return "general"
}

// payloadFromContent 将 MCP 内容块折叠为结构化负载
func payloadFromContent(content []mcp.Content) models.JSONB {
	var texts []string
	for _, block := range content {
		if text, ok := block.(*mcp.TextContent); ok {
			texts = append(texts, text.Text)
		}
	}
	payload := models.JSONB{}
	if len(texts) > 0 {
		payload["text"] = strings.Join(texts, "\n")
	}
	return payload
}
