package mcpclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"McpGateway/internal/handlers"
	"McpGateway/internal/logger"
	"McpGateway/internal/models"
)

// LocalServers 按需构建并缓存进程内的内置 MCP 服务器。
// 内置服务器让网关在零配置、无网络的情况下即可发现和执行工具。
type LocalServers struct {
	handlerRegistry *handlers.ToolHandlerRegistry

	mutex   sync.Mutex
	servers map[string]*mcp.Server // serverID -> 已构建的服务器
}

// NewLocalServers 创建内置服务器工厂
func NewLocalServers(handlerRegistry *handlers.ToolHandlerRegistry) *LocalServers {
	return &LocalServers{
		handlerRegistry: handlerRegistry,
		servers:         make(map[string]*mcp.Server),
	}
}

// ServerFor 返回某内置服务器配置对应的进程内 MCP 服务器，没有则构建
func (ls *LocalServers) ServerFor(cfg models.ServerConfig) (*mcp.Server, error) {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	if server, exists := ls.servers[cfg.ID]; exists {
		return server, nil
	}

	server, err := ls.buildServer(cfg)
	if err != nil {
		return nil, err
	}
	ls.servers[cfg.ID] = server
	return server, nil
}

// buildServer 根据配置的能力集组装内置服务器
func (ls *LocalServers) buildServer(cfg models.ServerConfig) (*mcp.Server, error) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    fmt.Sprintf("builtin-%s", cfg.Provider),
		Version: "1.0.0",
	}, nil)

	specs := handlers.BuiltinToolSet(cfg.Provider, cfg.Capabilities)
	for _, spec := range specs {
		handler, exists := ls.handlerRegistry.GetHandler(spec.HandlerType)
		if !exists {
			logger.Warn("No handler found for type: %s (tool: %s)", spec.HandlerType, spec.Tool.Name)
			continue
		}

		tool := spec.Tool
		ls.addTool(server, tool, handler)
	}

	logger.Info("Built builtin server %s with %d tools", cfg.ID, len(specs))
	return server, nil
}

// addTool 将处理器包装为 ToolHandlerFor 类型后挂到服务器上
func (ls *LocalServers) addTool(server *mcp.Server, tool mcp.Tool, handler handlers.ToolHandler) {
	toolHandler := func(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResultFor[any], error) {
		// 转换参数类型
		callParams := &mcp.CallToolParams{
			Name:      params.Name,
			Arguments: params.Arguments,
		}
		result, err := handler(ctx, session, callParams)
		if err != nil {
			return nil, err
		}
		// 转换返回类型
		return &mcp.CallToolResultFor[any]{
			Content: result.Content,
			IsError: result.IsError,
		}, nil
	}

	mcp.AddTool(server, &tool, toolHandler)
}
