package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolHandler 定义工具处理器的接口
type ToolHandler func(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParams) (*mcp.CallToolResult, error)

// ToolSpec 一个内置工具的定义及其处理器类型
type ToolSpec struct {
	Tool        mcp.Tool
	Category    string
	HandlerType string
}

// ToolHandlerRegistry 工具处理器注册表
type ToolHandlerRegistry struct {
	handlers map[string]ToolHandler
}

// NewToolHandlerRegistry 创建新的工具处理器注册表
func NewToolHandlerRegistry() *ToolHandlerRegistry {
	registry := &ToolHandlerRegistry{
		handlers: make(map[string]ToolHandler),
	}

	// 注册内置处理器
	registry.RegisterBuiltinHandlers()

	return registry
}

// RegisterHandler 注册处理器
func (r *ToolHandlerRegistry) RegisterHandler(handlerType string, handler ToolHandler) {
	r.handlers[handlerType] = handler
}

// GetHandler 获取处理器
func (r *ToolHandlerRegistry) GetHandler(handlerType string) (ToolHandler, bool) {
	handler, exists := r.handlers[handlerType]
	return handler, exists
}

// RegisterBuiltinHandlers 注册内置处理器
func (r *ToolHandlerRegistry) RegisterBuiltinHandlers() {
	// Echo 处理器 - 原样返回输入参数，用于联通性验证
	r.RegisterHandler("builtin_echo", func(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
		message := fmt.Sprintf("Echo from tool '%s' with args: %v", params.Name, params.Arguments)
		return textResult(message), nil
	})

	// Send 处理器 - 模拟向外部应用投递一条消息
	r.RegisterHandler("builtin_send", func(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
		args := argumentsMap(params)
		recipient, _ := args["recipient"].(string)
		if recipient == "" {
			recipient = "unknown"
		}
		body, _ := args["body"].(string)

		message := fmt.Sprintf("Delivered %d bytes to %s via %s at %s",
			len(body), recipient, params.Name, time.Now().Format(time.RFC3339))
		return textResult(message), nil
	})

	// Read 处理器 - 模拟从外部应用读取数据
	r.RegisterHandler("builtin_read", func(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
		args := argumentsMap(params)
		query, _ := args["query"].(string)
		message := fmt.Sprintf("Read 0 records for query %q from %s", query, params.Name)
		return textResult(message), nil
	})

	// Status 处理器 - 返回系统状态
	r.RegisterHandler("builtin_status", func(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
		return textResult("System is running normally"), nil
	})
}

// BuiltinToolSet 根据提供商及其能力生成内置工具集。
// 工具 slug 前缀携带提供商标识，便于人工排查。
func BuiltinToolSet(provider string, capabilities []string) []ToolSpec {
	prefix := strings.ToUpper(provider)
	var specs []ToolSpec

	for _, capability := range capabilities {
		capUpper := strings.ToUpper(capability)

		switch capability {
		case "gmail":
			specs = append(specs, ToolSpec{
				Tool: mcp.Tool{
					Name:        fmt.Sprintf("%s_%s_SEND_EMAIL", prefix, capUpper),
					Description: fmt.Sprintf("Send an email through %s via %s", capability, provider),
					InputSchema: messageSchema(),
				},
				Category:    capability,
				HandlerType: "builtin_send",
			})
		case "slack", "whatsapp":
			specs = append(specs, ToolSpec{
				Tool: mcp.Tool{
					Name:        fmt.Sprintf("%s_%s_SEND_MESSAGE", prefix, capUpper),
					Description: fmt.Sprintf("Post a message to %s via %s", capability, provider),
					InputSchema: messageSchema(),
				},
				Category:    capability,
				HandlerType: "builtin_send",
			})
		case "sheets", "notion":
			specs = append(specs, ToolSpec{
				Tool: mcp.Tool{
					Name:        fmt.Sprintf("%s_%s_READ_RECORDS", prefix, capUpper),
					Description: fmt.Sprintf("Read records from %s via %s", capability, provider),
					InputSchema: querySchema(),
				},
				Category:    capability,
				HandlerType: "builtin_read",
			})
		case "github":
			specs = append(specs, ToolSpec{
				Tool: mcp.Tool{
					Name:        fmt.Sprintf("%s_%s_CREATE_ISSUE", prefix, capUpper),
					Description: fmt.Sprintf("Create an issue on %s via %s", capability, provider),
					InputSchema: messageSchema(),
				},
				Category:    capability,
				HandlerType: "builtin_send",
			})
		default:
			specs = append(specs, ToolSpec{
				Tool: mcp.Tool{
					Name:        fmt.Sprintf("%s_%s_ECHO", prefix, capUpper),
					Description: fmt.Sprintf("Echo tool for capability %s via %s", capability, provider),
				},
				Category:    capability,
				HandlerType: "builtin_echo",
			})
		}
	}

	// 每个内置服务器都带一个状态工具
	specs = append(specs, ToolSpec{
		Tool: mcp.Tool{
			Name:        fmt.Sprintf("%s_STATUS", prefix),
			Description: fmt.Sprintf("Report status of the builtin %s server", provider),
		},
		Category:    "system",
		HandlerType: "builtin_status",
	})

	return specs
}

// argumentsMap 类型断言获取参数
func argumentsMap(params *mcp.CallToolParams) map[string]interface{} {
	args, ok := params.Arguments.(map[string]interface{})
	if !ok {
		return make(map[string]interface{})
	}
	return args
}

func textResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
	}
}

func messageSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"recipient": {Type: "string", Description: "Target address, channel or repository"},
			"subject":   {Type: "string", Description: "Optional subject line or title"},
			"body":      {Type: "string", Description: "Message body"},
		},
	}
}

func querySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {Type: "string", Description: "Selection query"},
			"limit": {Type: "integer", Description: "Maximum records to return"},
		},
	}
}
