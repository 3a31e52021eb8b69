package manager

import (
	"context"
	"time"

	"McpGateway/internal/models"
)

// ServerRegistryInterface 管理器消费的服务器注册表接口
type ServerRegistryInterface interface {
	GetServer(id string) (models.ServerConfig, bool)
	GetServers() []models.ServerConfig
	GetServersByProvider(provider string) []models.ServerConfig
	FindServerForProvider(provider, serverID string) (models.ServerConfig, bool)
}

// DiscoveryClient 工具发现调用。
// 网络失败必须以错误形式返回，不得以空目录掩盖。
type DiscoveryClient interface {
	DiscoverTools(ctx context.Context, cfg models.ServerConfig) ([]models.ToolDescriptor, error)
}

// AuthClient 认证与令牌刷新调用
type AuthClient interface {
	Authenticate(ctx context.Context, cfg models.ServerConfig) (models.AuthToken, error)
	Refresh(ctx context.Context, cfg models.ServerConfig, existing string) (models.AuthToken, error)
}

// InvokeResult 一次工具调用的原始返回
type InvokeResult struct {
	Payload models.JSONB
	CostUSD float64
	IsError bool
}

// ToolInvoker 实际的提供商 RPC 调用
type ToolInvoker interface {
	CallTool(ctx context.Context, cfg models.ServerConfig, toolSlug string, args map[string]interface{}) (*InvokeResult, error)
}

// ToolVerifier 轻量存在性检查，供映射校验使用
type ToolVerifier interface {
	VerifyTool(ctx context.Context, cfg models.ServerConfig, toolSlug string) (bool, error)
}

// HealthProber 服务器可达性探测
type HealthProber interface {
	Probe(ctx context.Context, cfg models.ServerConfig) (time.Duration, error)
}

// OAuthExecutor 直连 OAuth 回退调用
type OAuthExecutor interface {
	ExecuteOAuth(ctx context.Context, oauth models.OAuthConfig, catalogToolID string) (models.JSONB, error)
}
