package manager

import (
	"McpGateway/internal/config"
	"McpGateway/internal/models"
)

// Collaborators 网关依赖的外部协作者集合
type Collaborators struct {
	Discovery DiscoveryClient
	Auth      AuthClient
	Invoker   ToolInvoker
	Verifier  ToolVerifier
	Prober    HealthProber
	OAuth     OAuthExecutor
}

// Gateway 是工具集成网关的门面。
// 全部可变状态归属于单个构造出的实例，同一进程可安全创建多个网关（如按租户）。
type Gateway struct {
	Registry    ServerRegistryInterface
	Events      *EventBus
	Metrics     *MetricsAggregator
	Catalog     *ToolCatalog
	Resolver    *AvailabilityResolver
	Connections *ConnectionManager
	Sessions    *SessionManager
	Executor    *ToolExecutor
	Health      *HealthMonitor
	Fallback    *FallbackExecutor
}

// NewGateway 组装网关实例
func NewGateway(registry ServerRegistryInterface, collab Collaborators, cfg *config.Config) *Gateway {
	events := NewEventBus()
	metrics := NewMetricsAggregator()

	connections := NewConnectionManager(registry, collab.Auth, events, metrics, cfg)
	sessions := NewSessionManager(connections)

	return &Gateway{
		Registry:    registry,
		Events:      events,
		Metrics:     metrics,
		Catalog:     NewToolCatalog(registry, collab.Discovery, events),
		Resolver:    NewAvailabilityResolver(registry, collab.Verifier, metrics, cfg),
		Connections: connections,
		Sessions:    sessions,
		Executor:    NewToolExecutor(connections, sessions, registry, collab.Invoker, metrics, cfg),
		Health:      NewHealthMonitor(registry, collab.Prober, cfg),
		Fallback:    NewFallbackExecutor(collab.OAuth, metrics),
	}
}

// GetMetrics 返回包含点时活跃连接数的指标快照
func (g *Gateway) GetMetrics() models.Metrics {
	return g.Metrics.Snapshot(g.Connections.ActiveConnectionCount())
}

// ResetMetrics 清零计数器，不影响存活的连接与会话
func (g *Gateway) ResetMetrics() {
	g.Metrics.Reset()
}

// Shutdown 关闭全部连接，进程退出前调用
func (g *Gateway) Shutdown() {
	g.Connections.CloseAll()
}
