package models

import "time"

// 回退策略类型
const (
	FallbackDirectOAuth = "direct_oauth"
	FallbackDynamicAPI  = "dynamic_api"
)

// OAuthConfig 表示直连 OAuth 回退所需的提供商配置
type OAuthConfig struct {
	Provider string   `json:"provider"`
	Scopes   []string `json:"scopes,omitempty"`
}

// FallbackStrategy 表示无可用映射时派生出的回退执行路径
type FallbackStrategy struct {
	Type     string       `json:"type"`
	Priority int          `json:"priority"`
	OAuth    *OAuthConfig `json:"oauth,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// ProviderOption 表示可服务某目录工具的一个候选提供商
type ProviderOption struct {
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
}

// AvailabilityResult 表示一次可用性查询的结果，按查询计算，不持久化
type AvailabilityResult struct {
	ToolID              string            `json:"tool_id"`
	Available           bool              `json:"available"`
	Providers           []ProviderOption  `json:"providers"`
	RecommendedProvider string            `json:"recommended_provider,omitempty"`
	FallbackRequired    bool              `json:"fallback_required"`
	Fallback            *FallbackStrategy `json:"fallback,omitempty"`
}

// FallbackResult 表示一次回退执行的结果
type FallbackResult struct {
	Success      bool   `json:"success"`
	FallbackUsed bool   `json:"fallback_used"`
	FallbackType string `json:"fallback_type"`
	Detail       string `json:"detail,omitempty"`
}

// ServerHealth 表示某服务器最近一次健康检查的结果，按服务器覆盖缓存
type ServerHealth struct {
	ServerID       string    `json:"server_id"`
	Provider       string    `json:"provider"`
	Healthy        bool      `json:"healthy"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	LastCheck      time.Time `json:"last_check"`
}

// Metrics 表示网关级的聚合指标快照
type Metrics struct {
	TotalConnections     int                `json:"total_connections"`
	ActiveConnections    int                `json:"active_connections"`
	TotalExecutions      int                `json:"total_executions"`
	SuccessfulExecutions int                `json:"successful_executions"`
	FailedExecutions     int                `json:"failed_executions"`
	FallbacksTriggered   int                `json:"fallbacks_triggered"`
	ToolsMapped          int                `json:"tools_mapped"`
	CostByProvider       map[string]float64 `json:"cost_by_provider"`
	AvgConnectionTimeMs  float64            `json:"avg_connection_time_ms"`
}
