package models

import "time"

// ConnectionState 表示连接的生命周期状态
type ConnectionState string

const (
	StateConnecting    ConnectionState = "connecting"
	StateAuthenticated ConnectionState = "authenticated"
	StateError         ConnectionState = "error"
	StateClosed        ConnectionState = "closed"
)

// AuthToken 认证/刷新调用返回的令牌
type AuthToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthState 连接的认证状态
type AuthState struct {
	Token         string    `json:"-"`
	ExpiresAt     time.Time `json:"expires_at"`
	NeedsRefresh  bool      `json:"needs_refresh"`
	LastRefreshed time.Time `json:"last_refreshed"`
}

// Connection 表示到某个工具服务器的一条已认证连接。
// 连接是成本核算的基本单位：TotalCostUSD 必须始终等于 RequestCosts 之和。
type Connection struct {
	ID           string          `json:"id"`
	ServerID     string          `json:"server_id"`
	Provider     string          `json:"provider"`
	State        ConnectionState `json:"state"`
	Auth         AuthState       `json:"auth"`
	TotalCostUSD float64         `json:"total_cost_usd"`
	RequestCosts []float64       `json:"request_costs"`
	CreatedAt    time.Time       `json:"created_at"`
	LastUsedAt   time.Time       `json:"last_used_at"`
}

// Clone 返回连接的深拷贝，用于对外暴露快照而不泄漏内部可变状态
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	dup := *c
	dup.RequestCosts = make([]float64, len(c.RequestCosts))
	copy(dup.RequestCosts, c.RequestCosts)
	return &dup
}
