package registry

import (
	"sync"
	"time"

	"McpGateway/internal/logger"
	"McpGateway/internal/models"
)

// 内置基线服务器使用的 endpoint 方案，路由到进程内 MCP 服务器
const BuiltinScheme = "builtin:"

// ServerRegistry 保存所有已知工具服务器的配置。
// 纯数据加 CRUD，不做任何 I/O；遍历顺序在单次进程运行内保持稳定。
type ServerRegistry struct {
	mutex   sync.RWMutex
	servers map[string]models.ServerConfig
	order   []string // 注册顺序
}

// NewServerRegistry 创建注册表并预置内置基线服务器
func NewServerRegistry() *ServerRegistry {
	r := &ServerRegistry{
		servers: make(map[string]models.ServerConfig),
	}

	// 预置两个基线提供商的内置服务器，零配置即可使用
	for _, cfg := range BuiltinServers() {
		r.AddServer(cfg)
	}

	return r
}

// BuiltinServers 返回内置基线服务器配置
func BuiltinServers() []models.ServerConfig {
	now := time.Now()
	return []models.ServerConfig{
		{
			ID:           "composio-default",
			Provider:     "composio",
			Name:         "Composio Default",
			Endpoint:     BuiltinScheme + "composio",
			Description:  "Builtin Composio aggregator server",
			Capabilities: []string{"gmail", "slack", "github", "sheets"},
			AuthMethod:   "api_key",
			Enabled:      true,
			CreatedAt:    now,
		},
		{
			ID:           "klavis-default",
			Provider:     "klavis",
			Name:         "Klavis Default",
			Endpoint:     BuiltinScheme + "klavis",
			Description:  "Builtin Klavis aggregator server",
			Capabilities: []string{"gmail", "notion", "whatsapp"},
			AuthMethod:   "api_key",
			Enabled:      true,
			CreatedAt:    now,
		},
	}
}

// AddServer 新增或按 ID 覆盖服务器配置
func (r *ServerRegistry) AddServer(cfg models.ServerConfig) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.servers[cfg.ID]; !exists {
		r.order = append(r.order, cfg.ID)
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	r.servers[cfg.ID] = cfg

	logger.Debug("Registered server %s (provider: %s)", cfg.ID, cfg.Provider)
}

// RemoveServer 删除服务器配置，返回是否存在
func (r *ServerRegistry) RemoveServer(id string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.servers[id]; !exists {
		return false
	}
	delete(r.servers, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// GetServer 按 ID 查找服务器配置
func (r *ServerRegistry) GetServer(id string) (models.ServerConfig, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	cfg, exists := r.servers[id]
	return cfg, exists
}

// GetServers 返回全部服务器配置，按注册顺序
func (r *ServerRegistry) GetServers() []models.ServerConfig {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]models.ServerConfig, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.servers[id])
	}
	return result
}

// GetServersByProvider 返回指定提供商的全部服务器配置
func (r *ServerRegistry) GetServersByProvider(provider string) []models.ServerConfig {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []models.ServerConfig
	for _, id := range r.order {
		if cfg := r.servers[id]; cfg.Provider == provider {
			result = append(result, cfg)
		}
	}
	return result
}

// FindServerForProvider 返回指定提供商下首个启用的服务器。
// serverID 非空时精确匹配该服务器。
func (r *ServerRegistry) FindServerForProvider(provider, serverID string) (models.ServerConfig, bool) {
	if serverID != "" {
		cfg, ok := r.GetServer(serverID)
		if !ok || !cfg.Enabled {
			return models.ServerConfig{}, false
		}
		return cfg, true
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, id := range r.order {
		if cfg := r.servers[id]; cfg.Provider == provider && cfg.Enabled {
			return cfg, true
		}
	}
	return models.ServerConfig{}, false
}

// Count 返回注册的服务器数量
func (r *ServerRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.servers)
}
