package manager

import (
	"context"
	"sync"
	"time"

	"McpGateway/internal/config"
	"McpGateway/internal/logger"
	"McpGateway/internal/models"
)

// HealthMonitor 按需探测服务器可达性并缓存最近一次结果。
// 不自带定时器，由宿主应用的调度器周期性调用。
type HealthMonitor struct {
	registry ServerRegistryInterface
	prober   HealthProber
	timeout  time.Duration

	mutex   sync.RWMutex
	results map[string]models.ServerHealth // serverID -> 最近一次检查，覆盖写
}

// NewHealthMonitor 创建健康监控器
func NewHealthMonitor(registry ServerRegistryInterface, prober HealthProber, cfg *config.Config) *HealthMonitor {
	return &HealthMonitor{
		registry: registry,
		prober:   prober,
		timeout:  cfg.Gateway.HealthProbeTimeout,
		results:  make(map[string]models.ServerHealth),
	}
}

// CheckServerHealth 对指定服务器执行一次限时探测，缓存并返回结果
func (hm *HealthMonitor) CheckServerHealth(ctx context.Context, serverID string) (models.ServerHealth, error) {
	cfg, exists := hm.registry.GetServer(serverID)
	if !exists {
		return models.ServerHealth{}, &models.ServerNotFoundError{ServerID: serverID}
	}

	probeCtx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	latency, err := hm.prober.Probe(probeCtx, cfg)

	health := models.ServerHealth{
		ServerID:       serverID,
		Provider:       cfg.Provider,
		Healthy:        err == nil,
		ResponseTimeMs: latency.Milliseconds(),
		LastCheck:      time.Now(),
	}
	if err != nil {
		logger.Warn("Health probe failed for server %s: %v", serverID, err)
	}

	hm.mutex.Lock()
	hm.results[serverID] = health
	hm.mutex.Unlock()

	return health, nil
}

// GetCachedHealth 返回某服务器最近一次缓存的检查结果
func (hm *HealthMonitor) GetCachedHealth(serverID string) (models.ServerHealth, bool) {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	health, exists := hm.results[serverID]
	return health, exists
}

// CheckAllServers 探测注册表中全部启用的服务器
func (hm *HealthMonitor) CheckAllServers(ctx context.Context) []models.ServerHealth {
	var results []models.ServerHealth
	for _, cfg := range hm.registry.GetServers() {
		if !cfg.Enabled {
			continue
		}
		health, err := hm.CheckServerHealth(ctx, cfg.ID)
		if err != nil {
			continue
		}
		results = append(results, health)
	}
	return results
}
