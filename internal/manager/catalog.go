package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"McpGateway/internal/logger"
	"McpGateway/internal/models"
)

// DiscoverOptions 工具发现选项
type DiscoverOptions struct {
	ForceRefresh bool
	Category     string
}

// catalogEntry 单个服务器的工具目录缓存项，整体替换，从不原地修改
type catalogEntry struct {
	provider     string
	tools        []models.ToolDescriptor
	discoveredAt time.Time
}

// ToolCatalog 按服务器缓存已发现的工具列表
type ToolCatalog struct {
	registry  ServerRegistryInterface
	discovery DiscoveryClient
	events    *EventBus

	mutex   sync.RWMutex
	entries map[string]*catalogEntry // serverID -> 缓存项
}

// NewToolCatalog 创建工具目录缓存
func NewToolCatalog(registry ServerRegistryInterface, discovery DiscoveryClient, events *EventBus) *ToolCatalog {
	return &ToolCatalog{
		registry:  registry,
		discovery: discovery,
		events:    events,
		entries:   make(map[string]*catalogEntry),
	}
}

// DiscoverTools 发现指定服务器的工具。
// 缓存命中且未强制刷新时直接返回缓存，按 Category 过滤不会修改缓存本体。
func (tc *ToolCatalog) DiscoverTools(ctx context.Context, serverID string, opts DiscoverOptions) (*models.DiscoveryResult, error) {
	cfg, exists := tc.registry.GetServer(serverID)
	if !exists {
		return nil, &models.ServerNotFoundError{ServerID: serverID}
	}

	if !opts.ForceRefresh {
		tc.mutex.RLock()
		entry, cached := tc.entries[serverID]
		tc.mutex.RUnlock()

		if cached {
			logger.Debug("Catalog cache hit for server %s (%d tools)", serverID, len(entry.tools))
			return &models.DiscoveryResult{
				ServerID:     serverID,
				Provider:     entry.provider,
				Tools:        filterByCategory(entry.tools, opts.Category),
				DiscoveredAt: entry.discoveredAt,
				FromCache:    true,
			}, nil
		}
	}

	// 缓存未命中或强制刷新，执行一次发现往返
	tools, err := tc.discovery.DiscoverTools(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tool discovery failed for server %s: %w", serverID, err)
	}

	entry := &catalogEntry{
		provider:     cfg.Provider,
		tools:        tools,
		discoveredAt: time.Now(),
	}

	// 原子替换整个列表，并发读者不会看到半更新状态
	tc.mutex.Lock()
	tc.entries[serverID] = entry
	tc.mutex.Unlock()

	logger.Info("Discovered %d tools from server %s (provider: %s)", len(tools), serverID, cfg.Provider)
	tc.events.emitToolDiscovered(serverID, tools)

	return &models.DiscoveryResult{
		ServerID:     serverID,
		Provider:     cfg.Provider,
		Tools:        filterByCategory(tools, opts.Category),
		DiscoveredAt: entry.discoveredAt,
	}, nil
}

// GetCachedTools 返回某服务器的缓存工具列表，不触发发现
func (tc *ToolCatalog) GetCachedTools(serverID string) ([]models.ToolDescriptor, bool) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	entry, exists := tc.entries[serverID]
	if !exists {
		return nil, false
	}
	return entry.tools, true
}

// FindToolBySlug 在某服务器的缓存目录中按 slug 查找工具
func (tc *ToolCatalog) FindToolBySlug(serverID, slug string) (models.ToolDescriptor, bool) {
	tools, cached := tc.GetCachedTools(serverID)
	if !cached {
		return models.ToolDescriptor{}, false
	}
	for _, tool := range tools {
		if tool.Slug == slug {
			return tool, true
		}
	}
	return models.ToolDescriptor{}, false
}

// Invalidate 清除某服务器的缓存目录
func (tc *ToolCatalog) Invalidate(serverID string) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	delete(tc.entries, serverID)
}

// filterByCategory 按类别过滤，返回新切片
func filterByCategory(tools []models.ToolDescriptor, category string) []models.ToolDescriptor {
	if category == "" {
		result := make([]models.ToolDescriptor, len(tools))
		copy(result, tools)
		return result
	}

	var result []models.ToolDescriptor
	for _, tool := range tools {
		if tool.Category == category {
			result = append(result, tool)
		}
	}
	return result
}
