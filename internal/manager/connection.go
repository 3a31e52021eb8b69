package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"McpGateway/internal/config"
	"McpGateway/internal/logger"
	"McpGateway/internal/models"
)

// ConnectRequest 建立或复用连接的请求
type ConnectRequest struct {
	Provider     string
	ServerID     string
	ForceRefresh bool
}

// ConnectionManager 持有到工具服务器的已认证连接池。
// 同一 (provider, serverID) 键的并发 Connect 通过按键互斥锁收敛到一条连接。
type ConnectionManager struct {
	registry ServerRegistryInterface
	auth     AuthClient
	events   *EventBus
	metrics  *MetricsAggregator

	connectTimeout time.Duration
	tokenTTL       time.Duration
	refreshMargin  time.Duration
	costCeiling    float64

	mutex       sync.RWMutex
	connections map[string]*models.Connection // connectionID -> 连接
	byKey       map[string]string             // provider|serverID -> connectionID
	keyLocks    map[string]*sync.Mutex        // 按键串行化建连
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager(registry ServerRegistryInterface, auth AuthClient, events *EventBus, metrics *MetricsAggregator, cfg *config.Config) *ConnectionManager {
	return &ConnectionManager{
		registry:       registry,
		auth:           auth,
		events:         events,
		metrics:        metrics,
		connectTimeout: cfg.Gateway.ConnectTimeout,
		tokenTTL:       cfg.Gateway.TokenTTL,
		refreshMargin:  cfg.Gateway.TokenRefreshMargin,
		costCeiling:    cfg.Gateway.MaxCostPerConnection,
		connections:    make(map[string]*models.Connection),
		byKey:          make(map[string]string),
		keyLocks:       make(map[string]*sync.Mutex),
	}
}

func poolKey(provider, serverID string) string {
	return provider + "|" + serverID
}

// keyLock 返回指定键的互斥锁，没有则创建
func (cm *ConnectionManager) keyLock(key string) *sync.Mutex {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	lock, exists := cm.keyLocks[key]
	if !exists {
		lock = &sync.Mutex{}
		cm.keyLocks[key] = lock
	}
	return lock
}

// Connect 建立或复用一条已认证连接。
// 已有同键的 authenticated 连接且未要求强制刷新时直接复用。
// 池键使用解析后的服务器 ID，省略 ServerID 与显式指定同一服务器收敛到同一条连接。
func (cm *ConnectionManager) Connect(ctx context.Context, req ConnectRequest) (*models.Connection, error) {
	cfg, ok := cm.registry.FindServerForProvider(req.Provider, req.ServerID)
	if !ok {
		return nil, fmt.Errorf("no enabled server for provider %s: %w",
			req.Provider, &models.ServerNotFoundError{ServerID: req.ServerID})
	}

	key := poolKey(cfg.Provider, cfg.ID)

	// 同键建连串行化：后到的调用者观察并复用先到者创建的连接
	lock := cm.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	cm.mutex.Lock()
	var replaced *models.Connection
	if connID, exists := cm.byKey[key]; exists {
		conn := cm.connections[connID]
		if conn != nil && conn.State == models.StateAuthenticated && !req.ForceRefresh {
			conn.LastUsedAt = time.Now()
			snapshot := conn.Clone()
			cm.mutex.Unlock()
			logger.Debug("Reusing connection %s for provider %s", snapshot.ID, req.Provider)
			return snapshot, nil
		}
		// 强制刷新或连接不可用：移出旧连接后重建
		if conn != nil {
			conn.State = models.StateClosed
			delete(cm.connections, connID)
			replaced = conn.Clone()
		}
		delete(cm.byKey, key)
	}
	cm.mutex.Unlock()

	if replaced != nil {
		logger.Info("Replacing connection %s (provider: %s)", replaced.ID, replaced.Provider)
		cm.events.emitConnectionChanged(replaced)
	}

	conn := &models.Connection{
		ID:           uuid.New().String(),
		ServerID:     cfg.ID,
		Provider:     cfg.Provider,
		State:        models.StateConnecting,
		RequestCosts: []float64{},
		CreatedAt:    time.Now(),
		LastUsedAt:   time.Now(),
	}

	// 认证必须在连接超时预算内完成，单次 Connect 不做无界重试
	authCtx, cancel := context.WithTimeout(ctx, cm.connectTimeout)
	defer cancel()

	started := time.Now()
	token, err := cm.auth.Authenticate(authCtx, cfg)
	if err != nil {
		conn.State = models.StateError
		return nil, fmt.Errorf("authentication failed for server %s: %w", cfg.ID, err)
	}
	latency := time.Since(started)

	conn.State = models.StateAuthenticated
	conn.Auth = models.AuthState{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
	}
	if token.ExpiresAt.IsZero() {
		conn.Auth.ExpiresAt = time.Now().Add(cm.tokenTTL)
	}

	cm.mutex.Lock()
	cm.connections[conn.ID] = conn
	cm.byKey[key] = conn.ID
	snapshot := conn.Clone()
	cm.mutex.Unlock()

	cm.metrics.RecordConnection(float64(latency.Milliseconds()))
	logger.InfoWithFields("Connection established", map[string]interface{}{
		"connection_id": snapshot.ID,
		"provider":      cfg.Provider,
		"server_id":     cfg.ID,
		"latency_ms":    latency.Milliseconds(),
	})
	cm.events.emitConnectionChanged(snapshot)

	return snapshot, nil
}

// GetConnection 按 ID 查找连接，返回快照
func (cm *ConnectionManager) GetConnection(id string) (*models.Connection, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	conn, exists := cm.connections[id]
	if !exists {
		return nil, false
	}
	return conn.Clone(), true
}

// GetActiveConnections 返回全部未关闭连接的快照
func (cm *ConnectionManager) GetActiveConnections() []*models.Connection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	result := make([]*models.Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		if conn.State != models.StateClosed {
			result = append(result, conn.Clone())
		}
	}
	return result
}

// ActiveConnectionCount 返回未关闭连接数
func (cm *ConnectionManager) ActiveConnectionCount() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	count := 0
	for _, conn := range cm.connections {
		if conn.State != models.StateClosed {
			count++
		}
	}
	return count
}

// CloseConnection 关闭并移出连接，幂等
func (cm *ConnectionManager) CloseConnection(id string) {
	cm.mutex.Lock()
	conn, exists := cm.connections[id]
	if !exists {
		cm.mutex.Unlock()
		return
	}
	conn.State = models.StateClosed
	delete(cm.connections, id)
	delete(cm.byKey, poolKey(conn.Provider, conn.ServerID))
	snapshot := conn.Clone()
	cm.mutex.Unlock()

	logger.Info("Closed connection %s (provider: %s)", id, snapshot.Provider)
	cm.events.emitConnectionChanged(snapshot)
}

// RefreshToken 执行令牌刷新往返。
// 未知连接返回 false 而不是报错。
func (cm *ConnectionManager) RefreshToken(ctx context.Context, connectionID string) bool {
	cm.mutex.RLock()
	conn, exists := cm.connections[connectionID]
	var cfgID, token string
	if exists {
		cfgID = conn.ServerID
		token = conn.Auth.Token
	}
	cm.mutex.RUnlock()

	if !exists {
		return false
	}

	cfg, ok := cm.registry.GetServer(cfgID)
	if !ok {
		return false
	}

	refreshCtx, cancel := context.WithTimeout(ctx, cm.connectTimeout)
	defer cancel()

	fresh, err := cm.auth.Refresh(refreshCtx, cfg, token)
	if err != nil {
		logger.Error("Token refresh failed for connection %s: %v", connectionID, err)
		return false
	}

	cm.mutex.Lock()
	if conn, exists = cm.connections[connectionID]; exists {
		conn.Auth.Token = fresh.Token
		conn.Auth.ExpiresAt = fresh.ExpiresAt
		if fresh.ExpiresAt.IsZero() {
			conn.Auth.ExpiresAt = time.Now().Add(cm.tokenTTL)
		}
		conn.Auth.NeedsRefresh = false
		conn.Auth.LastRefreshed = time.Now()
	}
	cm.mutex.Unlock()

	return exists
}

// NeedsTokenRefresh 判断连接令牌是否临近过期。
// 新建连接必须返回 false。
func (cm *ConnectionManager) NeedsTokenRefresh(connectionID string) bool {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	conn, exists := cm.connections[connectionID]
	if !exists {
		return false
	}
	if conn.Auth.NeedsRefresh {
		return true
	}
	return time.Until(conn.Auth.ExpiresAt) < cm.refreshMargin
}

// ValidateConnection 检查连接是否存在且可用于执行
func (cm *ConnectionManager) ValidateConnection(id string) bool {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	conn, exists := cm.connections[id]
	return exists && conn.State == models.StateAuthenticated
}

// CleanupStaleConnections 移出 lastUsedAt 早于 maxAge 的连接，返回移出数量。
// 新旧判断只看最近使用时间，不看创建时间。
func (cm *ConnectionManager) CleanupStaleConnections(maxAge time.Duration) int {
	now := time.Now()

	cm.mutex.Lock()
	var removed []*models.Connection
	for id, conn := range cm.connections {
		if now.Sub(conn.LastUsedAt) > maxAge {
			conn.State = models.StateClosed
			delete(cm.connections, id)
			delete(cm.byKey, poolKey(conn.Provider, conn.ServerID))
			removed = append(removed, conn.Clone())
		}
	}
	cm.mutex.Unlock()

	for _, conn := range removed {
		logger.Info("Cleaned up stale connection %s (idle since %s)", conn.ID, conn.LastUsedAt.Format(time.RFC3339))
		cm.events.emitConnectionChanged(conn)
	}
	return len(removed)
}

// Touch 更新连接的最近使用时间
func (cm *ConnectionManager) Touch(connectionID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if conn, exists := cm.connections[connectionID]; exists {
		conn.LastUsedAt = time.Now()
	}
}

// RecordRequestCost 向连接追加一笔请求成本并更新总额。
// 总额与逐笔成本在同一临界区内更新，TotalCostUSD == sum(RequestCosts) 恒成立；
// 超过上限只触发告警回调，不中止调用（策略留给订阅方）。
func (cm *ConnectionManager) RecordRequestCost(connectionID string, costUSD float64) {
	cm.mutex.Lock()
	conn, exists := cm.connections[connectionID]
	var total float64
	if exists {
		conn.RequestCosts = append(conn.RequestCosts, costUSD)
		conn.TotalCostUSD += costUSD
		conn.LastUsedAt = time.Now()
		total = conn.TotalCostUSD
	}
	cm.mutex.Unlock()

	if exists && total > cm.costCeiling {
		logger.Warn("Connection %s exceeded cost ceiling: %.4f > %.4f", connectionID, total, cm.costCeiling)
		cm.events.emitCostWarning(connectionID, total, cm.costCeiling)
	}
}

// CloseAll 关闭全部连接，用于进程退出
func (cm *ConnectionManager) CloseAll() {
	cm.mutex.Lock()
	ids := make([]string, 0, len(cm.connections))
	for id := range cm.connections {
		ids = append(ids, id)
	}
	cm.mutex.Unlock()

	for _, id := range ids {
		cm.CloseConnection(id)
	}
}
