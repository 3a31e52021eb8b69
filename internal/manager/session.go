package manager

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"McpGateway/internal/logger"
	"McpGateway/internal/models"
)

// SessionManager 将共享同一连接的多次执行聚合为逻辑会话
type SessionManager struct {
	connections *ConnectionManager

	mutex    sync.RWMutex
	sessions map[string]*models.Session
}

// NewSessionManager 创建会话管理器
func NewSessionManager(connections *ConnectionManager) *SessionManager {
	return &SessionManager{
		connections: connections,
		sessions:    make(map[string]*models.Session),
	}
}

// CreateSession 在已有连接上创建会话。
// 连接不存在时返回错误：没有底层连接的会话没有意义。
func (sm *SessionManager) CreateSession(connectionID string) (*models.Session, error) {
	if _, exists := sm.connections.GetConnection(connectionID); !exists {
		return nil, fmt.Errorf("cannot create session: %w",
			&models.ConnectionNotFoundError{ConnectionID: connectionID})
	}

	session := &models.Session{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		Active:       true,
		Results:      []models.ExecutionResult{},
		CreatedAt:    time.Now(),
	}

	sm.mutex.Lock()
	sm.sessions[session.ID] = session
	snapshot := session.Clone()
	sm.mutex.Unlock()

	logger.Info("Created session %s on connection %s", snapshot.ID, connectionID)
	return snapshot, nil
}

// GetSession 按 ID 查找会话，返回快照
func (sm *SessionManager) GetSession(sessionID string) (*models.Session, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return nil, false
	}
	return session.Clone(), true
}

// GetSessions 返回全部会话快照
func (sm *SessionManager) GetSessions() []*models.Session {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	result := make([]*models.Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		result = append(result, session.Clone())
	}
	return result
}

// AddSessionResult 向会话追加一次执行结果。
// 结果、计数与成本在同一临界区内更新，保持会话不变式；
// 会话不存在时静默跳过，容忍尽力而为的埋点调用。
func (sm *SessionManager) AddSessionResult(sessionID string, result models.ExecutionResult) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return
	}
	session.Results = append(session.Results, result)
	session.OperationCount = len(session.Results)
	session.SessionCostUSD += result.CostUSD
}

// EndSession 结束会话但保留记录，供审计与后续清理
func (sm *SessionManager) EndSession(sessionID string) bool {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists || !session.Active {
		return false
	}
	session.Active = false
	session.EndedAt = time.Now()
	return true
}

// CleanupCompletedSessions 清除结束超过 maxAge 的非活跃会话，返回清除数量。
// 活跃会话和刚结束的会话一律保留。
func (sm *SessionManager) CleanupCompletedSessions(maxAge time.Duration) int {
	now := time.Now()

	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	removed := 0
	for id, session := range sm.sessions {
		if session.Active || session.EndedAt.IsZero() {
			continue
		}
		if now.Sub(session.EndedAt) > maxAge {
			delete(sm.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Info("Cleaned up %d completed sessions", removed)
	}
	return removed
}
