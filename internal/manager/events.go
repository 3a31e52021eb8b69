package manager

import (
	"sync"

	"McpGateway/internal/models"
)

// ConnectionChangedFunc 连接状态变化回调
type ConnectionChangedFunc func(conn *models.Connection)

// ToolDiscoveredFunc 工具发现回调，携带完整的新工具列表
type ToolDiscoveredFunc func(serverID string, tools []models.ToolDescriptor)

// CostWarningFunc 成本告警回调
type CostWarningFunc func(connectionID string, totalCostUSD float64, ceiling float64)

// EventBus 在状态变化点同步触发已注册的回调
type EventBus struct {
	mutex               sync.RWMutex
	onConnectionChanged []ConnectionChangedFunc
	onToolDiscovered    []ToolDiscoveredFunc
	onCostWarning       []CostWarningFunc
}

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	return &EventBus{}
}

// OnConnectionChanged 注册连接状态变化回调
func (b *EventBus) OnConnectionChanged(fn ConnectionChangedFunc) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.onConnectionChanged = append(b.onConnectionChanged, fn)
}

// OnToolDiscovered 注册工具发现回调
func (b *EventBus) OnToolDiscovered(fn ToolDiscoveredFunc) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.onToolDiscovered = append(b.onToolDiscovered, fn)
}

// OnCostWarning 注册成本告警回调
func (b *EventBus) OnCostWarning(fn CostWarningFunc) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.onCostWarning = append(b.onCostWarning, fn)
}

func (b *EventBus) emitConnectionChanged(conn *models.Connection) {
	b.mutex.RLock()
	callbacks := make([]ConnectionChangedFunc, len(b.onConnectionChanged))
	copy(callbacks, b.onConnectionChanged)
	b.mutex.RUnlock()

	for _, fn := range callbacks {
		fn(conn)
	}
}

func (b *EventBus) emitToolDiscovered(serverID string, tools []models.ToolDescriptor) {
	b.mutex.RLock()
	callbacks := make([]ToolDiscoveredFunc, len(b.onToolDiscovered))
	copy(callbacks, b.onToolDiscovered)
	b.mutex.RUnlock()

	for _, fn := range callbacks {
		fn(serverID, tools)
	}
}

func (b *EventBus) emitCostWarning(connectionID string, total, ceiling float64) {
	b.mutex.RLock()
	callbacks := make([]CostWarningFunc, len(b.onCostWarning))
	copy(callbacks, b.onCostWarning)
	b.mutex.RUnlock()

	for _, fn := range callbacks {
		fn(connectionID, total, ceiling)
	}
}
