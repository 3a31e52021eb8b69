package manager

import (
	"sync"

	"McpGateway/internal/models"
)

// MetricsAggregator 汇总网关级指标。
// 所有计数器由单个实例持有，不使用进程级全局状态。
type MetricsAggregator struct {
	mutex                sync.Mutex
	totalConnections     int
	totalExecutions      int
	successfulExecutions int
	failedExecutions     int
	fallbacksTriggered   int
	toolsMapped          int
	costByProvider       map[string]float64
	connectTimeTotalMs   float64
	connectTimeSamples   int
}

// NewMetricsAggregator 创建指标聚合器
func NewMetricsAggregator() *MetricsAggregator {
	return &MetricsAggregator{
		costByProvider: make(map[string]float64),
	}
}

// RecordConnection 记录一次新建连接及其建连耗时
func (m *MetricsAggregator) RecordConnection(latencyMs float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.totalConnections++
	m.connectTimeTotalMs += latencyMs
	m.connectTimeSamples++
}

// RecordExecution 记录一次工具执行结果及其成本
func (m *MetricsAggregator) RecordExecution(provider string, success bool, costUSD float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.totalExecutions++
	if success {
		m.successfulExecutions++
	} else {
		m.failedExecutions++
	}
	if costUSD > 0 {
		m.costByProvider[provider] += costUSD
	}
}

// RecordFallback 记录一次回退路径触发
func (m *MetricsAggregator) RecordFallback() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.fallbacksTriggered++
}

// RecordMapping 记录一次工具映射创建
func (m *MetricsAggregator) RecordMapping() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.toolsMapped++
}

// Snapshot 返回当前指标快照，activeConnections 由调用方传入以保持点时准确
func (m *MetricsAggregator) Snapshot(activeConnections int) models.Metrics {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	costs := make(map[string]float64, len(m.costByProvider))
	for provider, cost := range m.costByProvider {
		costs[provider] = cost
	}

	avgConnect := 0.0
	if m.connectTimeSamples > 0 {
		avgConnect = m.connectTimeTotalMs / float64(m.connectTimeSamples)
	}

	return models.Metrics{
		TotalConnections:     m.totalConnections,
		ActiveConnections:    activeConnections,
		TotalExecutions:      m.totalExecutions,
		SuccessfulExecutions: m.successfulExecutions,
		FailedExecutions:     m.failedExecutions,
		FallbacksTriggered:   m.fallbacksTriggered,
		ToolsMapped:          m.toolsMapped,
		CostByProvider:       costs,
		AvgConnectionTimeMs:  avgConnect,
	}
}

// Reset 清零全部计数器，不影响存活的连接和会话
func (m *MetricsAggregator) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.totalConnections = 0
	m.totalExecutions = 0
	m.successfulExecutions = 0
	m.failedExecutions = 0
	m.fallbacksTriggered = 0
	m.toolsMapped = 0
	m.costByProvider = make(map[string]float64)
	m.connectTimeTotalMs = 0
	m.connectTimeSamples = 0
}
