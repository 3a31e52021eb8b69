package models

import "time"

// 执行失败的分类，用于指标统计和调用方分支判断
const (
	ErrorTypeValidation = "validation"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeProvider   = "provider"
	ErrorTypeConnection = "connection"
)

// ExecutionError 表示一次工具执行失败的分类信息
type ExecutionError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *ExecutionError) Error() string {
	return e.Type + ": " + e.Message
}

// ExecutionResult 表示一次工具执行的结果，生成后不可变
type ExecutionResult struct {
	Success    bool            `json:"success"`
	RequestID  string          `json:"request_id"`
	ToolSlug   string          `json:"tool_slug"`
	Provider   string          `json:"provider"`
	DurationMs int64           `json:"duration_ms"`
	CostUSD    float64         `json:"cost_usd"`
	RetryCount int             `json:"retry_count"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    JSONB           `json:"payload,omitempty"`
	Error      *ExecutionError `json:"error,omitempty"`
}

// Session 表示共享同一连接的一组工具执行。
// 不变式：OperationCount == len(Results)，SessionCostUSD == sum(Results[].CostUSD)。
type Session struct {
	ID             string            `json:"id"`
	ConnectionID   string            `json:"connection_id"`
	Active         bool              `json:"active"`
	Results        []ExecutionResult `json:"results"`
	OperationCount int               `json:"operation_count"`
	SessionCostUSD float64           `json:"session_cost_usd"`
	CreatedAt      time.Time         `json:"created_at"`
	EndedAt        time.Time         `json:"ended_at,omitempty"`
}

// Clone 返回会话的深拷贝
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	dup := *s
	dup.Results = make([]ExecutionResult, len(s.Results))
	copy(dup.Results, s.Results)
	return &dup
}
