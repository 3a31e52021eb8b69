package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"McpGateway/internal/config"
	"McpGateway/internal/logger"
	"McpGateway/internal/models"
)

// ExecutionContext 执行的调用方上下文
type ExecutionContext struct {
	OperationID string
	SessionID   string
}

// ExecuteOptions 执行可选项
type ExecuteOptions struct {
	Timeout   time.Duration
	TrackCost *bool
}

// ExecuteRequest 一次工具执行请求
type ExecuteRequest struct {
	Mapping    models.ToolMapping
	Parameters map[string]interface{}
	Context    ExecutionContext
	Options    *ExecuteOptions
}

// ToolExecutor 在已建立的连接上执行单次工具调用
type ToolExecutor struct {
	connections *ConnectionManager
	sessions    *SessionManager
	registry    ServerRegistryInterface
	invoker     ToolInvoker
	metrics     *MetricsAggregator

	defaultTimeout time.Duration
	defaultCost    float64
	costCeiling    float64
}

// NewToolExecutor 创建工具执行器
func NewToolExecutor(connections *ConnectionManager, sessions *SessionManager, registry ServerRegistryInterface, invoker ToolInvoker, metrics *MetricsAggregator, cfg *config.Config) *ToolExecutor {
	return &ToolExecutor{
		connections:    connections,
		sessions:       sessions,
		registry:       registry,
		invoker:        invoker,
		metrics:        metrics,
		defaultTimeout: cfg.Gateway.DefaultTimeout,
		defaultCost:    cfg.Gateway.DefaultRequestCost,
		costCeiling:    cfg.Gateway.MaxCostPerConnection,
	}
}

// ExecuteTool 执行一次工具调用。
// 任何失败都以结构化 ExecutionResult 返回，不向调用方泄漏未分类异常。
func (te *ToolExecutor) ExecuteTool(ctx context.Context, req ExecuteRequest) models.ExecutionResult {
	started := time.Now()
	result := models.ExecutionResult{
		RequestID: uuid.New().String(),
		ToolSlug:  req.Mapping.MCPToolSlug,
		Provider:  req.Mapping.Provider,
		Timestamp: started,
	}

	// 本地参数校验失败不发起外部调用，也不计入提供商健康指标
	translated, err := translateParameters(req.Parameters, req.Mapping.ParameterMappings)
	if err != nil {
		result.Error = &models.ExecutionError{Type: models.ErrorTypeValidation, Message: err.Error()}
		result.DurationMs = durationMs(started)
		te.appendToSession(req.Context.SessionID, result)
		logger.Warn("Execution %s rejected: %v", result.RequestID, err)
		return result
	}

	conn, err := te.connections.Connect(ctx, ConnectRequest{
		Provider: req.Mapping.Provider,
		ServerID: req.Mapping.ServerID,
	})
	if err != nil {
		result.Error = &models.ExecutionError{Type: models.ErrorTypeConnection, Message: err.Error()}
		result.DurationMs = durationMs(started)
		te.metrics.RecordExecution(req.Mapping.Provider, false, 0)
		te.appendToSession(req.Context.SessionID, result)
		return result
	}

	cfg, ok := te.registry.GetServer(conn.ServerID)
	if !ok {
		result.Error = &models.ExecutionError{
			Type:    models.ErrorTypeConnection,
			Message: fmt.Sprintf("server %s disappeared from registry", conn.ServerID),
		}
		result.DurationMs = durationMs(started)
		te.metrics.RecordExecution(req.Mapping.Provider, false, 0)
		te.appendToSession(req.Context.SessionID, result)
		return result
	}

	timeout := te.defaultTimeout
	trackCost := true
	if req.Options != nil {
		if req.Options.Timeout > 0 {
			timeout = req.Options.Timeout
		}
		if req.Options.TrackCost != nil {
			trackCost = *req.Options.TrackCost
		}
	}

	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type invokeOutcome struct {
		res *InvokeResult
		err error
	}
	outcome := make(chan invokeOutcome, 1)
	go func() {
		res, invokeErr := te.invoker.CallTool(invokeCtx, cfg, req.Mapping.MCPToolSlug, translated)
		outcome <- invokeOutcome{res: res, err: invokeErr}
	}()

	var invoked *InvokeResult
	var invokeErr error
	select {
	case o := <-outcome:
		invoked, invokeErr = o.res, o.err
	case <-invokeCtx.Done():
		// 超时或调用方撤销：连接保持 authenticated，可继续复用
		result.Error = &models.ExecutionError{
			Type:    models.ErrorTypeTimeout,
			Message: fmt.Sprintf("tool call did not return within %s: %v", timeout, invokeCtx.Err()),
		}
		result.DurationMs = durationMs(started)
		te.connections.Touch(conn.ID)
		te.metrics.RecordExecution(req.Mapping.Provider, false, 0)
		te.appendToSession(req.Context.SessionID, result)
		logger.Warn("Execution %s timed out after %s (tool: %s)", result.RequestID, timeout, req.Mapping.MCPToolSlug)
		return result
	}

	result.DurationMs = durationMs(started)

	if invokeErr != nil {
		result.Error = classifyInvokeError(invokeErr)
		te.connections.Touch(conn.ID)
		te.metrics.RecordExecution(req.Mapping.Provider, false, 0)
		te.appendToSession(req.Context.SessionID, result)
		logger.Error("Execution %s failed (tool: %s): %v", result.RequestID, req.Mapping.MCPToolSlug, invokeErr)
		return result
	}

	result.Success = !invoked.IsError
	result.Payload = invoked.Payload
	if invoked.IsError {
		result.Error = &models.ExecutionError{Type: models.ErrorTypeProvider, Message: "provider reported tool error"}
	}

	if trackCost {
		cost := invoked.CostUSD
		if cost <= 0 {
			cost = te.defaultCost
		}
		if cost > te.costCeiling {
			cost = te.costCeiling
		}
		result.CostUSD = cost
		te.connections.RecordRequestCost(conn.ID, cost)
	} else {
		te.connections.Touch(conn.ID)
	}

	te.metrics.RecordExecution(req.Mapping.Provider, result.Success, result.CostUSD)
	te.appendToSession(req.Context.SessionID, result)

	logger.InfoWithFields("Tool executed", map[string]interface{}{
		"request_id":  result.RequestID,
		"operation":   req.Context.OperationID,
		"tool":        req.Mapping.MCPToolSlug,
		"provider":    req.Mapping.Provider,
		"success":     result.Success,
		"duration_ms": result.DurationMs,
	})
	return result
}

// appendToSession 将结果附加到会话，会话不存在时静默跳过
func (te *ToolExecutor) appendToSession(sessionID string, result models.ExecutionResult) {
	if sessionID == "" || te.sessions == nil {
		return
	}
	te.sessions.AddSessionResult(sessionID, result)
}

// translateParameters 按映射规则重命名参数并应用转换。
// 缺失必填参数返回错误。
func translateParameters(params map[string]interface{}, mappings []models.ParameterMapping) (map[string]interface{}, error) {
	if len(mappings) == 0 {
		translated := make(map[string]interface{}, len(params))
		for k, v := range params {
			translated[k] = v
		}
		return translated, nil
	}

	translated := make(map[string]interface{}, len(params))
	mapped := make(map[string]bool, len(mappings))

	for _, pm := range mappings {
		value, present := params[pm.CatalogParam]
		if !present {
			if pm.Required {
				return nil, fmt.Errorf("missing required parameter %s", pm.CatalogParam)
			}
			continue
		}
		mapped[pm.CatalogParam] = true

		target := pm.MCPParam
		if target == "" {
			target = pm.CatalogParam
		}
		translated[target] = applyTransform(value, pm.Transform)
	}

	// 未被映射覆盖的参数原样透传
	for k, v := range params {
		if !mapped[k] {
			translated[k] = v
		}
	}
	return translated, nil
}

// applyTransform 应用参数转换，未知转换按 none 处理
func applyTransform(value interface{}, transform string) interface{} {
	str, isString := value.(string)
	if !isString {
		return value
	}

	switch transform {
	case models.TransformUppercase:
		return strings.ToUpper(str)
	case models.TransformLowercase:
		return strings.ToLower(str)
	case models.TransformTrim:
		return strings.TrimSpace(str)
	default:
		return str
	}
}

// classifyInvokeError 将外部调用错误分类
func classifyInvokeError(err error) *models.ExecutionError {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline exceeded") {
		return &models.ExecutionError{Type: models.ErrorTypeTimeout, Message: err.Error()}
	}
	return &models.ExecutionError{Type: models.ErrorTypeProvider, Message: err.Error()}
}

func durationMs(started time.Time) int64 {
	elapsed := time.Since(started).Milliseconds()
	if elapsed <= 0 {
		// 亚毫秒调用向上取整，调用方依赖 DurationMs > 0 判断已执行
		return 1
	}
	return elapsed
}
