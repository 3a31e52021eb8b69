package manager

import (
	"context"

	"McpGateway/internal/logger"
	"McpGateway/internal/models"
)

// FallbackExecutor 在不存在工具服务器路径时执行回退策略
type FallbackExecutor struct {
	oauth   OAuthExecutor
	metrics *MetricsAggregator
}

// NewFallbackExecutor 创建回退执行器
func NewFallbackExecutor(oauth OAuthExecutor, metrics *MetricsAggregator) *FallbackExecutor {
	return &FallbackExecutor{
		oauth:   oauth,
		metrics: metrics,
	}
}

// FallbackToDirectOAuth 执行直连 OAuth 回退。
// 只接受携带已解析 OAuth 配置的 direct_oauth 策略；
// dynamic_api 属于另一条低置信度路径，从此入口一律拒绝。
func (fe *FallbackExecutor) FallbackToDirectOAuth(ctx context.Context, catalogToolID string, strategy *models.FallbackStrategy) models.FallbackResult {
	if strategy == nil || strategy.Type != models.FallbackDirectOAuth || strategy.OAuth == nil {
		strategyType := ""
		if strategy != nil {
			strategyType = strategy.Type
		}
		logger.Warn("Rejected fallback for %s: strategy %q is not direct_oauth", catalogToolID, strategyType)
		return models.FallbackResult{
			Success:      false,
			FallbackUsed: false,
			FallbackType: strategyType,
			Detail:       "only direct_oauth strategies can be executed here",
		}
	}

	payload, err := fe.oauth.ExecuteOAuth(ctx, *strategy.OAuth, catalogToolID)
	if err != nil {
		logger.Error("Direct OAuth fallback failed for %s (provider: %s): %v",
			catalogToolID, strategy.OAuth.Provider, err)
		return models.FallbackResult{
			Success:      false,
			FallbackUsed: true,
			FallbackType: models.FallbackDirectOAuth,
			Detail:       err.Error(),
		}
	}

	fe.metrics.RecordFallback()
	logger.Info("Direct OAuth fallback succeeded for %s via provider %s", catalogToolID, strategy.OAuth.Provider)

	detail := ""
	if msg, ok := payload["detail"].(string); ok {
		detail = msg
	}
	return models.FallbackResult{
		Success:      true,
		FallbackUsed: true,
		FallbackType: models.FallbackDirectOAuth,
		Detail:       detail,
	}
}
