package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"McpGateway/internal/config"
	"McpGateway/internal/logger"
	"McpGateway/internal/models"
)

// MappingOptions 创建映射时的可选项
type MappingOptions struct {
	ServerID          string
	Confidence        float64
	Verified          bool
	ParameterMappings []models.ParameterMapping
}

// AvailabilityResolver 维护目录工具到提供商工具的映射表，
// 并基于映射和置信度解析某目录工具的可用性
type AvailabilityResolver struct {
	registry ServerRegistryInterface
	verifier ToolVerifier
	metrics  *MetricsAggregator
	keywords []config.FallbackKeyword
	timeout  time.Duration

	mutex    sync.RWMutex
	mappings map[string][]models.ToolMapping // catalogToolID -> 按注册顺序的映射
}

// NewAvailabilityResolver 创建可用性解析器
func NewAvailabilityResolver(registry ServerRegistryInterface, verifier ToolVerifier, metrics *MetricsAggregator, cfg *config.Config) *AvailabilityResolver {
	return &AvailabilityResolver{
		registry: registry,
		verifier: verifier,
		metrics:  metrics,
		keywords: cfg.Fallback.Keywords,
		timeout:  cfg.Gateway.AvailabilityTimeout,
		mappings: make(map[string][]models.ToolMapping),
	}
}

// MapToolToMCP 创建或覆盖 (catalogToolID, provider) 的映射
func (ar *AvailabilityResolver) MapToolToMCP(catalogToolID, mcpToolSlug, provider string, opts *MappingOptions) models.ToolMapping {
	mapping := models.ToolMapping{
		CatalogToolID: catalogToolID,
		MCPToolSlug:   mcpToolSlug,
		Provider:      provider,
		Confidence:    1.0,
		CreatedAt:     time.Now(),
	}
	if opts != nil {
		if opts.Confidence > 0 {
			mapping.Confidence = opts.Confidence
		}
		mapping.ServerID = opts.ServerID
		mapping.Verified = opts.Verified
		mapping.ParameterMappings = opts.ParameterMappings
	}
	if mapping.ServerID == "" {
		if cfg, ok := ar.registry.FindServerForProvider(provider, ""); ok {
			mapping.ServerID = cfg.ID
		}
	}

	ar.mutex.Lock()
	existing := ar.mappings[catalogToolID]
	replaced := false
	for i, m := range existing {
		if m.Provider == provider {
			existing[i] = mapping
			replaced = true
			break
		}
	}
	if !replaced {
		ar.mappings[catalogToolID] = append(existing, mapping)
	}
	ar.mutex.Unlock()

	ar.metrics.RecordMapping()
	logger.Info("Mapped catalog tool %s -> %s (provider: %s, confidence: %.2f)",
		catalogToolID, mcpToolSlug, provider, mapping.Confidence)
	return mapping
}

// GetToolMapping 返回某目录工具的首个映射（按注册顺序）
func (ar *AvailabilityResolver) GetToolMapping(catalogToolID string) (models.ToolMapping, bool) {
	ar.mutex.RLock()
	defer ar.mutex.RUnlock()

	mappings := ar.mappings[catalogToolID]
	if len(mappings) == 0 {
		return models.ToolMapping{}, false
	}
	return mappings[0], true
}

// GetMappingsForTool 返回某目录工具跨提供商的全部映射
func (ar *AvailabilityResolver) GetMappingsForTool(catalogToolID string) []models.ToolMapping {
	ar.mutex.RLock()
	defer ar.mutex.RUnlock()

	mappings := ar.mappings[catalogToolID]
	result := make([]models.ToolMapping, len(mappings))
	copy(result, mappings)
	return result
}

// GetMappingForProvider 返回 (catalogToolID, provider) 的映射
func (ar *AvailabilityResolver) GetMappingForProvider(catalogToolID, provider string) (models.ToolMapping, bool) {
	ar.mutex.RLock()
	defer ar.mutex.RUnlock()

	for _, m := range ar.mappings[catalogToolID] {
		if m.Provider == provider {
			return m, true
		}
	}
	return models.ToolMapping{}, false
}

// VerifyToolMapping 对映射做轻量存在性检查。
// 未知映射返回 false 而不是报错。
func (ar *AvailabilityResolver) VerifyToolMapping(ctx context.Context, catalogToolID string) bool {
	mapping, exists := ar.GetToolMapping(catalogToolID)
	if !exists {
		return false
	}

	cfg, ok := ar.registry.FindServerForProvider(mapping.Provider, mapping.ServerID)
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, ar.timeout)
	defer cancel()

	verified, err := ar.verifier.VerifyTool(ctx, cfg, mapping.MCPToolSlug)
	if err != nil {
		logger.Warn("Tool mapping verification failed for %s: %v", catalogToolID, err)
		return false
	}

	if verified {
		ar.mutex.Lock()
		for i, m := range ar.mappings[catalogToolID] {
			if m.Provider == mapping.Provider {
				ar.mappings[catalogToolID][i].Verified = true
				break
			}
		}
		ar.mutex.Unlock()
	}
	return verified
}

// CheckAvailability 解析某目录工具的可用性。
// 无任何映射时派生回退策略，调用方总能拿到可执行的下一步。
func (ar *AvailabilityResolver) CheckAvailability(ctx context.Context, catalogToolID string) (*models.AvailabilityResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ar.timeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	mappings := ar.GetMappingsForTool(catalogToolID)

	result := &models.AvailabilityResult{
		ToolID:    catalogToolID,
		Providers: []models.ProviderOption{},
	}

	if len(mappings) == 0 {
		result.FallbackRequired = true
		result.Fallback = ar.deriveFallbackStrategy(catalogToolID)
		logger.Info("Tool %s has no mappings, derived %s fallback", catalogToolID, result.Fallback.Type)
		return result, nil
	}

	result.Available = true
	best := mappings[0]
	for _, m := range mappings {
		result.Providers = append(result.Providers, models.ProviderOption{
			Provider:   m.Provider,
			Confidence: m.Confidence,
		})
		// 置信度并列时保持注册顺序优先
		if m.Confidence > best.Confidence {
			best = m
		}
	}
	result.RecommendedProvider = best.Provider

	return result, nil
}

// deriveFallbackStrategy 根据关键字表派生回退策略。
// 命中已知第一方应用关键字时走直连 OAuth，否则给出低优先级的动态 API 策略。
func (ar *AvailabilityResolver) deriveFallbackStrategy(catalogToolID string) *models.FallbackStrategy {
	lowered := strings.ToLower(catalogToolID)
	for _, kw := range ar.keywords {
		if strings.Contains(lowered, kw.Keyword) {
			return &models.FallbackStrategy{
				Type:     models.FallbackDirectOAuth,
				Priority: 1,
				OAuth: &models.OAuthConfig{
					Provider: kw.Provider,
					Scopes:   kw.Scopes,
				},
				Reason: "catalog tool id matched keyword " + kw.Keyword,
			}
		}
	}

	return &models.FallbackStrategy{
		Type:     models.FallbackDynamicAPI,
		Priority: 10,
		Reason:   "no tool-server mapping and no known first-party app",
	}
}
