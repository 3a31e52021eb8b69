package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"McpGateway/internal/config"
	"McpGateway/internal/logger"
	"McpGateway/internal/models"
)

// Store 持久化的服务器配置与工具映射存储。
// 网关核心完全工作在内存中，Store 只在启动时装载、在校验通过时回写。
type Store struct {
	db *sql.DB
}

// NewStore 创建数据库存储
func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connected successfully to %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	return &Store{db: db}, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// ListServerConfigs 装载全部启用的服务器配置
func (s *Store) ListServerConfigs() ([]models.ServerConfig, error) {
	query := `
		SELECT id, provider, name, endpoint, description, capabilities,
		       auth_method, enabled, metadata, created_at
		FROM gateway_server
		WHERE enabled = true
		ORDER BY created_at, id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query servers: %w", err)
	}
	defer rows.Close()

	var configs []models.ServerConfig
	for rows.Next() {
		var cfg models.ServerConfig
		var capabilities []string
		err := rows.Scan(
			&cfg.ID,
			&cfg.Provider,
			&cfg.Name,
			&cfg.Endpoint,
			&cfg.Description,
			pq.Array(&capabilities),
			&cfg.AuthMethod,
			&cfg.Enabled,
			&cfg.Metadata,
			&cfg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		cfg.Capabilities = capabilities
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

// ListToolMappings 装载全部保存过的工具映射
func (s *Store) ListToolMappings() ([]models.ToolMapping, error) {
	query := `
		SELECT catalog_tool_id, mcp_tool_slug, provider, server_id,
		       confidence, verified, parameter_mappings, created_at
		FROM gateway_tool_mapping
		ORDER BY created_at
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool mappings: %w", err)
	}
	defer rows.Close()

	var mappings []models.ToolMapping
	for rows.Next() {
		var mapping models.ToolMapping
		var paramsRaw []byte
		err := rows.Scan(
			&mapping.CatalogToolID,
			&mapping.MCPToolSlug,
			&mapping.Provider,
			&mapping.ServerID,
			&mapping.Confidence,
			&mapping.Verified,
			&paramsRaw,
			&mapping.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool mapping: %w", err)
		}
		if len(paramsRaw) > 0 {
			if err := json.Unmarshal(paramsRaw, &mapping.ParameterMappings); err != nil {
				return nil, fmt.Errorf("failed to decode parameter mappings for %s: %w", mapping.CatalogToolID, err)
			}
		}
		mappings = append(mappings, mapping)
	}

	return mappings, rows.Err()
}

// SaveToolMapping 保存或覆盖 (catalog_tool_id, provider) 的映射
func (s *Store) SaveToolMapping(mapping models.ToolMapping) error {
	paramsRaw, err := json.Marshal(mapping.ParameterMappings)
	if err != nil {
		return fmt.Errorf("failed to encode parameter mappings: %w", err)
	}

	query := `
		INSERT INTO gateway_tool_mapping
			(catalog_tool_id, mcp_tool_slug, provider, server_id, confidence, verified, parameter_mappings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (catalog_tool_id, provider) DO UPDATE SET
			mcp_tool_slug = EXCLUDED.mcp_tool_slug,
			server_id = EXCLUDED.server_id,
			confidence = EXCLUDED.confidence,
			verified = EXCLUDED.verified,
			parameter_mappings = EXCLUDED.parameter_mappings
	`

	_, err = s.db.Exec(query,
		mapping.CatalogToolID,
		mapping.MCPToolSlug,
		mapping.Provider,
		mapping.ServerID,
		mapping.Confidence,
		mapping.Verified,
		paramsRaw,
		mapping.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save tool mapping: %w", err)
	}
	return nil
}

// SaveServerConfig 保存或覆盖一条服务器配置
func (s *Store) SaveServerConfig(cfg models.ServerConfig) error {
	query := `
		INSERT INTO gateway_server
			(id, provider, name, endpoint, description, capabilities, auth_method, enabled, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			provider = EXCLUDED.provider,
			name = EXCLUDED.name,
			endpoint = EXCLUDED.endpoint,
			description = EXCLUDED.description,
			capabilities = EXCLUDED.capabilities,
			auth_method = EXCLUDED.auth_method,
			enabled = EXCLUDED.enabled,
			metadata = EXCLUDED.metadata
	`

	_, err := s.db.Exec(query,
		cfg.ID,
		cfg.Provider,
		cfg.Name,
		cfg.Endpoint,
		cfg.Description,
		pq.Array(cfg.Capabilities),
		cfg.AuthMethod,
		cfg.Enabled,
		cfg.Metadata,
		cfg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save server config: %w", err)
	}
	return nil
}
