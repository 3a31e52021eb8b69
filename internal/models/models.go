package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

// ServerConfig 表示一个已注册的工具服务器配置
type ServerConfig struct {
	ID           string    `json:"id" db:"id"`
	Provider     string    `json:"provider" db:"provider"`
	Name         string    `json:"name" db:"name"`
	Endpoint     string    `json:"endpoint" db:"endpoint"`
	Description  string    `json:"description" db:"description"`
	Capabilities []string  `json:"capabilities" db:"capabilities"`
	AuthMethod   string    `json:"auth_method" db:"auth_method"`
	Enabled      bool      `json:"enabled" db:"enabled"`
	Metadata     JSONB     `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time `json:"created_at,omitempty" db:"created_at"`
}

// HasCapability 检查服务器是否声明了指定能力
func (sc *ServerConfig) HasCapability(capability string) bool {
	for _, c := range sc.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// ToolDescriptor 表示从工具服务器发现的单个工具
type ToolDescriptor struct {
	Slug        string             `json:"slug"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Category    string             `json:"category"`
	Provider    string             `json:"provider"`
	InputSchema *jsonschema.Schema `json:"input_schema,omitempty"`
	Metadata    JSONB              `json:"metadata,omitempty"`
}

// DiscoveryResult 表示一次工具发现的结果
type DiscoveryResult struct {
	ServerID     string           `json:"server_id"`
	Provider     string           `json:"provider"`
	Tools        []ToolDescriptor `json:"tools"`
	DiscoveredAt time.Time        `json:"discovered_at"`
	FromCache    bool             `json:"from_cache"`
}

// JSONB 类型用于处理 PostgreSQL 的 JSONB 字段
type JSONB map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}
