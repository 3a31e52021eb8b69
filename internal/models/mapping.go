package models

import "time"

// 参数转换方式，可扩展
const (
	TransformNone      = "none"
	TransformUppercase = "uppercase"
	TransformLowercase = "lowercase"
	TransformTrim      = "trim"
)

// ParameterMapping 表示目录参数到提供商参数的重命名规则
type ParameterMapping struct {
	CatalogParam string `json:"catalog_param" db:"catalog_param"`
	MCPParam     string `json:"mcp_param" db:"mcp_param"`
	Transform    string `json:"transform" db:"transform"`
	Required     bool   `json:"required" db:"required"`
}

// ToolMapping 表示目录工具 ID 到某个提供商工具的映射
type ToolMapping struct {
	CatalogToolID     string             `json:"catalog_tool_id" db:"catalog_tool_id"`
	MCPToolSlug       string             `json:"mcp_tool_slug" db:"mcp_tool_slug"`
	Provider          string             `json:"provider" db:"provider"`
	ServerID          string             `json:"server_id" db:"server_id"`
	Confidence        float64            `json:"confidence" db:"confidence"`
	Verified          bool               `json:"verified" db:"verified"`
	ParameterMappings []ParameterMapping `json:"parameter_mappings" db:"parameter_mappings"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
}
