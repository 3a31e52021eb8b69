package models

import "fmt"

// ServerNotFoundError 表示引用了不存在的服务器配置
type ServerNotFoundError struct {
	ServerID string
}

func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("server not found: %s", e.ServerID)
}

// ConnectionNotFoundError 表示引用了不存在的连接。
// 仅在无法继续的入口（如创建会话）作为错误返回，读路径一律返回显式缺失值。
type ConnectionNotFoundError struct {
	ConnectionID string
}

func (e *ConnectionNotFoundError) Error() string {
	return fmt.Sprintf("connection not found: %s", e.ConnectionID)
}
