package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Fallback FallbackConfig `yaml:"fallback"`
}

// ServerConfig HTTP 管理端配置
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig 数据库配置，Enabled 为 false 时网关以纯内存模式运行
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig 管理端 API 密钥认证配置
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	HeaderName string   `yaml:"header_name"`
	APIKeys    []string `yaml:"api_keys"`
}

// GatewayConfig 网关核心参数
type GatewayConfig struct {
	DefaultTimeout       time.Duration `yaml:"default_timeout"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	AvailabilityTimeout  time.Duration `yaml:"availability_timeout"`
	HealthProbeTimeout   time.Duration `yaml:"health_probe_timeout"`
	MaxCostPerConnection float64       `yaml:"max_cost_per_connection"`
	DefaultRequestCost   float64       `yaml:"default_request_cost"`
	TokenTTL             time.Duration `yaml:"token_ttl"`
	TokenRefreshMargin   time.Duration `yaml:"token_refresh_margin"`
}

// FallbackKeyword 目录工具 ID 关键字到 OAuth 提供商的映射条目
type FallbackKeyword struct {
	Keyword  string   `yaml:"keyword"`
	Provider string   `yaml:"provider"`
	Scopes   []string `yaml:"scopes"`
}

// FallbackConfig 回退策略配置。
// 关键字表是数据而非代码，便于审计和扩展。
type FallbackConfig struct {
	Keywords []FallbackKeyword `yaml:"keywords"`
}

// GetDSN 获取数据库连接字符串
func (db *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetServerAddr 获取服务器监听地址
func (s *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	// 如果没有指定配置文件路径，使用默认路径
	if configPath == "" {
		configPath = "config/config.dev.yaml"
	}

	// 读取配置文件
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// 解析 YAML
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	// 设置默认值
	SetDefaults(&config)

	return &config, nil
}

// DefaultConfig 返回一份填好全部默认值的配置，纯内存模式可直接使用
func DefaultConfig() *Config {
	config := &Config{}
	SetDefaults(config)
	return config
}

// SetDefaults 设置默认值
func SetDefaults(config *Config) {
	// 服务器默认值
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 9001
	}

	// 数据库默认值
	if config.Database.Host == "" {
		config.Database.Host = "localhost"
	}
	if config.Database.Port == 0 {
		config.Database.Port = 5432
	}
	if config.Database.SSLMode == "" {
		config.Database.SSLMode = "disable"
	}
	if config.Database.MaxOpenConns == 0 {
		config.Database.MaxOpenConns = 25
	}
	if config.Database.MaxIdleConns == 0 {
		config.Database.MaxIdleConns = 10
	}
	if config.Database.ConnMaxLifetime == 0 {
		config.Database.ConnMaxLifetime = 5 * time.Minute
	}

	// 日志默认值
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}

	// 认证默认值
	if config.Auth.HeaderName == "" {
		config.Auth.HeaderName = "X-API-Key"
	}

	// 网关默认值
	if config.Gateway.DefaultTimeout == 0 {
		config.Gateway.DefaultTimeout = 30 * time.Second
	}
	if config.Gateway.ConnectTimeout == 0 {
		config.Gateway.ConnectTimeout = 10 * time.Second
	}
	if config.Gateway.AvailabilityTimeout == 0 {
		config.Gateway.AvailabilityTimeout = 5 * time.Second
	}
	if config.Gateway.HealthProbeTimeout == 0 {
		config.Gateway.HealthProbeTimeout = 5 * time.Second
	}
	if config.Gateway.MaxCostPerConnection == 0 {
		config.Gateway.MaxCostPerConnection = 10.0
	}
	if config.Gateway.DefaultRequestCost == 0 {
		config.Gateway.DefaultRequestCost = 0.001
	}
	if config.Gateway.TokenTTL == 0 {
		config.Gateway.TokenTTL = 1 * time.Hour
	}
	if config.Gateway.TokenRefreshMargin == 0 {
		config.Gateway.TokenRefreshMargin = 5 * time.Minute
	}

	// 回退关键字默认表
	if len(config.Fallback.Keywords) == 0 {
		config.Fallback.Keywords = []FallbackKeyword{
			{Keyword: "gmail", Provider: "google", Scopes: []string{"https://www.googleapis.com/auth/gmail.send"}},
			{Keyword: "google", Provider: "google"},
			{Keyword: "slack", Provider: "slack", Scopes: []string{"chat:write"}},
			{Keyword: "github", Provider: "github", Scopes: []string{"repo"}},
			{Keyword: "notion", Provider: "notion"},
			{Keyword: "whatsapp", Provider: "meta"},
		}
	}
}

// LoadConfigFromEnv 从环境变量加载配置（优先级高于配置文件）
func LoadConfigFromEnv(config *Config) {
	// 数据库配置
	if host := os.Getenv("DB_HOST"); host != "" {
		config.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Database.Port)
	}
	if username := os.Getenv("DB_USERNAME"); username != "" {
		config.Database.Username = username
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		config.Database.Password = password
	}
	if database := os.Getenv("DB_DATABASE"); database != "" {
		config.Database.Database = database
	}

	// 服务器配置
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Server.Port)
	}

	// 日志配置
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// 网关配置
	if ceiling := os.Getenv("GATEWAY_MAX_COST_PER_CONNECTION"); ceiling != "" {
		fmt.Sscanf(ceiling, "%f", &config.Gateway.MaxCostPerConnection)
	}
	if timeout := os.Getenv("GATEWAY_DEFAULT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Gateway.DefaultTimeout = d
		}
	}
}
