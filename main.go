package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"McpGateway/internal/auth"
	"McpGateway/internal/config"
	"McpGateway/internal/database"
	"McpGateway/internal/handlers"
	"McpGateway/internal/logger"
	"McpGateway/internal/manager"
	"McpGateway/internal/mcpclient"
	"McpGateway/internal/models"
	"McpGateway/internal/registry"
)

var (
	configPath = flag.String("config", "config/config.dev.yaml", "path to config file")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Warn("Failed to load config (%v), using defaults", err)
		cfg = config.DefaultConfig()
	}

	// 从环境变量覆盖配置
	config.LoadConfigFromEnv(cfg)

	// 配置日志级别
	logger.SetLevelFromString(cfg.Logging.Level)

	logger.Info("Starting MCP gateway on %s", cfg.Server.GetServerAddr())

	// 创建服务器注册表（预置内置基线服务器）
	serverRegistry := registry.NewServerRegistry()

	// 创建工具处理器注册表和内置服务器工厂
	handlerRegistry := handlers.NewToolHandlerRegistry()
	localServers := mcpclient.NewLocalServers(handlerRegistry)

	// 创建 MCP 客户端协作者
	mcpClient := mcpclient.NewClient(localServers)
	defer mcpClient.Close()

	// 组装网关
	gateway := manager.NewGateway(serverRegistry, manager.Collaborators{
		Discovery: mcpClient,
		Auth:      mcpclient.NewTokenAuthClient(cfg.Gateway.TokenTTL),
		Invoker:   mcpClient,
		Verifier:  mcpClient,
		Prober:    mcpClient,
		OAuth:     mcpclient.NewDirectOAuthExecutor(),
	}, cfg)

	// 可选：从数据库装载额外的服务器配置和已保存的映射
	var store *database.Store
	if cfg.Database.Enabled {
		store, err = database.NewStore(&cfg.Database)
		if err != nil {
			logger.Fatal("Failed to create database store: %v", err)
		}
		defer store.Close()

		loadFromStore(store, serverRegistry, gateway)
	}

	// 成本告警默认订阅：只记录，不中止调用
	gateway.Events.OnCostWarning(func(connectionID string, total, ceiling float64) {
		logger.WarnWithFields("Cost ceiling exceeded", map[string]interface{}{
			"connection_id": connectionID,
			"total_usd":     total,
			"ceiling_usd":   ceiling,
		})
	})

	// 创建认证中间件
	authMiddleware := auth.NewAuthMiddleware(&cfg.Auth)

	mux := http.NewServeMux()
	registerRoutes(mux, authMiddleware, gateway, serverRegistry, localServers, store)

	addr := cfg.Server.GetServerAddr()
	logger.Info("Gateway admin server listening on %s", addr)

	// 设置优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		gateway.Shutdown()
		mcpClient.Close()
		os.Exit(0)
	}()

	if err = http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Server failed: %v", err)
	}
}

// loadFromStore 将持久化的服务器配置和映射装载进内存
func loadFromStore(store *database.Store, serverRegistry *registry.ServerRegistry, gateway *manager.Gateway) {
	configs, err := store.ListServerConfigs()
	if err != nil {
		logger.Error("Failed to load server configs from database: %v", err)
	} else {
		for _, serverCfg := range configs {
			serverRegistry.AddServer(serverCfg)
		}
		logger.Info("Loaded %d server configs from database", len(configs))
	}

	mappings, err := store.ListToolMappings()
	if err != nil {
		logger.Error("Failed to load tool mappings from database: %v", err)
		return
	}
	for _, m := range mappings {
		gateway.Resolver.MapToolToMCP(m.CatalogToolID, m.MCPToolSlug, m.Provider, &manager.MappingOptions{
			ServerID:          m.ServerID,
			Confidence:        m.Confidence,
			Verified:          m.Verified,
			ParameterMappings: m.ParameterMappings,
		})
	}
	logger.Info("Loaded %d tool mappings from database", len(mappings))
}

// registerRoutes 注册管理端路由，store 为 nil 时跳过持久化
func registerRoutes(mux *http.ServeMux, authMiddleware *auth.AuthMiddleware, gateway *manager.Gateway, serverRegistry *registry.ServerRegistry, localServers *mcpclient.LocalServers, store *database.Store) {
	// 健康检查端点（不需要认证）
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// 认证信息端点（不需要认证，用于调试）
	mux.HandleFunc("/auth/info", func(w http.ResponseWriter, r *http.Request) {
		if authMiddleware.IsEnabled() {
			w.Write([]byte("Authentication: Enabled\nHeader: " + authMiddleware.GetHeaderName()))
		} else {
			w.Write([]byte("Authentication: Disabled"))
		}
	})

	// 指标端点
	mux.Handle("/metrics", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, gateway.GetMetrics())
	}))
	mux.Handle("/admin/metrics/reset", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		gateway.ResetMetrics()
		w.WriteHeader(http.StatusNoContent)
	}))

	// 服务器与健康端点
	mux.Handle("/admin/servers", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, serverRegistry.GetServers())
		case http.MethodPost:
			var serverCfg models.ServerConfig
			if err := json.NewDecoder(r.Body).Decode(&serverCfg); err != nil {
				http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
				return
			}
			if serverCfg.ID == "" || serverCfg.Provider == "" {
				http.Error(w, "id and provider are required", http.StatusBadRequest)
				return
			}
			serverRegistry.AddServer(serverCfg)
			if store != nil {
				if err := store.SaveServerConfig(serverCfg); err != nil {
					logger.Error("Failed to persist server config %s: %v", serverCfg.ID, err)
				}
			}
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, serverCfg)
		case http.MethodDelete:
			serverID := r.URL.Query().Get("server_id")
			if !serverRegistry.RemoveServer(serverID) {
				http.Error(w, "Server '"+serverID+"' not found", http.StatusNotFound)
				return
			}
			gateway.Catalog.Invalidate(serverID)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	// 工具映射端点
	mux.Handle("/admin/mappings", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			toolID := r.URL.Query().Get("tool_id")
			if toolID == "" {
				http.Error(w, "tool_id is required", http.StatusBadRequest)
				return
			}
			writeJSON(w, gateway.Resolver.GetMappingsForTool(toolID))
		case http.MethodPost:
			var body struct {
				CatalogToolID     string                    `json:"catalog_tool_id"`
				MCPToolSlug       string                    `json:"mcp_tool_slug"`
				Provider          string                    `json:"provider"`
				ServerID          string                    `json:"server_id"`
				Confidence        float64                   `json:"confidence"`
				ParameterMappings []models.ParameterMapping `json:"parameter_mappings"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
				return
			}
			if body.CatalogToolID == "" || body.MCPToolSlug == "" || body.Provider == "" {
				http.Error(w, "catalog_tool_id, mcp_tool_slug and provider are required", http.StatusBadRequest)
				return
			}
			mapping := gateway.Resolver.MapToolToMCP(body.CatalogToolID, body.MCPToolSlug, body.Provider, &manager.MappingOptions{
				ServerID:          body.ServerID,
				Confidence:        body.Confidence,
				ParameterMappings: body.ParameterMappings,
			})
			if store != nil {
				if err := store.SaveToolMapping(mapping); err != nil {
					logger.Error("Failed to persist tool mapping %s: %v", mapping.CatalogToolID, err)
				}
			}
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, mapping)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	// 映射校验端点：校验通过的映射回写存储
	mux.Handle("/admin/mappings/verify", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		toolID := r.URL.Query().Get("tool_id")
		if toolID == "" {
			http.Error(w, "tool_id is required", http.StatusBadRequest)
			return
		}
		verified := gateway.Resolver.VerifyToolMapping(r.Context(), toolID)
		if verified && store != nil {
			if mapping, exists := gateway.Resolver.GetToolMapping(toolID); exists {
				if err := store.SaveToolMapping(mapping); err != nil {
					logger.Error("Failed to persist verified mapping %s: %v", toolID, err)
				}
			}
		}
		writeJSON(w, map[string]interface{}{
			"tool_id":  toolID,
			"verified": verified,
		})
	}))
	mux.Handle("/admin/servers/health", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		serverID := r.URL.Query().Get("server_id")
		if serverID == "" {
			writeJSON(w, gateway.Health.CheckAllServers(r.Context()))
			return
		}
		health, err := gateway.Health.CheckServerHealth(r.Context(), serverID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, health)
	}))

	// 工具发现端点
	mux.Handle("/admin/tools", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		serverID := r.URL.Query().Get("server_id")
		result, err := gateway.Catalog.DiscoverTools(r.Context(), serverID, manager.DiscoverOptions{
			ForceRefresh: r.URL.Query().Get("force_refresh") == "true",
			Category:     r.URL.Query().Get("category"),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, result)
	}))

	// 可用性端点
	mux.Handle("/admin/availability", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		toolID := r.URL.Query().Get("tool_id")
		if toolID == "" {
			http.Error(w, "tool_id is required", http.StatusBadRequest)
			return
		}
		result, err := gateway.Resolver.CheckAvailability(r.Context(), toolID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, result)
	}))

	// 连接与会话监控端点
	mux.Handle("/admin/connections", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, gateway.Connections.GetActiveConnections())
	}))
	mux.Handle("/admin/sessions", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		sessions := gateway.Sessions.GetSessions()
		writeJSON(w, map[string]interface{}{
			"total_sessions": len(sessions),
			"sessions":       sessions,
		})
	}))

	// 清理端点：由外部调度器周期性调用，网关自身不起定时器
	mux.Handle("/admin/cleanup", authMiddleware.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		maxAge := time.Hour
		if raw := r.URL.Query().Get("max_age_ms"); raw != "" {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
				maxAge = time.Duration(ms) * time.Millisecond
			}
		}
		writeJSON(w, map[string]int{
			"connections_removed": gateway.Connections.CleanupStaleConnections(maxAge),
			"sessions_removed":    gateway.Sessions.CleanupCompletedSessions(maxAge),
		})
	}))

	// 内置服务器的 SSE 暴露：/mcp-server/{server_id}/sse
	sseHandlers := newSSEHandlerCache(serverRegistry, localServers)
	mux.Handle("/mcp-server/", authMiddleware.Middleware(sseHandlers.handle))
}

// sseHandlerCache 按服务器缓存 SSE 处理器
type sseHandlerCache struct {
	registry *registry.ServerRegistry
	local    *mcpclient.LocalServers

	mutex    sync.RWMutex
	handlers map[string]http.Handler
}

func newSSEHandlerCache(reg *registry.ServerRegistry, local *mcpclient.LocalServers) *sseHandlerCache {
	return &sseHandlerCache{
		registry: reg,
		local:    local,
		handlers: make(map[string]http.Handler),
	}
}

func (c *sseHandlerCache) handle(w http.ResponseWriter, r *http.Request) {
	// 路径格式：/mcp-server/{server_id}/sse
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[0] != "mcp-server" || pathParts[2] != "sse" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	serverID := pathParts[1]

	c.mutex.RLock()
	handler, exists := c.handlers[serverID]
	c.mutex.RUnlock()
	if exists {
		handler.ServeHTTP(w, r)
		return
	}

	cfg, ok := c.registry.GetServer(serverID)
	if !ok || !strings.HasPrefix(cfg.Endpoint, registry.BuiltinScheme) {
		http.Error(w, "Server '"+serverID+"' not found", http.StatusNotFound)
		return
	}

	server, err := c.local.ServerFor(cfg)
	if err != nil {
		logger.Error("Failed to build builtin server %s: %v", serverID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	handler = mcp.NewSSEHandler(func(request *http.Request) *mcp.Server {
		return server
	})

	c.mutex.Lock()
	c.handlers[serverID] = handler
	c.mutex.Unlock()

	logger.Info("Created SSE handler for builtin server: %s", serverID)
	handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
