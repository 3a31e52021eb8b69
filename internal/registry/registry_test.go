package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"McpGateway/internal/models"
)

func TestNewRegistrySeedsBaselineServers(t *testing.T) {
	r := NewServerRegistry()

	require.Equal(t, 2, r.Count())

	composio, exists := r.GetServer("composio-default")
	require.True(t, exists)
	assert.Equal(t, "composio", composio.Provider)
	assert.True(t, composio.Enabled)
	assert.True(t, composio.HasCapability("gmail"))
	assert.True(t, composio.HasCapability("slack"))

	klavis, exists := r.GetServer("klavis-default")
	require.True(t, exists)
	assert.Equal(t, "klavis", klavis.Provider)
	assert.True(t, klavis.HasCapability("notion"))
	assert.False(t, klavis.HasCapability("slack"))
}

func TestAddServerOverwritesByID(t *testing.T) {
	r := NewServerRegistry()

	r.AddServer(models.ServerConfig{
		ID:       "custom-1",
		Provider: "composio",
		Endpoint: "https://mcp.example.com/sse",
		Enabled:  true,
	})
	require.Equal(t, 3, r.Count())

	r.AddServer(models.ServerConfig{
		ID:       "custom-1",
		Provider: "composio",
		Endpoint: "https://mcp2.example.com/sse",
		Enabled:  false,
	})
	assert.Equal(t, 3, r.Count())

	cfg, _ := r.GetServer("custom-1")
	assert.Equal(t, "https://mcp2.example.com/sse", cfg.Endpoint)
	assert.False(t, cfg.Enabled)
}

func TestAddServerFillsCreatedAt(t *testing.T) {
	r := NewServerRegistry()
	r.AddServer(models.ServerConfig{ID: "custom-1", Provider: "composio"})

	cfg, _ := r.GetServer("custom-1")
	assert.False(t, cfg.CreatedAt.IsZero())
	assert.WithinDuration(t, time.Now(), cfg.CreatedAt, time.Minute)
}

func TestRemoveServer(t *testing.T) {
	r := NewServerRegistry()

	assert.True(t, r.RemoveServer("klavis-default"))
	assert.False(t, r.RemoveServer("klavis-default"))
	assert.Equal(t, 1, r.Count())

	_, exists := r.GetServer("klavis-default")
	assert.False(t, exists)
}

func TestGetServersKeepsRegistrationOrder(t *testing.T) {
	r := NewServerRegistry()
	r.AddServer(models.ServerConfig{ID: "custom-1", Provider: "acme", Enabled: true})

	servers := r.GetServers()
	require.Len(t, servers, 3)
	assert.Equal(t, "composio-default", servers[0].ID)
	assert.Equal(t, "klavis-default", servers[1].ID)
	assert.Equal(t, "custom-1", servers[2].ID)
}

func TestGetServersByProvider(t *testing.T) {
	r := NewServerRegistry()
	r.AddServer(models.ServerConfig{ID: "composio-eu", Provider: "composio", Enabled: true})

	assert.Len(t, r.GetServersByProvider("composio"), 2)
	assert.Len(t, r.GetServersByProvider("klavis"), 1)
	assert.Empty(t, r.GetServersByProvider("nonexistent"))
}

func TestFindServerForProvider(t *testing.T) {
	r := NewServerRegistry()

	cfg, ok := r.FindServerForProvider("composio", "")
	require.True(t, ok)
	assert.Equal(t, "composio-default", cfg.ID)

	// 精确指定 serverID
	cfg, ok = r.FindServerForProvider("klavis", "klavis-default")
	require.True(t, ok)
	assert.Equal(t, "klavis-default", cfg.ID)

	_, ok = r.FindServerForProvider("nonexistent", "")
	assert.False(t, ok)
}

func TestFindServerForProviderSkipsDisabled(t *testing.T) {
	r := NewServerRegistry()

	disabled, _ := r.GetServer("composio-default")
	disabled.Enabled = false
	r.AddServer(disabled)

	// 首选服务器被禁用后回落到同提供商的下一个启用服务器
	_, ok := r.FindServerForProvider("composio", "")
	assert.False(t, ok)

	r.AddServer(models.ServerConfig{ID: "composio-backup", Provider: "composio", Enabled: true})
	cfg, ok := r.FindServerForProvider("composio", "")
	require.True(t, ok)
	assert.Equal(t, "composio-backup", cfg.ID)

	// 精确指定被禁用的服务器同样失败
	_, ok = r.FindServerForProvider("composio", "composio-default")
	assert.False(t, ok)
}
