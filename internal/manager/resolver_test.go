package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"McpGateway/internal/models"
)

func TestMapToolToMCPDefaults(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	mapping := gw.Resolver.MapToolToMCP("wf-gmail", "COMPOSIO_GMAIL_SEND_EMAIL", "composio", nil)

	assert.Equal(t, 1.0, mapping.Confidence)
	assert.False(t, mapping.Verified)
	// ServerID 自动解析到该提供商的首个可用服务器
	assert.Equal(t, "composio-default", mapping.ServerID)
	assert.False(t, mapping.CreatedAt.IsZero())
}

func TestMapToolToMCPOverwritesSameProvider(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	gw.Resolver.MapToolToMCP("wf-gmail", "COMPOSIO_GMAIL_SEND_EMAIL", "composio", nil)
	gw.Resolver.MapToolToMCP("wf-gmail", "COMPOSIO_GMAIL_SEND_EMAIL_V2", "composio", &MappingOptions{Confidence: 0.8})

	mappings := gw.Resolver.GetMappingsForTool("wf-gmail")
	require.Len(t, mappings, 1)
	assert.Equal(t, "COMPOSIO_GMAIL_SEND_EMAIL_V2", mappings[0].MCPToolSlug)
	assert.Equal(t, 0.8, mappings[0].Confidence)
}

func TestGetToolMappingReturnsFirstRegistered(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	_, exists := gw.Resolver.GetToolMapping("wf-gmail")
	assert.False(t, exists)

	gw.Resolver.MapToolToMCP("wf-gmail", "COMPOSIO_GMAIL_SEND_EMAIL", "composio", nil)
	gw.Resolver.MapToolToMCP("wf-gmail", "KLAVIS_GMAIL_SEND_EMAIL", "klavis", nil)

	first, exists := gw.Resolver.GetToolMapping("wf-gmail")
	require.True(t, exists)
	assert.Equal(t, "composio", first.Provider)

	klavis, exists := gw.Resolver.GetMappingForProvider("wf-gmail", "klavis")
	require.True(t, exists)
	assert.Equal(t, "KLAVIS_GMAIL_SEND_EMAIL", klavis.MCPToolSlug)

	_, exists = gw.Resolver.GetMappingForProvider("wf-gmail", "nonexistent")
	assert.False(t, exists)
}

func TestCheckAvailabilityWithMappings(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	gw.Resolver.MapToolToMCP("wf-gmail", "COMPOSIO_GMAIL_SEND_EMAIL", "composio", &MappingOptions{Confidence: 0.7})
	gw.Resolver.MapToolToMCP("wf-gmail", "KLAVIS_GMAIL_SEND_EMAIL", "klavis", &MappingOptions{Confidence: 0.9})

	result, err := gw.Resolver.CheckAvailability(context.Background(), "wf-gmail")
	require.NoError(t, err)

	assert.True(t, result.Available)
	assert.False(t, result.FallbackRequired)
	require.Len(t, result.Providers, 2)
	assert.Equal(t, "klavis", result.RecommendedProvider)
}

func TestCheckAvailabilityConfidenceTieKeepsRegistrationOrder(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	gw.Resolver.MapToolToMCP("wf-gmail", "COMPOSIO_GMAIL_SEND_EMAIL", "composio", &MappingOptions{Confidence: 0.9})
	gw.Resolver.MapToolToMCP("wf-gmail", "KLAVIS_GMAIL_SEND_EMAIL", "klavis", &MappingOptions{Confidence: 0.9})

	result, err := gw.Resolver.CheckAvailability(context.Background(), "wf-gmail")
	require.NoError(t, err)
	assert.Equal(t, "composio", result.RecommendedProvider)
}

func TestCheckAvailabilityDerivesOAuthFallback(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	result, err := gw.Resolver.CheckAvailability(context.Background(), "wf-gmail-sender")
	require.NoError(t, err)

	assert.False(t, result.Available)
	assert.True(t, result.FallbackRequired)
	require.NotNil(t, result.Fallback)
	assert.Equal(t, models.FallbackDirectOAuth, result.Fallback.Type)
	assert.Equal(t, 1, result.Fallback.Priority)
	require.NotNil(t, result.Fallback.OAuth)
	assert.Equal(t, "google", result.Fallback.OAuth.Provider)
	assert.NotEmpty(t, result.Fallback.OAuth.Scopes)
}

func TestCheckAvailabilityDerivesDynamicAPIFallback(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	result, err := gw.Resolver.CheckAvailability(context.Background(), "wf-obscure-crm")
	require.NoError(t, err)

	assert.True(t, result.FallbackRequired)
	require.NotNil(t, result.Fallback)
	assert.Equal(t, models.FallbackDynamicAPI, result.Fallback.Type)
	assert.Equal(t, 10, result.Fallback.Priority)
	assert.Nil(t, result.Fallback.OAuth)
}

func TestVerifyToolMapping(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	// 未知映射返回 false 而非报错
	assert.False(t, gw.Resolver.VerifyToolMapping(context.Background(), "wf-unknown"))

	gw.Resolver.MapToolToMCP("wf-gmail", "COMPOSIO_GMAIL_SEND_EMAIL", "composio", nil)
	assert.True(t, gw.Resolver.VerifyToolMapping(context.Background(), "wf-gmail"))

	// 验证通过后映射被标记为 verified
	mapping, exists := gw.Resolver.GetToolMapping("wf-gmail")
	require.True(t, exists)
	assert.True(t, mapping.Verified)
}

func TestVerifyToolMappingFailure(t *testing.T) {
	collab, _, _, _ := testCollaborators()
	collab.Verifier = &fakeVerifier{verified: false}
	gw := newGatewayWith(collab)

	gw.Resolver.MapToolToMCP("wf-gmail", "COMPOSIO_GMAIL_SEND_EMAIL", "composio", nil)
	assert.False(t, gw.Resolver.VerifyToolMapping(context.Background(), "wf-gmail"))

	mapping, _ := gw.Resolver.GetToolMapping("wf-gmail")
	assert.False(t, mapping.Verified)
}

func TestMappingCountsTowardMetrics(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	gw.Resolver.MapToolToMCP("wf-gmail", "COMPOSIO_GMAIL_SEND_EMAIL", "composio", nil)
	gw.Resolver.MapToolToMCP("wf-slack", "COMPOSIO_SLACK_SEND_MESSAGE", "composio", nil)

	metrics := gw.GetMetrics()
	assert.Equal(t, 2, metrics.ToolsMapped)
}
