package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"McpGateway/internal/models"
)

func TestDiscoverToolsUnknownServer(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	_, err := gw.Catalog.DiscoverTools(context.Background(), "no-such-server", DiscoverOptions{})
	require.Error(t, err)

	var notFound *models.ServerNotFoundError
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, "no-such-server", notFound.ServerID)
}

func TestDiscoverToolsCachesResult(t *testing.T) {
	gw, discovery, _, _ := newTestGateway()

	first, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Len(t, first.Tools, 2)
	assert.EqualValues(t, 1, discovery.calls)

	second, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.DiscoveredAt, second.DiscoveredAt)
	assert.EqualValues(t, 1, discovery.calls)
}

func TestDiscoverToolsForceRefresh(t *testing.T) {
	gw, discovery, _, _ := newTestGateway()

	_, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{})
	require.NoError(t, err)

	refreshed, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.False(t, refreshed.FromCache)
	assert.EqualValues(t, 2, discovery.calls)
}

func TestDiscoverToolsCategoryFilterDoesNotMutateCache(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	_, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{})
	require.NoError(t, err)

	filtered, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{Category: "gmail"})
	require.NoError(t, err)
	require.Len(t, filtered.Tools, 1)
	assert.Equal(t, "COMPOSIO_GMAIL_SEND_EMAIL", filtered.Tools[0].Slug)

	// 过滤视图不影响缓存本体
	cached, exists := gw.Catalog.GetCachedTools("composio-default")
	require.True(t, exists)
	assert.Len(t, cached, 2)
}

func TestDiscoverToolsErrorSurfaced(t *testing.T) {
	gw, discovery, _, _ := newTestGateway()
	discovery.err = errFake

	_, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errFake)

	// 失败的发现不污染缓存
	_, exists := gw.Catalog.GetCachedTools("composio-default")
	assert.False(t, exists)
}

func TestDiscoverToolsFiresCallback(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	var gotServerID string
	var gotCount int
	gw.Events.OnToolDiscovered(func(serverID string, tools []models.ToolDescriptor) {
		gotServerID = serverID
		gotCount = len(tools)
	})

	_, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, "composio-default", gotServerID)
	assert.Equal(t, 2, gotCount)

	// 缓存命中不重复触发回调
	gotServerID = ""
	_, err = gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{})
	require.NoError(t, err)
	assert.Empty(t, gotServerID)
}

func TestFindToolBySlug(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	_, found := gw.Catalog.FindToolBySlug("composio-default", "COMPOSIO_GMAIL_SEND_EMAIL")
	assert.False(t, found, "uncached server should not match")

	_, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{})
	require.NoError(t, err)

	tool, found := gw.Catalog.FindToolBySlug("composio-default", "COMPOSIO_GMAIL_SEND_EMAIL")
	require.True(t, found)
	assert.Equal(t, "gmail", tool.Category)

	_, found = gw.Catalog.FindToolBySlug("composio-default", "NO_SUCH_TOOL")
	assert.False(t, found)
}

func TestInvalidateClearsCache(t *testing.T) {
	gw, discovery, _, _ := newTestGateway()

	_, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{})
	require.NoError(t, err)

	gw.Catalog.Invalidate("composio-default")
	_, exists := gw.Catalog.GetCachedTools("composio-default")
	assert.False(t, exists)

	// 失效后再次发现会走真实往返
	result, err := gw.Catalog.DiscoverTools(context.Background(), "composio-default", DiscoverOptions{})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.EqualValues(t, 2, discovery.calls)
}
