package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"McpGateway/internal/models"
)

func newSessionOnConnection(t *testing.T, gw *Gateway) *models.Session {
	t.Helper()
	conn, err := gw.Connections.Connect(context.Background(), ConnectRequest{Provider: "composio"})
	require.NoError(t, err)
	session, err := gw.Sessions.CreateSession(conn.ID)
	require.NoError(t, err)
	return session
}

func TestCreateSessionRequiresConnection(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	_, err := gw.Sessions.CreateSession("no-such-connection")
	require.Error(t, err)

	var notFound *models.ConnectionNotFoundError
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, "no-such-connection", notFound.ConnectionID)
}

func TestCreateSessionInitialState(t *testing.T) {
	gw, _, _, _ := newTestGateway()
	session := newSessionOnConnection(t, gw)

	assert.NotEmpty(t, session.ID)
	assert.True(t, session.Active)
	assert.Empty(t, session.Results)
	assert.Zero(t, session.OperationCount)
	assert.Zero(t, session.SessionCostUSD)
	assert.True(t, session.EndedAt.IsZero())
}

func TestAddSessionResultMaintainsInvariants(t *testing.T) {
	gw, _, _, _ := newTestGateway()
	session := newSessionOnConnection(t, gw)

	gw.Sessions.AddSessionResult(session.ID, models.ExecutionResult{Success: true, CostUSD: 0.01})
	gw.Sessions.AddSessionResult(session.ID, models.ExecutionResult{Success: false, CostUSD: 0.002})

	stored, exists := gw.Sessions.GetSession(session.ID)
	require.True(t, exists)
	assert.Equal(t, len(stored.Results), stored.OperationCount)

	sum := 0.0
	for _, r := range stored.Results {
		sum += r.CostUSD
	}
	assert.InDelta(t, sum, stored.SessionCostUSD, 1e-9)
}

func TestAddSessionResultUnknownSessionIsNoop(t *testing.T) {
	gw, _, _, _ := newTestGateway()
	gw.Sessions.AddSessionResult("no-such-session", models.ExecutionResult{Success: true})
	assert.Empty(t, gw.Sessions.GetSessions())
}

func TestEndSessionRetainsRecord(t *testing.T) {
	gw, _, _, _ := newTestGateway()
	session := newSessionOnConnection(t, gw)

	assert.True(t, gw.Sessions.EndSession(session.ID))
	// 二次结束和未知会话都返回 false
	assert.False(t, gw.Sessions.EndSession(session.ID))
	assert.False(t, gw.Sessions.EndSession("no-such-session"))

	stored, exists := gw.Sessions.GetSession(session.ID)
	require.True(t, exists)
	assert.False(t, stored.Active)
	assert.False(t, stored.EndedAt.IsZero())
}

func TestCleanupKeepsActiveAndRecentSessions(t *testing.T) {
	gw, _, _, _ := newTestGateway()

	active := newSessionOnConnection(t, gw)
	ended := newSessionOnConnection(t, gw)
	require.True(t, gw.Sessions.EndSession(ended.ID))

	// 活跃会话和刚结束的会话都不会被清除
	assert.Equal(t, 0, gw.Sessions.CleanupCompletedSessions(time.Hour))

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, gw.Sessions.CleanupCompletedSessions(time.Millisecond))

	_, exists := gw.Sessions.GetSession(active.ID)
	assert.True(t, exists)
	_, exists = gw.Sessions.GetSession(ended.ID)
	assert.False(t, exists)
}

func TestGetSessionReturnsSnapshot(t *testing.T) {
	gw, _, _, _ := newTestGateway()
	session := newSessionOnConnection(t, gw)

	snapshot, exists := gw.Sessions.GetSession(session.ID)
	require.True(t, exists)

	// 修改快照不影响内部状态
	snapshot.Results = append(snapshot.Results, models.ExecutionResult{Success: true})
	fresh, _ := gw.Sessions.GetSession(session.ID)
	assert.Empty(t, fresh.Results)
}
